// Package metrics keeps process-local aggregate counters for the stats
// endpoint.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the accumulated counters.
type Snapshot struct {
	DocumentsIngested int64 `json:"documents_ingested"`
	DocumentsFailed   int64 `json:"documents_failed"`
	ChunksIndexed     int64 `json:"chunks_indexed"`
	QueriesServed     int64 `json:"queries_served"`
	QueriesFailed     int64 `json:"queries_failed"`

	TotalRetrievalMs int64 `json:"total_retrieval_ms"`
	TotalGenerateMs  int64 `json:"total_generation_ms"`
	LastRetrievalMs  int64 `json:"last_retrieval_ms"`
	LastGenerateMs   int64 `json:"last_generation_ms"`
	AvgRetrievalMs   int64 `json:"avg_retrieval_ms"`
	AvgGenerateMs    int64 `json:"avg_generation_ms"`
}

// Collector accumulates counters under a mutex. Safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	documentsIngested int64
	documentsFailed   int64
	chunksIndexed     int64
	queriesServed     int64
	queriesFailed     int64

	totalRetrieval time.Duration
	totalGenerate  time.Duration
	lastRetrieval  time.Duration
	lastGenerate   time.Duration
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) RecordIngest(chunks int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.documentsIngested++
	c.chunksIndexed += int64(chunks)
}

func (c *Collector) RecordIngestFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.documentsFailed++
}

func (c *Collector) RecordQuery(retrieval, generation time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queriesServed++
	c.totalRetrieval += retrieval
	c.totalGenerate += generation
	c.lastRetrieval = retrieval
	c.lastGenerate = generation
}

func (c *Collector) RecordQueryFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queriesFailed++
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		DocumentsIngested: c.documentsIngested,
		DocumentsFailed:   c.documentsFailed,
		ChunksIndexed:     c.chunksIndexed,
		QueriesServed:     c.queriesServed,
		QueriesFailed:     c.queriesFailed,
		TotalRetrievalMs:  c.totalRetrieval.Milliseconds(),
		TotalGenerateMs:   c.totalGenerate.Milliseconds(),
		LastRetrievalMs:   c.lastRetrieval.Milliseconds(),
		LastGenerateMs:    c.lastGenerate.Milliseconds(),
	}
	if c.queriesServed > 0 {
		s.AvgRetrievalMs = s.TotalRetrievalMs / c.queriesServed
		s.AvgGenerateMs = s.TotalGenerateMs / c.queriesServed
	}
	return s
}

func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.documentsIngested = 0
	c.documentsFailed = 0
	c.chunksIndexed = 0
	c.queriesServed = 0
	c.queriesFailed = 0
	c.totalRetrieval = 0
	c.totalGenerate = 0
	c.lastRetrieval = 0
	c.lastGenerate = 0
}
