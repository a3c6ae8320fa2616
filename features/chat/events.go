// Package chat answers questions against the indexed documents and streams
// the result as an event sequence.
package chat

import "docuchat/backend/internal/answer"

const (
	EventContent = "content"
	EventSources = "sources"
	EventDone    = "done"
	EventError   = "error"
)

// Timings reports stage latencies for one answered question.
type Timings struct {
	RetrievalMs  int64 `json:"retrieval_ms"`
	GenerationMs int64 `json:"generation_ms"`
	TotalMs      int64 `json:"total_ms"`
}

// Event is one element of an answer stream. The sequence is zero or more
// content events, one sources event, then done. An error event terminates the
// stream early.
type Event struct {
	Type       string            `json:"type"`
	Content    string            `json:"content,omitempty"`
	Confidence answer.Confidence `json:"confidence,omitempty"`
	Citations  []answer.Citation `json:"citations,omitempty"`
	Timings    *Timings          `json:"timings,omitempty"`
	Error      string            `json:"error,omitempty"`
}
