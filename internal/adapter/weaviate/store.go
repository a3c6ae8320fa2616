package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"docuchat/backend/internal/pipeline"
	"docuchat/backend/internal/retrieval"
	"docuchat/backend/internal/vector"
)

// IndexedChunk is a chunk ready for indexing: text, provenance and its
// embedding vector.
type IndexedChunk struct {
	DocID     string
	Filename  string
	Page      int
	Index     int
	Text      string
	CharStart int
	CharEnd   int
	Version   int
	Vector    []float32
}

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// UpsertChunks writes a document's chunk set for one version in a single
// batch. Callers flip the document's current version only after this
// succeeds, so readers never observe a partially written version.
func (s *Store) UpsertChunks(ctx context.Context, chunks []IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	objects := make([]*models.Object, len(chunks))
	for i, c := range chunks {
		objects[i] = &models.Object{
			Class: vector.ClassName,
			Properties: map[string]interface{}{
				"content":    c.Text,
				"docId":      c.DocID,
				"filename":   c.Filename,
				"page":       c.Page,
				"chunkIndex": c.Index,
				"version":    c.Version,
				"charStart":  c.CharStart,
				"charEnd":    c.CharEnd,
			},
			Vector: c.Vector,
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return pipeline.WrapTimeout(err, pipeline.ErrVectorIndex)
	}
	for _, obj := range resp {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("%w: batch object rejected: %s", pipeline.ErrVectorIndex, obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// DeleteDocument removes every chunk of the document, all versions.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"docId"}).
			WithOperator(filters.Equal).
			WithValueString(docID)).
		Do(ctx)
	if err != nil {
		return pipeline.WrapTimeout(err, pipeline.ErrVectorIndex)
	}
	return nil
}

// DeleteVersionsBelow purges superseded chunk versions after a reindex has
// flipped the document's current version.
func (s *Store) DeleteVersionsBelow(ctx context.Context, docID string, version int) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithOperator(filters.And).
			WithOperands([]*filters.WhereBuilder{
				filters.Where().
					WithPath([]string{"docId"}).
					WithOperator(filters.Equal).
					WithValueString(docID),
				filters.Where().
					WithPath([]string{"version"}).
					WithOperator(filters.LessThan).
					WithValueInt(int64(version)),
			})).
		Do(ctx)
	if err != nil {
		return pipeline.WrapTimeout(err, pipeline.ErrVectorIndex)
	}
	return nil
}

// DeleteVersion removes exactly one version of a document's chunks. Used to
// roll back a partially indexed version after an ingest failure.
func (s *Store) DeleteVersion(ctx context.Context, docID string, version int) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithOperator(filters.And).
			WithOperands([]*filters.WhereBuilder{
				filters.Where().
					WithPath([]string{"docId"}).
					WithOperator(filters.Equal).
					WithValueString(docID),
				filters.Where().
					WithPath([]string{"version"}).
					WithOperator(filters.Equal).
					WithValueInt(int64(version)),
			})).
		Do(ctx)
	if err != nil {
		return pipeline.WrapTimeout(err, pipeline.ErrVectorIndex)
	}
	return nil
}

// Search runs a nearVector query and returns scored candidates including the
// stored vectors, which the retriever needs for MMR.
func (s *Store) Search(ctx context.Context, queryVector []float32, limit int) ([]retrieval.Candidate, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(queryVector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "docId"},
		{Name: "filename"},
		{Name: "page"},
		{Name: "chunkIndex"},
		{Name: "version"},
		{Name: "charStart"},
		{Name: "charEnd"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "certainty"}, {Name: "vector"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, pipeline.WrapTimeout(err, pipeline.ErrVectorIndex)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("%w: graphql: %v", pipeline.ErrVectorIndex, res.Errors[0].Message)
	}

	return parseCandidates(res.Data), nil
}

// CountChunks returns the number of chunks across all documents.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, pipeline.WrapTimeout(err, pipeline.ErrVectorIndex)
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("%w: graphql: %v", pipeline.ErrVectorIndex, res.Errors[0].Message)
	}

	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	rows, ok := agg[vector.ClassName].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, ok := rows[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := row["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, _ := meta["count"].(float64)
	return int(count), nil
}

// parseCandidates maps the untyped GraphQL payload onto candidates. Fields
// that fail a type assertion are left at their zero value rather than failing
// the whole result set.
func parseCandidates(data map[string]models.JSONObject) []retrieval.Candidate {
	var results []retrieval.Candidate
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return results
	}
	rows, ok := get[vector.ClassName].([]interface{})
	if !ok {
		return results
	}

	for _, raw := range rows {
		props, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		c := retrieval.Candidate{}
		if v, ok := props["content"].(string); ok {
			c.Text = v
		}
		if v, ok := props["docId"].(string); ok {
			c.DocID = v
		}
		if v, ok := props["filename"].(string); ok {
			c.Filename = v
		}
		if v, ok := props["page"].(float64); ok {
			c.Page = int(v)
		}
		if v, ok := props["chunkIndex"].(float64); ok {
			c.Index = int(v)
		}
		if v, ok := props["version"].(float64); ok {
			c.Version = int(v)
		}
		if v, ok := props["charStart"].(float64); ok {
			c.CharStart = int(v)
		}
		if v, ok := props["charEnd"].(float64); ok {
			c.CharEnd = int(v)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if id, ok := additional["id"].(string); ok {
				c.ChunkID = id
			}
			if certainty, ok := additional["certainty"].(float64); ok {
				c.Score = float32(certainty)
			}
			if rawVec, ok := additional["vector"].([]interface{}); ok {
				vec := make([]float32, 0, len(rawVec))
				for _, f := range rawVec {
					if fv, ok := f.(float64); ok {
						vec = append(vec, float32(fv))
					}
				}
				c.Vector = vec
			}
		}
		results = append(results, c)
	}
	return results
}
