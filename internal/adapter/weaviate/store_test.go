package weaviate_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	adapter "docuchat/backend/internal/adapter/weaviate"
	"docuchat/backend/internal/pipeline"
)

func mockWeaviate(t *testing.T, handler http.HandlerFunc) *weaviate.Client {
	t.Helper()
	ts := httptest.NewServer(func() http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/meta" {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"version": "1.25.0"}`))
				return
			}
			handler(w, r)
		}
	}())
	t.Cleanup(ts.Close)

	cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
	client, err := weaviate.NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestStore_UpsertChunks(t *testing.T) {
	var captured map[string]interface{}
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&captured)

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": "1", "result": map[string]interface{}{}},
			{"id": "2", "result": map[string]interface{}{}},
		})
	})

	store := adapter.NewStore(client)
	err := store.UpsertChunks(context.Background(), []adapter.IndexedChunk{
		{DocID: "d1", Filename: "manual.pdf", Page: 1, Index: 0, Text: "first", Version: 1, Vector: []float32{0.1, 0.2}},
		{DocID: "d1", Filename: "manual.pdf", Page: 2, Index: 1, Text: "second", Version: 1, Vector: []float32{0.3, 0.4}},
	})
	require.NoError(t, err)

	objects := captured["objects"].([]interface{})
	require.Len(t, objects, 2)
	first := objects[0].(map[string]interface{})
	props := first["properties"].(map[string]interface{})
	assert.Equal(t, "d1", props["docId"])
	assert.Equal(t, "manual.pdf", props["filename"])
	assert.Equal(t, float64(1), props["version"])
}

func TestStore_UpsertChunks_EmptyIsNoop(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	})
	store := adapter.NewStore(client)
	assert.NoError(t, store.UpsertChunks(context.Background(), nil))
}

func TestStore_UpsertChunks_ObjectError(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": "1", "result": map[string]interface{}{
				"errors": map[string]interface{}{
					"error": []map[string]interface{}{{"message": "vector length mismatch"}},
				},
			}},
		})
	})

	store := adapter.NewStore(client)
	err := store.UpsertChunks(context.Background(), []adapter.IndexedChunk{
		{DocID: "d1", Text: "x", Vector: []float32{0.1}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrVectorIndex))
	assert.Contains(t, err.Error(), "vector length mismatch")
}

func TestStore_DeleteDocument(t *testing.T) {
	var captured map[string]interface{}
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, http.MethodDelete, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{})
	})

	store := adapter.NewStore(client)
	require.NoError(t, store.DeleteDocument(context.Background(), "d1"))

	match := captured["match"].(map[string]interface{})
	where := match["where"].(map[string]interface{})
	assert.Equal(t, []interface{}{"docId"}, where["path"])
	assert.Equal(t, "d1", where["valueString"])
}

func TestStore_DeleteVersionsBelow(t *testing.T) {
	var captured map[string]interface{}
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{})
	})

	store := adapter.NewStore(client)
	require.NoError(t, store.DeleteVersionsBelow(context.Background(), "d1", 3))

	match := captured["match"].(map[string]interface{})
	where := match["where"].(map[string]interface{})
	assert.Equal(t, "And", where["operator"])
	operands := where["operands"].([]interface{})
	require.Len(t, operands, 2)
	versionCond := operands[1].(map[string]interface{})
	assert.Equal(t, "LessThan", versionCond["operator"])
	assert.Equal(t, float64(3), versionCond["valueInt"])
}

func TestStore_Search(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{
					"DocumentChunk": []interface{}{
						map[string]interface{}{
							"content":    "The warranty period is 24 months.",
							"docId":      "d1",
							"filename":   "manual.pdf",
							"page":       float64(2),
							"chunkIndex": float64(4),
							"version":    float64(1),
							"charStart":  float64(100),
							"charEnd":    float64(160),
							"_additional": map[string]interface{}{
								"id":        "chunk-uuid-1",
								"certainty": 0.91,
								"vector":    []interface{}{0.1, 0.2, 0.3},
							},
						},
					},
				},
			},
		})
	})

	store := adapter.NewStore(client)
	results, err := store.Search(context.Background(), []float32{0.1, 0.2, 0.3}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	c := results[0]
	assert.Equal(t, "chunk-uuid-1", c.ChunkID)
	assert.Equal(t, "d1", c.DocID)
	assert.Equal(t, "manual.pdf", c.Filename)
	assert.Equal(t, 2, c.Page)
	assert.Equal(t, 4, c.Index)
	assert.Equal(t, 1, c.Version)
	assert.InDelta(t, 0.91, c.Score, 1e-6)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, c.Vector)
}

func TestStore_Search_GraphQLError(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]interface{}{{"message": "class not found"}},
		})
	})

	store := adapter.NewStore(client)
	_, err := store.Search(context.Background(), []float32{0.1}, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrVectorIndex))
}

func TestStore_CountChunks(t *testing.T) {
	client := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Aggregate": map[string]interface{}{
					"DocumentChunk": []interface{}{
						map[string]interface{}{
							"meta": map[string]interface{}{"count": float64(42)},
						},
					},
				},
			},
		})
	})

	store := adapter.NewStore(client)
	count, err := store.CountChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, count)
}
