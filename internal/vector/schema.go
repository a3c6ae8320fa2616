package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the single logical index holding every document's chunks.
const ClassName = "DocumentChunk"

const modelMarker = "embedding-model="

// SchemaClient defines the interface for Weaviate schema operations.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// EnsureSchema creates the chunk class if missing and backfills any missing
// properties. The embedding model identity is recorded in the class
// description when the class is first created; a later startup with a
// different model is a fatal configuration error, not something to paper over
// at runtime — swapping models requires a full reindex into a fresh class.
func EnsureSchema(ctx context.Context, client SchemaClient, embeddingModel string) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return err
	}

	properties := []*models.Property{
		{Name: "content", DataType: []string{"text"}},
		{Name: "docId", DataType: []string{"string"}}, // UUID as string (exact match)
		{Name: "filename", DataType: []string{"string"}},
		{Name: "page", DataType: []string{"int"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "version", DataType: []string{"int"}},
		{Name: "charStart", DataType: []string{"int"}},
		{Name: "charEnd", DataType: []string{"int"}},
	}

	if !exists {
		class := &models.Class{
			Class:       ClassName,
			Description: fmt.Sprintf("A chunk of an uploaded document; %s%s", modelMarker, embeddingModel),
			Vectorizer:  "none",
			Properties:  properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return err
	}

	if stored, ok := storedModel(class.Description); ok && stored != embeddingModel {
		return fmt.Errorf("index was built with embedding model %q but %q is configured; a full reindex under a new class is required", stored, embeddingModel)
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, ClassName, p); err != nil {
				return err
			}
		}
	}

	return nil
}

func storedModel(description string) (string, bool) {
	idx := strings.Index(description, modelMarker)
	if idx < 0 {
		return "", false
	}
	model := description[idx+len(modelMarker):]
	if end := strings.IndexAny(model, " ;"); end >= 0 {
		model = model[:end]
	}
	return model, model != ""
}
