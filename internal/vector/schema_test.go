package vector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/weaviate/weaviate/entities/models"

	"docuchat/backend/internal/vector"
)

type MockSchemaClient struct{ mock.Mock }

func (m *MockSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	args := m.Called(ctx, className)
	return args.Bool(0), args.Error(1)
}

func (m *MockSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	return m.Called(ctx, class).Error(0)
}

func (m *MockSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	args := m.Called(ctx, className)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Class), args.Error(1)
}

func (m *MockSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return m.Called(ctx, className, property).Error(0)
}

func TestEnsureSchema_CreatesClass(t *testing.T) {
	client := new(MockSchemaClient)
	client.On("ClassExists", mock.Anything, vector.ClassName).Return(false, nil)
	client.On("CreateClass", mock.Anything, mock.MatchedBy(func(c *models.Class) bool {
		return c.Class == vector.ClassName && c.Vectorizer == "none" && len(c.Properties) == 8
	})).Return(nil)

	err := vector.EnsureSchema(context.Background(), client, "gemini-embedding-001")
	assert.NoError(t, err)
	client.AssertExpectations(t)
}

func TestEnsureSchema_RecordsModelIdentity(t *testing.T) {
	client := new(MockSchemaClient)
	client.On("ClassExists", mock.Anything, vector.ClassName).Return(false, nil)
	client.On("CreateClass", mock.Anything, mock.MatchedBy(func(c *models.Class) bool {
		return assert.Contains(t, c.Description, "embedding-model=gemini-embedding-001")
	})).Return(nil)

	err := vector.EnsureSchema(context.Background(), client, "gemini-embedding-001")
	assert.NoError(t, err)
}

func TestEnsureSchema_ModelMismatchIsFatal(t *testing.T) {
	client := new(MockSchemaClient)
	client.On("ClassExists", mock.Anything, vector.ClassName).Return(true, nil)
	client.On("GetClass", mock.Anything, vector.ClassName).Return(&models.Class{
		Class:       vector.ClassName,
		Description: "A chunk of an uploaded document; embedding-model=gemini-embedding-001",
	}, nil)

	err := vector.EnsureSchema(context.Background(), client, "text-embedding-004")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reindex")
	client.AssertNotCalled(t, "AddProperty", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsureSchema_BackfillsProperties(t *testing.T) {
	client := new(MockSchemaClient)
	client.On("ClassExists", mock.Anything, vector.ClassName).Return(true, nil)
	client.On("GetClass", mock.Anything, vector.ClassName).Return(&models.Class{
		Class:       vector.ClassName,
		Description: "A chunk of an uploaded document; embedding-model=gemini-embedding-001",
		Properties: []*models.Property{
			{Name: "content"}, {Name: "docId"}, {Name: "filename"},
			{Name: "page"}, {Name: "chunkIndex"}, {Name: "charStart"}, {Name: "charEnd"},
		},
	}, nil)
	client.On("AddProperty", mock.Anything, vector.ClassName, mock.MatchedBy(func(p *models.Property) bool {
		return p.Name == "version"
	})).Return(nil)

	err := vector.EnsureSchema(context.Background(), client, "gemini-embedding-001")
	assert.NoError(t, err)
	client.AssertExpectations(t)
}

func TestEnsureSchema_LegacyClassWithoutMarker(t *testing.T) {
	// Classes created before the marker existed are accepted as-is.
	client := new(MockSchemaClient)
	client.On("ClassExists", mock.Anything, vector.ClassName).Return(true, nil)
	client.On("GetClass", mock.Anything, vector.ClassName).Return(&models.Class{
		Class: vector.ClassName,
		Properties: []*models.Property{
			{Name: "content"}, {Name: "docId"}, {Name: "filename"}, {Name: "page"},
			{Name: "chunkIndex"}, {Name: "version"}, {Name: "charStart"}, {Name: "charEnd"},
		},
	}, nil)

	err := vector.EnsureSchema(context.Background(), client, "gemini-embedding-001")
	assert.NoError(t, err)
}
