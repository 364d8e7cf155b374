package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/frontlinehq/frontline/internal/domain"
	"github.com/frontlinehq/frontline/internal/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockKnowledgeRepository is a mock implementation of KnowledgeRepositoryInterface
type MockKnowledgeRepository struct {
	mock.Mock
}

func (m *MockKnowledgeRepository) Create(ctx context.Context, k *domain.KnowledgeEntry) error {
	args := m.Called(ctx, k)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) UpsertByQuestion(ctx context.Context, k *domain.KnowledgeEntry) error {
	args := m.Called(ctx, k)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) ListRecent(ctx context.Context, limit int) ([]*domain.KnowledgeEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) ListAll(ctx context.Context) ([]*domain.KnowledgeEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*KnowledgePageResult, error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*KnowledgePageResult), args.Error(1)
}

func (m *MockKnowledgeRepository) SearchText(ctx context.Context, query string, limit int) ([]*domain.KnowledgeEntry, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]*ScoredKnowledgeEntry, error) {
	args := m.Called(ctx, embedding, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ScoredKnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) Update(ctx context.Context, k *domain.KnowledgeEntry) error {
	args := m.Called(ctx, k)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	args := m.Called(ctx, id, embedding)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockEmbeddingClient is a mock implementation of EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockUUIDGenerator returns a fixed sequence of UUIDs
type MockUUIDGenerator struct {
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.callCount < len(m.uuids) {
		id := m.uuids[m.callCount]
		m.callCount++
		return id
	}
	return "default-uuid"
}

func TestKnowledgeService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates entry with manual default source", func(t *testing.T) {
		repo := new(MockKnowledgeRepository)
		uuidGen := NewMockUUIDGenerator("kn-1")
		svc := NewKnowledgeServiceWithUUIDGen(repo, nil, uuidGen)

		repo.On("Create", mock.Anything, mock.MatchedBy(func(k *domain.KnowledgeEntry) bool {
			return k.ID == "kn-1" && k.Source == domain.KnowledgeSourceManual
		})).Return(nil)

		entry, err := svc.Create(ctx, CreateKnowledgeInput{
			Question: "  What are your hours?  ",
			Answer:   "9am to 5pm",
		})

		require.NoError(t, err)
		assert.Equal(t, "What are your hours?", entry.Question)
		repo.AssertExpectations(t)
	})

	t.Run("duplicate question propagates", func(t *testing.T) {
		repo := new(MockKnowledgeRepository)
		svc := NewKnowledgeService(repo, nil)

		repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.KnowledgeEntry")).
			Return(domain.ErrDuplicateQuestion)

		_, err := svc.Create(ctx, CreateKnowledgeInput{Question: "Q", Answer: "A"})
		assert.ErrorIs(t, err, domain.ErrDuplicateQuestion)
	})

	t.Run("validation failure skips repo", func(t *testing.T) {
		repo := new(MockKnowledgeRepository)
		svc := NewKnowledgeService(repo, nil)

		_, err := svc.Create(ctx, CreateKnowledgeInput{Question: "", Answer: "A"})
		assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
		repo.AssertNotCalled(t, "Create")
	})

	t.Run("embedding failure does not fail create", func(t *testing.T) {
		repo := new(MockKnowledgeRepository)
		embedder := new(MockEmbeddingClient)
		svc := NewKnowledgeService(repo, embedder)

		repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.KnowledgeEntry")).Return(nil)
		embedder.On("CreateEmbedding", mock.Anything, mock.AnythingOfType("string")).
			Return(nil, errors.New("rate limited"))

		entry, err := svc.Create(ctx, CreateKnowledgeInput{Question: "Q", Answer: "A"})

		require.NoError(t, err)
		assert.NotNil(t, entry)
		repo.AssertNotCalled(t, "UpdateEmbedding")
	})
}

func TestKnowledgeService_UpsertByQuestion(t *testing.T) {
	ctx := context.Background()

	repo := new(MockKnowledgeRepository)
	uuidGen := NewMockUUIDGenerator("kn-1")
	svc := NewKnowledgeServiceWithUUIDGen(repo, nil, uuidGen)

	repo.On("UpsertByQuestion", mock.Anything, mock.MatchedBy(func(k *domain.KnowledgeEntry) bool {
		return k.Source == domain.KnowledgeSourceSupervisor
	})).Return(nil)

	entry, err := svc.UpsertByQuestion(ctx, CreateKnowledgeInput{
		Question: "What are your hours?",
		Answer:   "9am to 5pm",
		Source:   domain.KnowledgeSourceSupervisor,
	})

	require.NoError(t, err)
	assert.Equal(t, "kn-1", entry.ID)
	repo.AssertExpectations(t)
}

func TestKnowledgeService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("updates existing entry", func(t *testing.T) {
		repo := new(MockKnowledgeRepository)
		svc := NewKnowledgeService(repo, nil)

		existing := domain.NewKnowledgeEntry("kn-1", "Old question", "Old answer", domain.KnowledgeSourceManual, time.Now().UTC())
		repo.On("GetByID", mock.Anything, "kn-1").Return(existing, nil)
		repo.On("Update", mock.Anything, mock.MatchedBy(func(k *domain.KnowledgeEntry) bool {
			return k.Question == "New question" && k.Answer == "New answer"
		})).Return(nil)

		entry, err := svc.Update(ctx, UpdateKnowledgeInput{
			ID:       "kn-1",
			Question: "New question",
			Answer:   "New answer",
		})

		require.NoError(t, err)
		assert.Equal(t, "New question", entry.Question)
	})

	t.Run("missing entry", func(t *testing.T) {
		repo := new(MockKnowledgeRepository)
		svc := NewKnowledgeService(repo, nil)

		repo.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrKnowledgeNotFound)

		_, err := svc.Update(ctx, UpdateKnowledgeInput{ID: "missing", Question: "Q", Answer: "A"})
		assert.ErrorIs(t, err, domain.ErrKnowledgeNotFound)
	})
}

func TestKnowledgeService_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("empty query returns empty slice", func(t *testing.T) {
		repo := new(MockKnowledgeRepository)
		svc := NewKnowledgeService(repo, nil)

		entries, err := svc.Search(ctx, "  ", 10)

		require.NoError(t, err)
		assert.Empty(t, entries)
		repo.AssertNotCalled(t, "SearchText")
	})

	t.Run("text search without embedder", func(t *testing.T) {
		repo := new(MockKnowledgeRepository)
		svc := NewKnowledgeService(repo, nil)

		expected := []*domain.KnowledgeEntry{{ID: "kn-1", Question: "Q", Answer: "A"}}
		repo.On("SearchText", mock.Anything, "hours", 10).Return(expected, nil)

		entries, err := svc.Search(ctx, "hours", 10)

		require.NoError(t, err)
		assert.Equal(t, expected, entries)
	})

	t.Run("vector search preferred when embedder available", func(t *testing.T) {
		repo := new(MockKnowledgeRepository)
		embedder := new(MockEmbeddingClient)
		svc := NewKnowledgeService(repo, embedder)

		vec := []float32{0.1, 0.2}
		scored := []*ScoredKnowledgeEntry{
			{Entry: &domain.KnowledgeEntry{ID: "kn-1"}, Score: 0.95},
		}
		embedder.On("CreateEmbedding", mock.Anything, "hours").Return(vec, nil)
		repo.On("SearchByEmbedding", mock.Anything, vec, 10).Return(scored, nil)

		entries, err := svc.Search(ctx, "hours", 10)

		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "kn-1", entries[0].ID)
		repo.AssertNotCalled(t, "SearchText")
	})

	t.Run("falls back to text search on embedding failure", func(t *testing.T) {
		repo := new(MockKnowledgeRepository)
		embedder := new(MockEmbeddingClient)
		svc := NewKnowledgeService(repo, embedder)

		embedder.On("CreateEmbedding", mock.Anything, "hours").Return(nil, errors.New("unavailable"))
		expected := []*domain.KnowledgeEntry{{ID: "kn-1"}}
		repo.On("SearchText", mock.Anything, "hours", 10).Return(expected, nil)

		entries, err := svc.Search(ctx, "hours", 10)

		require.NoError(t, err)
		assert.Equal(t, expected, entries)
	})
}

func TestKnowledgeService_Delete(t *testing.T) {
	ctx := context.Background()

	repo := new(MockKnowledgeRepository)
	svc := NewKnowledgeService(repo, nil)

	repo.On("Delete", mock.Anything, "kn-1").Return(nil)
	require.NoError(t, svc.Delete(ctx, "kn-1"))

	repo.On("Delete", mock.Anything, "missing").Return(domain.ErrKnowledgeNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "missing"), domain.ErrKnowledgeNotFound)
}
