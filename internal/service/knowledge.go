package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/frontlinehq/frontline/internal/domain"
	"github.com/frontlinehq/frontline/internal/pagination"
	"github.com/frontlinehq/frontline/internal/telemetry"
	"github.com/google/uuid"
)

// KnowledgeRepositoryInterface defines the repository interface for knowledge persistence
type KnowledgeRepositoryInterface interface {
	Create(ctx context.Context, k *domain.KnowledgeEntry) error
	UpsertByQuestion(ctx context.Context, k *domain.KnowledgeEntry) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeEntry, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.KnowledgeEntry, error)
	ListAll(ctx context.Context) ([]*domain.KnowledgeEntry, error)
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*KnowledgePageResult, error)
	SearchText(ctx context.Context, query string, limit int) ([]*domain.KnowledgeEntry, error)
	SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]*ScoredKnowledgeEntry, error)
	Update(ctx context.Context, k *domain.KnowledgeEntry) error
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
	Delete(ctx context.Context, id string) error
}

// AuditRepositoryInterface defines the repository interface for audit log persistence
type AuditRepositoryInterface interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
}

// EmbeddingClient produces a vector for a piece of text. Optional: when nil,
// knowledge search falls back to text matching.
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type KnowledgePageResult struct {
	Items      []*domain.KnowledgeEntry
	NextCursor string
	HasMore    bool
}

// ScoredKnowledgeEntry pairs an entry with a search relevance score
type ScoredKnowledgeEntry struct {
	Entry *domain.KnowledgeEntry
	Score float64
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// KnowledgeService handles business logic for knowledge entries
type KnowledgeService struct {
	repo     KnowledgeRepositoryInterface
	embedder EmbeddingClient
	uuidGen  UUIDGenerator
}

// NewKnowledgeService creates a new KnowledgeService instance. embedder may
// be nil; search then uses text matching only.
func NewKnowledgeService(repo KnowledgeRepositoryInterface, embedder EmbeddingClient) *KnowledgeService {
	return &KnowledgeService{
		repo:     repo,
		embedder: embedder,
		uuidGen:  &DefaultUUIDGenerator{},
	}
}

// NewKnowledgeServiceWithUUIDGen creates a new KnowledgeService with custom UUID generator (for testing)
func NewKnowledgeServiceWithUUIDGen(repo KnowledgeRepositoryInterface, embedder EmbeddingClient, uuidGen UUIDGenerator) *KnowledgeService {
	return &KnowledgeService{
		repo:     repo,
		embedder: embedder,
		uuidGen:  uuidGen,
	}
}

// CreateKnowledgeInput represents the input for creating a knowledge entry
type CreateKnowledgeInput struct {
	Question string
	Answer   string
	Source   domain.KnowledgeSource
}

// UpdateKnowledgeInput represents the input for updating a knowledge entry
type UpdateKnowledgeInput struct {
	ID       string
	Question string
	Answer   string
}

// Create creates a new knowledge entry. Fails with DuplicateQuestion when
// an entry with the same question already exists.
func (s *KnowledgeService) Create(ctx context.Context, input CreateKnowledgeInput) (*domain.KnowledgeEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Create", telemetry.SpanAttributes{
		Operation: "create",
	})
	defer span.End()

	source := input.Source
	if source == "" {
		source = domain.KnowledgeSourceManual
	}

	now := time.Now().UTC()
	entry := domain.NewKnowledgeEntry(s.uuidGen.NewString(), strings.TrimSpace(input.Question), strings.TrimSpace(input.Answer), source, now)

	if err := domain.ValidateKnowledgeEntry(entry); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.fillEmbedding(ctx, entry)
	return entry, nil
}

// UpsertByQuestion inserts or updates an entry keyed on its question.
func (s *KnowledgeService) UpsertByQuestion(ctx context.Context, input CreateKnowledgeInput) (*domain.KnowledgeEntry, error) {
	source := input.Source
	if source == "" {
		source = domain.KnowledgeSourceManual
	}

	now := time.Now().UTC()
	entry := domain.NewKnowledgeEntry(s.uuidGen.NewString(), strings.TrimSpace(input.Question), strings.TrimSpace(input.Answer), source, now)

	if err := domain.ValidateKnowledgeEntry(entry); err != nil {
		return nil, err
	}

	if err := s.repo.UpsertByQuestion(ctx, entry); err != nil {
		return nil, err
	}

	s.fillEmbedding(ctx, entry)
	return entry, nil
}

// GetByID retrieves a knowledge entry by ID
func (s *KnowledgeService) GetByID(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	return s.repo.GetByID(ctx, id)
}

// Update edits an existing entry by id
func (s *KnowledgeService) Update(ctx context.Context, input UpdateKnowledgeInput) (*domain.KnowledgeEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Update", telemetry.SpanAttributes{
		KnowledgeID: input.ID,
		Operation:   "update",
	})
	defer span.End()

	entry, err := s.repo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	entry.Question = strings.TrimSpace(input.Question)
	entry.Answer = strings.TrimSpace(input.Answer)

	if err := domain.ValidateKnowledgeEntry(entry); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, err
	}

	s.fillEmbedding(ctx, entry)
	return entry, nil
}

// Delete removes an entry by id
func (s *KnowledgeService) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Delete", telemetry.SpanAttributes{
		KnowledgeID: id,
		Operation:   "delete",
	})
	defer span.End()

	return s.repo.Delete(ctx, id)
}

// Search finds entries matching the query. Uses vector search when an
// embedding client is configured and responsive, text search otherwise.
func (s *KnowledgeService) Search(ctx context.Context, query string, limit int) ([]*domain.KnowledgeEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Search", telemetry.SpanAttributes{
		Operation: "search",
	})
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return []*domain.KnowledgeEntry{}, nil
	}

	if s.embedder != nil {
		if embedding, err := s.embedder.CreateEmbedding(ctx, query); err == nil {
			scored, err := s.repo.SearchByEmbedding(ctx, embedding, limit)
			if err == nil && len(scored) > 0 {
				entries := make([]*domain.KnowledgeEntry, len(scored))
				for i, sk := range scored {
					entries[i] = sk.Entry
				}
				return entries, nil
			}
		}
	}

	return s.repo.SearchText(ctx, query, limit)
}

// List returns a page of entries ordered by recency
func (s *KnowledgeService) List(ctx context.Context, cursorStr string, limit int) (*KnowledgePageResult, error) {
	cursor, _ := pagination.DecodeCursor(cursorStr)
	return s.repo.ListWithCursor(ctx, cursor, limit)
}

// ListAll returns every entry, used by the export command
func (s *KnowledgeService) ListAll(ctx context.Context) ([]*domain.KnowledgeEntry, error) {
	return s.repo.ListAll(ctx)
}

// fillEmbedding computes and stores the entry embedding best-effort: a
// failure leaves the entry searchable through the text path.
func (s *KnowledgeService) fillEmbedding(ctx context.Context, entry *domain.KnowledgeEntry) {
	if s.embedder == nil {
		return
	}

	embedding, err := s.embedder.CreateEmbedding(ctx, entry.Question+"\n"+entry.Answer)
	if err != nil {
		log.Printf("knowledge embedding failed for %s: %v", entry.ID, err)
		return
	}

	if err := s.repo.UpdateEmbedding(ctx, entry.ID, embedding); err != nil {
		log.Printf("knowledge embedding store failed for %s: %v", entry.ID, err)
	}
}
