package service

import (
	"context"
	"strings"
	"time"

	"github.com/frontlinehq/frontline/internal/domain"
	"github.com/frontlinehq/frontline/internal/pagination"
	"github.com/frontlinehq/frontline/internal/telemetry"
)

// EscalationRepositoryInterface defines the repository interface for escalation persistence
type EscalationRepositoryInterface interface {
	Create(ctx context.Context, e *domain.Escalation) error
	GetByID(ctx context.Context, id string) (*domain.Escalation, error)
	ListPending(ctx context.Context) ([]*domain.Escalation, error)
	ListPendingByCaller(ctx context.Context, callerID string) ([]*domain.Escalation, error)
	ListByIDsWithStatus(ctx context.Context, ids []string, status domain.EscalationStatus) ([]*domain.Escalation, error)
	ListWithCursor(ctx context.Context, filter EscalationFilter, cursor *pagination.Cursor, limit int) (*EscalationPageResult, error)
	MarkResolved(ctx context.Context, id, answer, resolvedBy string, now time.Time) error
	MarkUnresolved(ctx context.Context, id string, now time.Time) error
	SweepStale(ctx context.Context, threshold, now time.Time) ([]*domain.Escalation, error)
}

// EscalationFilter narrows escalation listings
type EscalationFilter struct {
	Status   domain.EscalationStatus
	CallerID string
}

type EscalationPageResult struct {
	Items      []*domain.Escalation
	NextCursor string
	HasMore    bool
}

// PendingTracker is the process-local index of open escalations per caller.
// Best-effort cache: losing it only costs an extra store query.
type PendingTracker interface {
	Track(callerID, escalationID string)
	Remove(callerID, escalationID string)
	IDs(callerID string) []string
}

// ResolutionNotifier accepts a resolved escalation for asynchronous
// webhook delivery. Enqueue must not block the caller.
type ResolutionNotifier interface {
	EnqueueResolution(e *domain.Escalation) bool
}

// EscalationService owns the help-request state machine: PENDING resolves
// to RESOLVED or times out to UNRESOLVED, exactly once.
type EscalationService struct {
	repo     EscalationRepositoryInterface
	audit    AuditRepositoryInterface
	tx       TxRunner
	tracker  PendingTracker
	notifier ResolutionNotifier
	uuidGen  UUIDGenerator

	// Duplicate-suppression knobs. The cross-caller ratio is a heuristic
	// that can false-positive on short questions; tune against real traffic.
	SameCallerSharedWords int
	CrossCallerOverlap    float64
}

// NewEscalationService creates a new EscalationService instance. tracker and
// notifier may be nil (tests, CLI contexts).
func NewEscalationService(repo EscalationRepositoryInterface, audit AuditRepositoryInterface, tx TxRunner, tracker PendingTracker, notifier ResolutionNotifier) *EscalationService {
	return &EscalationService{
		repo:                  repo,
		audit:                 audit,
		tx:                    tx,
		tracker:               tracker,
		notifier:              notifier,
		uuidGen:               &DefaultUUIDGenerator{},
		SameCallerSharedWords: 2,
		CrossCallerOverlap:    0.7,
	}
}

// NewEscalationServiceWithUUIDGen creates a new EscalationService with custom UUID generator (for testing)
func NewEscalationServiceWithUUIDGen(repo EscalationRepositoryInterface, audit AuditRepositoryInterface, tx TxRunner, tracker PendingTracker, notifier ResolutionNotifier, uuidGen UUIDGenerator) *EscalationService {
	svc := NewEscalationService(repo, audit, tx, tracker, notifier)
	svc.uuidGen = uuidGen
	return svc
}

// CreateEscalationInput represents the input for creating a help request
type CreateEscalationInput struct {
	CallerID    string
	CallerPhone string
	Question    string
	Metadata    map[string]any
}

// CreateEscalationOutput carries the created (or matched existing) escalation
type CreateEscalationOutput struct {
	Escalation *domain.Escalation
	Duplicate  bool
	Message    string
}

// Create registers a new PENDING help request unless a sufficiently similar
// one is already pending: same caller sharing >= SameCallerSharedWords words,
// or any caller with word-overlap ratio > CrossCallerOverlap. On a duplicate
// the existing escalation is returned and no row is written.
func (s *EscalationService) Create(ctx context.Context, input CreateEscalationInput) (*CreateEscalationOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "EscalationService.Create", telemetry.SpanAttributes{
		CallerID:  input.CallerID,
		Operation: "create",
	})
	defer span.End()

	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}

	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	if existing := s.findDuplicate(question, input.CallerID, pending); existing != nil {
		s.appendAudit(ctx, domain.AuditLevelInfo, domain.AuditEventEscalationDuplicate,
			"duplicate escalation suppressed", map[string]any{
				"existing_id": existing.ID,
				"caller_id":   input.CallerID,
				"question":    question,
			})
		return &CreateEscalationOutput{
			Escalation: existing,
			Duplicate:  true,
			Message:    "This question has already been escalated to a supervisor. You will hear back shortly.",
		}, nil
	}

	now := time.Now().UTC()
	escalation := domain.NewEscalation(s.uuidGen.NewString(), input.CallerID, input.CallerPhone, question, input.Metadata, now)

	if err := domain.ValidateEscalation(escalation); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, escalation); err != nil {
		return nil, err
	}

	if s.tracker != nil && escalation.CallerID != "" {
		s.tracker.Track(escalation.CallerID, escalation.ID)
	}

	s.appendAudit(ctx, domain.AuditLevelInfo, domain.AuditEventEscalationCreated,
		"escalation created", map[string]any{
			"escalation_id": escalation.ID,
			"caller_id":     escalation.CallerID,
			"question":      escalation.Question,
		})

	return &CreateEscalationOutput{Escalation: escalation}, nil
}

// GetByID retrieves an escalation by ID
func (s *EscalationService) GetByID(ctx context.Context, id string) (*domain.Escalation, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of escalations for the dashboard
func (s *EscalationService) List(ctx context.Context, filter EscalationFilter, cursorStr string, limit int) (*EscalationPageResult, error) {
	cursor, _ := pagination.DecodeCursor(cursorStr)
	return s.repo.ListWithCursor(ctx, filter, cursor, limit)
}

// Resolve transitions a PENDING escalation to RESOLVED. The status update,
// the optional knowledge upsert and the audit row commit as one transaction;
// webhook delivery is enqueued after commit and cannot fail the resolve.
func (s *EscalationService) Resolve(ctx context.Context, id, answer, resolvedBy string, learn bool) (*domain.Escalation, error) {
	ctx, span := telemetry.StartSpan(ctx, "EscalationService.Resolve", telemetry.SpanAttributes{
		EscalationID: id,
		Operation:    "resolve",
	})
	defer span.End()

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, domain.ErrEmptyAnswer
	}
	if strings.TrimSpace(resolvedBy) == "" {
		return nil, domain.ErrEmptyResolvedBy
	}

	escalation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Escalations().MarkResolved(ctx, id, answer, resolvedBy, now); err != nil {
			return err
		}

		if learn {
			entry := domain.NewKnowledgeEntry(s.uuidGen.NewString(), escalation.Question, answer, domain.KnowledgeSourceSupervisor, now)
			if err := repos.Knowledge().UpsertByQuestion(ctx, entry); err != nil {
				return err
			}
			if err := repos.Audit().Append(ctx, s.newAudit(domain.AuditLevelInfo, domain.AuditEventKnowledgeLearned,
				"knowledge learned from resolution", map[string]any{
					"escalation_id": id,
					"question":      escalation.Question,
				})); err != nil {
				return err
			}
		}

		return repos.Audit().Append(ctx, s.newAudit(domain.AuditLevelInfo, domain.AuditEventEscalationResolved,
			"escalation resolved", map[string]any{
				"escalation_id": id,
				"resolved_by":   resolvedBy,
				"learn":         learn,
			}))
	})
	if err != nil {
		return nil, err
	}

	escalation.Status = domain.EscalationStatusResolved
	escalation.Answer = answer
	escalation.ResolvedBy = resolvedBy
	escalation.UpdatedAt = now

	if s.tracker != nil && escalation.CallerID != "" {
		s.tracker.Remove(escalation.CallerID, escalation.ID)
	}

	if s.notifier != nil {
		if !s.notifier.EnqueueResolution(escalation) {
			s.appendAudit(ctx, domain.AuditLevelWarn, domain.AuditEventWebhookFailed,
				"resolution delivery queue full", map[string]any{"escalation_id": id})
		}
	}

	return escalation, nil
}

// MarkUnresolved transitions a PENDING escalation to UNRESOLVED with
// timeout_at set to now.
func (s *EscalationService) MarkUnresolved(ctx context.Context, id string) (*domain.Escalation, error) {
	ctx, span := telemetry.StartSpan(ctx, "EscalationService.MarkUnresolved", telemetry.SpanAttributes{
		EscalationID: id,
		Operation:    "timeout",
	})
	defer span.End()

	now := time.Now().UTC()
	if err := s.repo.MarkUnresolved(ctx, id, now); err != nil {
		return nil, err
	}

	escalation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.tracker != nil && escalation.CallerID != "" {
		s.tracker.Remove(escalation.CallerID, escalation.ID)
	}

	s.appendAudit(ctx, domain.AuditLevelWarn, domain.AuditEventEscalationTimedOut,
		"escalation marked unresolved", map[string]any{"escalation_id": id})

	return escalation, nil
}

// UpdateCheckResult carries resolved escalations found by a poll
type UpdateCheckResult struct {
	Resolved   []*domain.Escalation
	HasUpdates bool
}

// CheckUpdates polls for resolutions among the given escalation IDs plus any
// the tracker holds for the caller. Resolved IDs are pruned from the tracker.
func (s *EscalationService) CheckUpdates(ctx context.Context, ids []string, callerID string) (*UpdateCheckResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "EscalationService.CheckUpdates", telemetry.SpanAttributes{
		CallerID:  callerID,
		Operation: "check_updates",
	})
	defer span.End()

	seen := map[string]bool{}
	all := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			all = append(all, id)
		}
	}
	if s.tracker != nil && callerID != "" {
		for _, id := range s.tracker.IDs(callerID) {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
			}
		}
	}

	if len(all) == 0 {
		return &UpdateCheckResult{Resolved: []*domain.Escalation{}}, nil
	}

	resolved, err := s.repo.ListByIDsWithStatus(ctx, all, domain.EscalationStatusResolved)
	if err != nil {
		return nil, err
	}

	if s.tracker != nil && callerID != "" {
		for _, e := range resolved {
			s.tracker.Remove(callerID, e.ID)
		}
	}

	return &UpdateCheckResult{
		Resolved:   resolved,
		HasUpdates: len(resolved) > 0,
	}, nil
}

// RebuildTracker reloads a caller's pending escalations from the store into
// the tracker. Called lazily after process restarts.
func (s *EscalationService) RebuildTracker(ctx context.Context, callerID string) error {
	if s.tracker == nil || callerID == "" {
		return nil
	}
	pending, err := s.repo.ListPendingByCaller(ctx, callerID)
	if err != nil {
		return err
	}
	for _, e := range pending {
		s.tracker.Track(callerID, e.ID)
	}
	return nil
}

// findDuplicate applies the two-tier duplicate check against pending
// escalations, in creation order.
func (s *EscalationService) findDuplicate(question, callerID string, pending []*domain.Escalation) *domain.Escalation {
	words := wordSet(question)
	for _, e := range pending {
		other := wordSet(e.Question)
		shared := sharedWordCount(words, other)
		if callerID != "" && e.CallerID == callerID && shared >= s.SameCallerSharedWords {
			return e
		}
		if overlapRatio(words, other, shared) > s.CrossCallerOverlap {
			return e
		}
	}
	return nil
}

func (s *EscalationService) newAudit(level, event, message string, metadata map[string]any) *domain.AuditEntry {
	return &domain.AuditEntry{
		ID:        s.uuidGen.NewString(),
		Level:     level,
		Event:     event,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

// appendAudit writes an audit entry outside any transaction; failures are
// swallowed because the audit log never gates the operation that produced it.
func (s *EscalationService) appendAudit(ctx context.Context, level, event, message string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Append(ctx, s.newAudit(level, event, message, metadata))
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:'\"()")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

func sharedWordCount(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}

// overlapRatio is Jaccard similarity: shared words over the union size.
func overlapRatio(a, b map[string]bool, shared int) float64 {
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
