package jobs

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/frontlinehq/frontline/internal/domain"
	"github.com/frontlinehq/frontline/internal/service"
)

// SweeperRepository is the slice of the escalation store the sweeper needs
type SweeperRepository interface {
	SweepStale(ctx context.Context, threshold, now time.Time) ([]*domain.Escalation, error)
}

// TimeoutSweeper transitions PENDING escalations older than the timeout
// threshold to UNRESOLVED. The store's conditional update arbitrates any
// race with a concurrent resolve: the losing writer affects zero rows.
type TimeoutSweeper struct {
	repo    SweeperRepository
	audit   service.AuditRepositoryInterface
	tracker service.PendingTracker
	timeout time.Duration
	uuidGen service.UUIDGenerator

	// Guards against overlapping sweeps when one pass outlives the poll
	// interval.
	running atomic.Bool
}

// NewTimeoutSweeper creates a sweeper with the given pending timeout.
// audit and tracker may be nil.
func NewTimeoutSweeper(repo SweeperRepository, audit service.AuditRepositoryInterface, tracker service.PendingTracker, timeout time.Duration) *TimeoutSweeper {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &TimeoutSweeper{
		repo:    repo,
		audit:   audit,
		tracker: tracker,
		timeout: timeout,
		uuidGen: &service.DefaultUUIDGenerator{},
	}
}

// ProcessJobs implements the JobProcessor interface
func (s *TimeoutSweeper) ProcessJobs(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		log.Println("timeout sweep already running, skipping")
		return nil
	}
	defer s.running.Store(false)

	now := time.Now().UTC()
	threshold := now.Add(-s.timeout)

	swept, err := s.repo.SweepStale(ctx, threshold, now)
	if err != nil {
		return fmt.Errorf("failed to sweep stale escalations: %w", err)
	}

	if len(swept) == 0 {
		return nil
	}

	log.Printf("swept %d stale escalations to UNRESOLVED", len(swept))

	for _, e := range swept {
		if s.tracker != nil && e.CallerID != "" {
			s.tracker.Remove(e.CallerID, e.ID)
		}
		if s.audit != nil {
			entry := &domain.AuditEntry{
				ID:      s.uuidGen.NewString(),
				Level:   domain.AuditLevelWarn,
				Event:   domain.AuditEventEscalationTimedOut,
				Message: "escalation timed out by sweeper",
				Metadata: map[string]any{
					"escalation_id": e.ID,
					"caller_id":     e.CallerID,
					"pending_for":   now.Sub(e.CreatedAt).String(),
				},
				CreatedAt: now,
			}
			if err := s.audit.Append(ctx, entry); err != nil {
				log.Printf("failed to audit sweep of %s: %v", e.ID, err)
			}
		}
	}

	return nil
}
