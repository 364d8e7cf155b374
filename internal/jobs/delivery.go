package jobs

import (
	"context"
	"log"
	"time"

	"github.com/frontlinehq/frontline/internal/domain"
	"github.com/frontlinehq/frontline/internal/service"
	"github.com/frontlinehq/frontline/internal/webhook"
)

const deliveryQueueSize = 128

// Sender delivers one payload, returning true on acceptance.
type Sender interface {
	Send(ctx context.Context, payload webhook.Payload) bool
}

// DeliveryWorker drains resolution events into the webhook sender so the
// resolve path never blocks on delivery retries. Implements both the
// service.ResolutionNotifier enqueue side and the JobProcessor drain side.
type DeliveryWorker struct {
	sender  Sender
	audit   service.AuditRepositoryInterface
	uuidGen service.UUIDGenerator
	queue   chan webhook.Payload
}

// NewDeliveryWorker creates a delivery worker with a bounded queue.
// audit may be nil.
func NewDeliveryWorker(sender Sender, audit service.AuditRepositoryInterface) *DeliveryWorker {
	return &DeliveryWorker{
		sender:  sender,
		audit:   audit,
		uuidGen: &service.DefaultUUIDGenerator{},
		queue:   make(chan webhook.Payload, deliveryQueueSize),
	}
}

// EnqueueResolution implements service.ResolutionNotifier. Returns false
// without blocking when the queue is full; the caller treats that as a
// logged delivery failure, never as a resolve failure.
func (w *DeliveryWorker) EnqueueResolution(e *domain.Escalation) bool {
	payload := webhook.Payload{
		RequestID:   e.ID,
		Answer:      e.Answer,
		CallerID:    e.CallerID,
		CallerPhone: e.CallerPhone,
		ResolvedBy:  e.ResolvedBy,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	select {
	case w.queue <- payload:
		return true
	default:
		return false
	}
}

// ProcessJobs implements the JobProcessor interface: drains everything
// currently queued, delivering each payload with the sender's own retry
// policy.
func (w *DeliveryWorker) ProcessJobs(ctx context.Context) error {
	for {
		select {
		case payload := <-w.queue:
			if !w.sender.Send(ctx, payload) {
				w.recordFailure(ctx, payload)
			}
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
}

func (w *DeliveryWorker) recordFailure(ctx context.Context, payload webhook.Payload) {
	log.Printf("resolution delivery failed for request %s", payload.RequestID)
	if w.audit == nil {
		return
	}
	entry := &domain.AuditEntry{
		ID:      w.uuidGen.NewString(),
		Level:   domain.AuditLevelError,
		Event:   domain.AuditEventWebhookFailed,
		Message: "webhook delivery exhausted retries",
		Metadata: map[string]any{
			"request_id": payload.RequestID,
			"caller_id":  payload.CallerID,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := w.audit.Append(ctx, entry); err != nil {
		log.Printf("failed to audit delivery failure: %v", err)
	}
}
