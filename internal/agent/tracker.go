package agent

import (
	"slices"
	"sync"
)

// PendingTracker maps caller identity to that caller's open escalation IDs.
// It is a process-local cache of derived state: a restart drops it, and
// correctness is unaffected because resolution lookups fall back to the
// store. Append and remove are idempotent set operations.
type PendingTracker struct {
	mu       sync.RWMutex
	byCaller map[string][]string
}

func NewPendingTracker() *PendingTracker {
	return &PendingTracker{byCaller: map[string][]string{}}
}

// Track records an open escalation for a caller. Duplicates are ignored.
func (t *PendingTracker) Track(callerID, escalationID string) {
	if callerID == "" || escalationID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := t.byCaller[callerID]
	if slices.Contains(ids, escalationID) {
		return
	}
	t.byCaller[callerID] = append(ids, escalationID)
}

// Remove drops an escalation from a caller's tracked set. Removing an
// untracked ID is a no-op.
func (t *PendingTracker) Remove(callerID, escalationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := t.byCaller[callerID]
	for i, id := range ids {
		if id == escalationID {
			t.byCaller[callerID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(t.byCaller[callerID]) == 0 {
		delete(t.byCaller, callerID)
	}
}

// IDs returns the caller's tracked escalation IDs in insertion order.
func (t *PendingTracker) IDs(callerID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.byCaller[callerID])
}

// Clear forgets everything tracked for a caller.
func (t *PendingTracker) Clear(callerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byCaller, callerID)
}
