package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/frontlinehq/frontline/internal/domain"
)

// SnapshotSource lists recent knowledge entries for the snapshot.
type SnapshotSource interface {
	ListRecent(ctx context.Context, limit int) ([]*domain.KnowledgeEntry, error)
}

// Snapshot is an immutable rendering of the knowledge base used as matcher
// input and generative-service context.
type Snapshot struct {
	Text       string
	EntryCount int
	RenderedAt time.Time
}

// KnowledgeCache holds a time-bounded snapshot of the newest N knowledge
// entries. A failed refresh serves the previous snapshot instead of
// erroring: availability over freshness. Concurrent refreshes may run
// redundantly; the store is read-only here so that only costs extra reads.
type KnowledgeCache struct {
	source SnapshotSource
	limit  int
	ttl    time.Duration

	mu       sync.RWMutex
	snapshot Snapshot
}

func NewKnowledgeCache(source SnapshotSource, limit int, ttl time.Duration) *KnowledgeCache {
	if limit <= 0 {
		limit = 100
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &KnowledgeCache{source: source, limit: limit, ttl: ttl}
}

// Get returns the current snapshot, refreshing it when older than the TTL
// or when forceRefresh is set.
func (c *KnowledgeCache) Get(ctx context.Context, forceRefresh bool) Snapshot {
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()

	if !forceRefresh && !snap.RenderedAt.IsZero() && time.Since(snap.RenderedAt) < c.ttl {
		return snap
	}

	entries, err := c.source.ListRecent(ctx, c.limit)
	if err != nil {
		log.Printf("knowledge snapshot refresh failed, serving stale: %v", err)
		return snap
	}

	fresh := Snapshot{
		Text:       RenderSnapshot(entries),
		EntryCount: len(entries),
		RenderedAt: time.Now().UTC(),
	}

	c.mu.Lock()
	c.snapshot = fresh
	c.mu.Unlock()

	return fresh
}

// RenderSnapshot renders entries into the Q/A block convention the matcher
// and the generative prompt both consume.
func RenderSnapshot(entries []*domain.KnowledgeEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", e.Question, e.Answer)
	}
	return b.String()
}
