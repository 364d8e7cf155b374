package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/frontlinehq/frontline/internal/domain"
	"github.com/frontlinehq/frontline/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLLM returns a canned completion
type stubLLM struct {
	response string
	err      error
	calls    int
	prompt   string
}

func (s *stubLLM) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	s.calls++
	s.prompt = systemPrompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

// stubChecker returns canned update results
type stubChecker struct {
	result *service.UpdateCheckResult
	err    error
	calls  int
}

func (s *stubChecker) CheckUpdates(ctx context.Context, ids []string, callerID string) (*service.UpdateCheckResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func emptyChecker() *stubChecker {
	return &stubChecker{result: &service.UpdateCheckResult{Resolved: []*domain.Escalation{}}}
}

func newTestEngine(source SnapshotSource, checker UpdateChecker, llm DecisionClient) *Engine {
	cache := NewKnowledgeCache(source, 10, time.Minute)
	return NewEngine(cache, NewMatcher(), checker, llm, EngineConfig{})
}

func TestEngine_Decide_MatcherShortCircuit(t *testing.T) {
	source := &stubSource{entries: []*domain.KnowledgeEntry{
		entry("What are your opening hours?", "9am to 5pm."),
	}}
	llm := &stubLLM{response: `{"response": "ignored", "confidence": 0.9, "shouldEscalate": false}`}
	engine := newTestEngine(source, emptyChecker(), llm)

	d := engine.Decide(context.Background(), "What are your hours?", "caller-1")

	assert.Equal(t, "9am to 5pm.", d.Response)
	assert.False(t, d.ShouldEscalate)
	assert.InDelta(t, 0.7, d.Confidence, 1e-9)
	assert.Equal(t, 0, llm.calls)
}

func TestEngine_Decide_LLMPath(t *testing.T) {
	source := &stubSource{entries: []*domain.KnowledgeEntry{
		entry("What are your opening hours?", "9am to 5pm."),
	}}

	t.Run("parses structured decision", func(t *testing.T) {
		llm := &stubLLM{response: `{"response": "We accept most insurance plans.", "confidence": 0.85, "shouldEscalate": false}`}
		engine := newTestEngine(source, emptyChecker(), llm)

		d := engine.Decide(context.Background(), "do you accept insurance", "caller-1")

		assert.Equal(t, "We accept most insurance plans.", d.Response)
		assert.InDelta(t, 0.85, d.Confidence, 1e-9)
		assert.False(t, d.ShouldEscalate)
		assert.Contains(t, llm.prompt, "Q: What are your opening hours?")
	})

	t.Run("code-fenced payload still parses", func(t *testing.T) {
		llm := &stubLLM{response: "```json\n{\"response\": \"Yes we do.\", \"confidence\": 0.9, \"shouldEscalate\": false}\n```"}
		engine := newTestEngine(source, emptyChecker(), llm)

		d := engine.Decide(context.Background(), "do you accept insurance", "caller-1")

		assert.Equal(t, "Yes we do.", d.Response)
		assert.InDelta(t, 0.9, d.Confidence, 1e-9)
	})

	t.Run("unparseable payload falls back to raw text", func(t *testing.T) {
		llm := &stubLLM{response: "I think you should speak to a human about that."}
		engine := newTestEngine(source, emptyChecker(), llm)

		d := engine.Decide(context.Background(), "do you accept insurance", "caller-1")

		assert.Equal(t, "I think you should speak to a human about that.", d.Response)
		assert.True(t, d.ShouldEscalate)
		assert.InDelta(t, 0.3, d.Confidence, 1e-9)
	})

	t.Run("llm error escalates with zero confidence", func(t *testing.T) {
		llm := &stubLLM{err: errors.New("upstream 500")}
		engine := newTestEngine(source, emptyChecker(), llm)

		d := engine.Decide(context.Background(), "do you accept insurance", "caller-1")

		assert.True(t, d.ShouldEscalate)
		assert.Zero(t, d.Confidence)
		assert.Contains(t, d.Response, "check with my team")
	})

	t.Run("nil llm escalates unmatched questions", func(t *testing.T) {
		engine := newTestEngine(source, emptyChecker(), nil)

		d := engine.Decide(context.Background(), "do you accept insurance", "caller-1")

		assert.True(t, d.ShouldEscalate)
		assert.Zero(t, d.Confidence)
	})
}

func TestEngine_Decide_ResolvedDelivery(t *testing.T) {
	source := &stubSource{}

	t.Run("delivers resolved answer first", func(t *testing.T) {
		resolved := &domain.Escalation{
			ID:       "esc-1",
			Question: "Do you take walk-ins?",
			Answer:   "Yes, before 3pm.",
			Status:   domain.EscalationStatusResolved,
		}
		checker := &stubChecker{result: &service.UpdateCheckResult{
			Resolved:   []*domain.Escalation{resolved},
			HasUpdates: true,
		}}
		llm := &stubLLM{response: `{"response": "ignored", "confidence": 0.9, "shouldEscalate": false}`}
		engine := newTestEngine(source, checker, llm)

		d := engine.Decide(context.Background(), "anything", "caller-1")

		assert.True(t, d.HasUpdates)
		assert.Contains(t, d.Response, "Good news!")
		assert.Contains(t, d.Response, "Do you take walk-ins?")
		assert.Contains(t, d.Response, "Yes, before 3pm.")
		assert.InDelta(t, 0.9, d.Confidence, 1e-9)
		require.Len(t, d.ResolvedRequests, 1)
		assert.Equal(t, 0, llm.calls)
	})

	t.Run("checks are throttled per caller", func(t *testing.T) {
		checker := emptyChecker()
		llm := &stubLLM{response: `{"response": "ok", "confidence": 0.9, "shouldEscalate": false}`}
		engine := newTestEngine(source, checker, llm)

		engine.Decide(context.Background(), "first", "caller-1")
		engine.Decide(context.Background(), "second", "caller-1")
		engine.Decide(context.Background(), "third", "caller-2")

		assert.Equal(t, 2, checker.calls)
	})

	t.Run("checker failure falls through to normal flow", func(t *testing.T) {
		checker := &stubChecker{err: errors.New("db down")}
		llm := &stubLLM{response: `{"response": "ok", "confidence": 0.9, "shouldEscalate": false}`}
		engine := newTestEngine(source, checker, llm)

		d := engine.Decide(context.Background(), "anything", "caller-1")

		assert.Equal(t, "ok", d.Response)
		assert.False(t, d.HasUpdates)
	})

	t.Run("anonymous callers skip update check", func(t *testing.T) {
		checker := emptyChecker()
		llm := &stubLLM{response: `{"response": "ok", "confidence": 0.9, "shouldEscalate": false}`}
		engine := newTestEngine(source, checker, llm)

		engine.Decide(context.Background(), "anything", "")

		assert.Equal(t, 0, checker.calls)
	})

	t.Run("expired throttle entries are pruned", func(t *testing.T) {
		llm := &stubLLM{response: `{"response": "ok", "confidence": 0.9, "shouldEscalate": false}`}
		engine := newTestEngine(source, emptyChecker(), llm)

		engine.mu.Lock()
		expired := time.Now().Add(-2 * engine.updateThrottle)
		for i := 0; i < lastCheckMaxEntries+10; i++ {
			engine.lastCheck[fmt.Sprintf("old-caller-%d", i)] = expired
		}
		engine.lastCheck["fresh-caller"] = time.Now()
		engine.mu.Unlock()

		engine.Decide(context.Background(), "anything", "new-caller")

		engine.mu.Lock()
		defer engine.mu.Unlock()
		assert.Equal(t, 2, len(engine.lastCheck))
		assert.Contains(t, engine.lastCheck, "new-caller")
		assert.Contains(t, engine.lastCheck, "fresh-caller")
	})
}

func TestParseDecision(t *testing.T) {
	t.Run("clamps out-of-range confidence", func(t *testing.T) {
		d := parseDecision(`{"response": "hi", "confidence": 1.8, "shouldEscalate": false}`)
		assert.Equal(t, 1.0, d.Confidence)

		d = parseDecision(`{"response": "hi", "confidence": -0.2, "shouldEscalate": false}`)
		assert.Equal(t, 0.0, d.Confidence)
	})

	t.Run("surrounding prose stripped", func(t *testing.T) {
		d := parseDecision(`Sure, here you go: {"response": "hi", "confidence": 0.5, "shouldEscalate": true} hope that helps`)
		assert.Equal(t, "hi", d.Response)
		assert.True(t, d.ShouldEscalate)
	})

	t.Run("empty response field falls back", func(t *testing.T) {
		d := parseDecision(`{"confidence": 0.5, "shouldEscalate": false}`)
		assert.True(t, d.ShouldEscalate)
		assert.InDelta(t, 0.3, d.Confidence, 1e-9)
	})
}

func TestDecisionTier(t *testing.T) {
	assert.Equal(t, TierAnswer, Decision{Confidence: 0.8}.Tier())
	assert.Equal(t, TierAnswer, Decision{Confidence: 0.95}.Tier())
	assert.Equal(t, TierClarify, Decision{Confidence: 0.79}.Tier())
	assert.Equal(t, TierClarify, Decision{Confidence: 0.4}.Tier())
	assert.Equal(t, TierEscalate, Decision{Confidence: 0.39}.Tier())
	assert.Equal(t, TierEscalate, Decision{Confidence: 0.9, ShouldEscalate: true}.Tier())
}

func TestSafeFallback(t *testing.T) {
	d := SafeFallback()
	assert.False(t, d.ShouldEscalate)
	assert.Zero(t, d.Confidence)
	assert.NotEmpty(t, d.Response)
}
