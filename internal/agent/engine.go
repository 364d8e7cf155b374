package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/frontlinehq/frontline/internal/domain"
	"github.com/frontlinehq/frontline/internal/service"
	"github.com/frontlinehq/frontline/internal/telemetry"
)

const genericApology = "I'm sorry, I'm having trouble answering right now. Let me check with my team and get back to you shortly."

// lastCheckMaxEntries caps the throttle map before stale entries are pruned.
const lastCheckMaxEntries = 1024

// DecisionClient produces a raw completion for a decision prompt.
type DecisionClient interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// UpdateChecker polls for resolutions delivered since the caller last asked.
type UpdateChecker interface {
	CheckUpdates(ctx context.Context, ids []string, callerID string) (*service.UpdateCheckResult, error)
}

// Tier is the three-way routing bucket derived from a confidence score
type Tier string

const (
	TierAnswer   Tier = "answer"
	TierClarify  Tier = "clarify"
	TierEscalate Tier = "escalate"
)

// Decision is the engine's answer for one caller turn
type Decision struct {
	Response         string
	ShouldEscalate   bool
	Confidence       float64
	HasUpdates       bool
	ResolvedRequests []*domain.Escalation
}

// Tier buckets the decision: >=0.8 direct answer, 0.4-0.79 clarification,
// below that (or an explicit escalate flag) the escalation path.
func (d Decision) Tier() Tier {
	if d.ShouldEscalate || d.Confidence < 0.4 {
		return TierEscalate
	}
	if d.Confidence >= 0.8 {
		return TierAnswer
	}
	return TierClarify
}

// EngineConfig tunes the decision pipeline
type EngineConfig struct {
	AgentName       string
	UpdateThrottle  time.Duration
	DecisionTimeout time.Duration
}

// Engine routes a caller question: resolved-update delivery first, then the
// deterministic matcher, then the generative decision service. Any upstream
// failure degrades to an apologetic escalate-by-default decision; the caller
// never sees a raw service error.
type Engine struct {
	cache   *KnowledgeCache
	matcher *Matcher
	checker UpdateChecker
	llm     DecisionClient

	agentName       string
	updateThrottle  time.Duration
	decisionTimeout time.Duration

	mu        sync.Mutex
	lastCheck map[string]time.Time
}

// NewEngine creates a decision engine. llm may be nil: questions the matcher
// cannot answer then escalate.
func NewEngine(cache *KnowledgeCache, matcher *Matcher, checker UpdateChecker, llm DecisionClient, cfg EngineConfig) *Engine {
	if cfg.AgentName == "" {
		cfg.AgentName = "AI Voice Receptionist"
	}
	if cfg.UpdateThrottle <= 0 {
		cfg.UpdateThrottle = 30 * time.Second
	}
	if cfg.DecisionTimeout <= 0 {
		cfg.DecisionTimeout = 12 * time.Second
	}
	return &Engine{
		cache:           cache,
		matcher:         matcher,
		checker:         checker,
		llm:             llm,
		agentName:       cfg.AgentName,
		updateThrottle:  cfg.UpdateThrottle,
		decisionTimeout: cfg.DecisionTimeout,
		lastCheck:       map[string]time.Time{},
	}
}

// Decide handles one caller turn.
func (e *Engine) Decide(ctx context.Context, message, callerID string) Decision {
	ctx, span := telemetry.StartSpan(ctx, "Engine.Decide", telemetry.SpanAttributes{
		CallerID:  callerID,
		Operation: "decide",
	})
	defer span.End()

	if d, ok := e.deliverResolved(ctx, callerID); ok {
		return d
	}

	snapshot := e.cache.Get(ctx, false)
	if match := e.matcher.Match(message, snapshot.Text); match.Matched {
		return Decision{
			Response:   match.Answer,
			Confidence: match.Confidence,
		}
	}

	if e.llm == nil {
		return Decision{Response: genericApology, ShouldEscalate: true, Confidence: 0.0}
	}

	llmCtx, cancel := context.WithTimeout(ctx, e.decisionTimeout)
	defer cancel()

	raw, err := e.llm.Complete(llmCtx, e.systemPrompt(snapshot.Text), message)
	if err != nil {
		log.Printf("decision service failed, escalating: %v", err)
		telemetry.CaptureError(ctx, err)
		return Decision{Response: genericApology, ShouldEscalate: true, Confidence: 0.0}
	}

	return parseDecision(raw)
}

// deliverResolved short-circuits the turn when a supervisor answered one of
// the caller's earlier escalations. Checks are throttled per caller.
func (e *Engine) deliverResolved(ctx context.Context, callerID string) (Decision, bool) {
	if callerID == "" || e.checker == nil {
		return Decision{}, false
	}

	e.mu.Lock()
	last := e.lastCheck[callerID]
	if time.Since(last) < e.updateThrottle {
		e.mu.Unlock()
		return Decision{}, false
	}
	e.lastCheck[callerID] = time.Now()
	if len(e.lastCheck) > lastCheckMaxEntries {
		e.pruneLastCheckLocked()
	}
	e.mu.Unlock()

	result, err := e.checker.CheckUpdates(ctx, nil, callerID)
	if err != nil {
		log.Printf("update check failed for caller %s: %v", callerID, err)
		return Decision{}, false
	}
	if !result.HasUpdates {
		return Decision{}, false
	}

	first := result.Resolved[0]
	return Decision{
		Response:         fmt.Sprintf("Good news! I checked with my team about your earlier question %q. %s", first.Question, first.Answer),
		Confidence:       0.9,
		HasUpdates:       true,
		ResolvedRequests: result.Resolved,
	}, true
}

// pruneLastCheckLocked drops timestamps past the throttle window. An expired
// entry behaves exactly like a missing one, so the prune is lossless. Caller
// must hold e.mu.
func (e *Engine) pruneLastCheckLocked() {
	for callerID, last := range e.lastCheck {
		if time.Since(last) >= e.updateThrottle {
			delete(e.lastCheck, callerID)
		}
	}
}

func (e *Engine) systemPrompt(snapshot string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a helpful and professional receptionist.\n\n", e.agentName)
	b.WriteString("Use ONLY the knowledge base below to answer. If the answer is not covered, lower your confidence.\n\n")
	b.WriteString("Knowledge base:\n")
	if snapshot == "" {
		b.WriteString("(empty)\n")
	} else {
		b.WriteString(snapshot)
	}
	b.WriteString("\nRespond with strict JSON only, no prose around it:\n")
	b.WriteString(`{"response": "<what to say to the caller>", "confidence": <0.0-1.0>, "shouldEscalate": <true|false>}`)
	return b.String()
}

// llmDecision is the structured payload the generative service is asked for
type llmDecision struct {
	Response       string  `json:"response"`
	Confidence     float64 `json:"confidence"`
	ShouldEscalate bool    `json:"shouldEscalate"`
}

// parseDecision extracts the structured decision. The service may wrap the
// JSON in code fences or surrounding prose; a payload that still cannot be
// parsed falls back to the raw text with low confidence and an escalate flag.
func parseDecision(raw string) Decision {
	candidate := strings.TrimSpace(raw)
	candidate = strings.TrimPrefix(candidate, "```json")
	candidate = strings.TrimPrefix(candidate, "```")
	candidate = strings.TrimSuffix(candidate, "```")

	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start >= 0 && end > start {
		var parsed llmDecision
		if err := json.Unmarshal([]byte(candidate[start:end+1]), &parsed); err == nil && parsed.Response != "" {
			confidence := parsed.Confidence
			if confidence < 0 {
				confidence = 0
			}
			if confidence > 1 {
				confidence = 1
			}
			return Decision{
				Response:       parsed.Response,
				ShouldEscalate: parsed.ShouldEscalate,
				Confidence:     confidence,
			}
		}
	}

	return Decision{Response: strings.TrimSpace(raw), ShouldEscalate: true, Confidence: 0.3}
}

// SafeFallback is the decision returned when the pipeline itself fails: a
// generic apology with no escalation, so a failing system does not mint
// bogus help requests.
func SafeFallback() Decision {
	return Decision{
		Response:       genericApology + " Please try again in a moment.",
		ShouldEscalate: false,
		Confidence:     0.0,
	}
}
