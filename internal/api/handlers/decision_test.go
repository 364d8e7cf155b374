package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/frontlinehq/frontline/internal/agent"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngine returns a fixed decision, or panics when told to
type stubEngine struct {
	decision agent.Decision
	panics   bool
}

func (s *stubEngine) Decide(ctx context.Context, message, callerID string) agent.Decision {
	if s.panics {
		panic("nil snapshot")
	}
	return s.decision
}

// stubRebuilder records rebuild calls
type stubRebuilder struct {
	callers []string
	err     error
}

func (s *stubRebuilder) RebuildTracker(ctx context.Context, callerID string) error {
	s.callers = append(s.callers, callerID)
	return s.err
}

func decisionRouter(engine DecisionEngine, rebuilder TrackerRebuilder) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/agent/decide", NewDecisionHandler(engine, rebuilder).Decide)
	return r
}

func TestDecisionHandler_Decide(t *testing.T) {
	t.Run("returns engine decision", func(t *testing.T) {
		engine := &stubEngine{decision: agent.Decision{
			Response:   "We are open 9am to 5pm.",
			Confidence: 0.85,
		}}
		rebuilder := &stubRebuilder{}

		rec := doJSON(t, decisionRouter(engine, rebuilder), http.MethodPost, "/agent/decide", DecideRequest{
			Message:  "what are your hours",
			CallerID: "caller-1",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"caller-1"}, rebuilder.callers)

		var envelope struct {
			Data DecideResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
		assert.Equal(t, "We are open 9am to 5pm.", envelope.Data.Response)
		assert.Equal(t, string(agent.TierAnswer), envelope.Data.Tier)
		assert.False(t, envelope.Data.ShouldEscalate)
	})

	t.Run("missing message rejected", func(t *testing.T) {
		rec := doJSON(t, decisionRouter(&stubEngine{}, nil), http.MethodPost, "/agent/decide", DecideRequest{CallerID: "caller-1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("anonymous caller skips rebuild", func(t *testing.T) {
		rebuilder := &stubRebuilder{}

		rec := doJSON(t, decisionRouter(&stubEngine{}, rebuilder), http.MethodPost, "/agent/decide", DecideRequest{Message: "hello"})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rebuilder.callers)
	})

	t.Run("rebuild failure is not fatal", func(t *testing.T) {
		engine := &stubEngine{decision: agent.Decision{Response: "ok", Confidence: 0.9}}
		rebuilder := &stubRebuilder{err: errors.New("db down")}

		rec := doJSON(t, decisionRouter(engine, rebuilder), http.MethodPost, "/agent/decide", DecideRequest{
			Message:  "hello",
			CallerID: "caller-1",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("engine panic yields safe fallback", func(t *testing.T) {
		rec := doJSON(t, decisionRouter(&stubEngine{panics: true}, nil), http.MethodPost, "/agent/decide", DecideRequest{
			Message:  "hello",
			CallerID: "caller-1",
		})

		require.Equal(t, http.StatusOK, rec.Code)

		var envelope struct {
			Data DecideResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))

		fallback := agent.SafeFallback()
		assert.Equal(t, fallback.Response, envelope.Data.Response)
		assert.False(t, envelope.Data.ShouldEscalate)
		assert.Zero(t, envelope.Data.Confidence)
	})
}
