package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/frontlinehq/frontline/internal/agent"
	"github.com/frontlinehq/frontline/internal/api"
	"github.com/frontlinehq/frontline/internal/telemetry"
)

// DecisionEngine decides what to say for one caller turn.
type DecisionEngine interface {
	Decide(ctx context.Context, message, callerID string) agent.Decision
}

// TrackerRebuilder restores the pending index for a caller after restarts.
type TrackerRebuilder interface {
	RebuildTracker(ctx context.Context, callerID string) error
}

type DecisionHandler struct {
	engine    DecisionEngine
	rebuilder TrackerRebuilder
}

func NewDecisionHandler(engine DecisionEngine, rebuilder TrackerRebuilder) *DecisionHandler {
	return &DecisionHandler{engine: engine, rebuilder: rebuilder}
}

type DecideRequest struct {
	Message  string `json:"message"`
	CallerID string `json:"caller_id"`
}

type DecideResponse struct {
	Response         string                `json:"response"`
	ShouldEscalate   bool                  `json:"should_escalate"`
	Confidence       float64               `json:"confidence"`
	Tier             string                `json:"tier"`
	HasUpdates       bool                  `json:"has_updates"`
	ResolvedRequests []*EscalationResponse `json:"resolved_requests,omitempty"`
}

func decisionToResponse(d agent.Decision) DecideResponse {
	resp := DecideResponse{
		Response:       d.Response,
		ShouldEscalate: d.ShouldEscalate,
		Confidence:     d.Confidence,
		Tier:           string(d.Tier()),
		HasUpdates:     d.HasUpdates,
	}
	for _, e := range d.ResolvedRequests {
		resp.ResolvedRequests = append(resp.ResolvedRequests, escalationToResponse(e))
	}
	return resp
}

// Decide never returns an error status for pipeline failures. A panic inside
// the engine becomes the safe fallback decision so the voice channel always
// gets something speakable.
func (h *DecisionHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Message == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	if h.rebuilder != nil && req.CallerID != "" {
		if err := h.rebuilder.RebuildTracker(r.Context(), req.CallerID); err != nil {
			log.Printf("tracker rebuild failed for caller %s: %v", req.CallerID, err)
		}
	}

	decision := h.safeDecide(r.Context(), req.Message, req.CallerID)
	api.Success(w, http.StatusOK, decisionToResponse(decision))
}

func (h *DecisionHandler) safeDecide(ctx context.Context, message, callerID string) (d agent.Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("decision pipeline panic for caller %s: %v", callerID, rec)
			telemetry.CaptureError(ctx, fmt.Errorf("decision pipeline panic: %v", rec))
			d = agent.SafeFallback()
		}
	}()
	return h.engine.Decide(ctx, message, callerID)
}
