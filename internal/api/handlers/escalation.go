package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/frontlinehq/frontline/internal/api"
	"github.com/frontlinehq/frontline/internal/domain"
	"github.com/frontlinehq/frontline/internal/service"
	"github.com/go-chi/chi/v5"
)

type EscalationService interface {
	Create(ctx context.Context, input service.CreateEscalationInput) (*service.CreateEscalationOutput, error)
	GetByID(ctx context.Context, id string) (*domain.Escalation, error)
	List(ctx context.Context, filter service.EscalationFilter, cursor string, limit int) (*service.EscalationPageResult, error)
	Resolve(ctx context.Context, id, answer, resolvedBy string, learn bool) (*domain.Escalation, error)
	MarkUnresolved(ctx context.Context, id string) (*domain.Escalation, error)
	CheckUpdates(ctx context.Context, ids []string, callerID string) (*service.UpdateCheckResult, error)
}

type EscalationHandler struct {
	svc EscalationService
}

func NewEscalationHandler(svc EscalationService) *EscalationHandler {
	return &EscalationHandler{svc: svc}
}

type CreateEscalationRequest struct {
	CallerID    string         `json:"caller_id"`
	CallerPhone string         `json:"caller_phone,omitempty"`
	Question    string         `json:"question"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type ResolveEscalationRequest struct {
	Answer     string `json:"answer"`
	ResolvedBy string `json:"resolved_by"`
	Learn      bool   `json:"learn"`
}

type CheckUpdatesRequest struct {
	EscalationIDs []string `json:"escalation_ids"`
	CallerID      string   `json:"caller_id"`
}

type EscalationResponse struct {
	ID          string         `json:"id"`
	CallerID    string         `json:"caller_id,omitempty"`
	CallerPhone string         `json:"caller_phone,omitempty"`
	Question    string         `json:"question"`
	Status      string         `json:"status"`
	Answer      string         `json:"answer,omitempty"`
	ResolvedBy  string         `json:"resolved_by,omitempty"`
	TimeoutAt   string         `json:"timeout_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

func escalationToResponse(e *domain.Escalation) *EscalationResponse {
	resp := &EscalationResponse{
		ID:          e.ID,
		CallerID:    e.CallerID,
		CallerPhone: e.CallerPhone,
		Question:    e.Question,
		Status:      string(e.Status),
		Answer:      e.Answer,
		ResolvedBy:  e.ResolvedBy,
		Metadata:    e.Metadata,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if e.TimeoutAt != nil {
		resp.TimeoutAt = e.TimeoutAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type CreateEscalationResponse struct {
	Escalation *EscalationResponse `json:"escalation"`
	Duplicate  bool                `json:"duplicate"`
	Message    string              `json:"message,omitempty"`
}

func (h *EscalationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEscalationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Question == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}

	input := service.CreateEscalationInput{
		CallerID:    req.CallerID,
		CallerPhone: req.CallerPhone,
		Question:    req.Question,
		Metadata:    req.Metadata,
	}

	output, err := h.svc.Create(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	status := http.StatusCreated
	if output.Duplicate {
		status = http.StatusOK
	}

	api.Success(w, status, CreateEscalationResponse{
		Escalation: escalationToResponse(output.Escalation),
		Duplicate:  output.Duplicate,
		Message:    output.Message,
	})
}

func (h *EscalationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	escalation, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, escalationToResponse(escalation))
}

type EscalationListResponse struct {
	Items   []*EscalationResponse `json:"items"`
	Cursor  string                `json:"cursor,omitempty"`
	HasMore bool                  `json:"has_more"`
}

func (h *EscalationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !isValidStatusFilter(domain.EscalationStatus(status)) {
		api.Error(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	filter := service.EscalationFilter{
		Status:   domain.EscalationStatus(status),
		CallerID: r.URL.Query().Get("caller_id"),
	}
	cursor := r.URL.Query().Get("cursor")
	limit := parseLimit(r.URL.Query().Get("limit"), 20)

	page, err := h.svc.List(r.Context(), filter, cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*EscalationResponse, len(page.Items))
	for i, e := range page.Items {
		responses[i] = escalationToResponse(e)
	}

	api.Success(w, http.StatusOK, EscalationListResponse{
		Items:   responses,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	})
}

func (h *EscalationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req ResolveEscalationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Answer == "" {
		api.Error(w, http.StatusBadRequest, "answer is required")
		return
	}
	if req.ResolvedBy == "" {
		api.Error(w, http.StatusBadRequest, "resolved_by is required")
		return
	}

	escalation, err := h.svc.Resolve(r.Context(), id, req.Answer, req.ResolvedBy, req.Learn)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, escalationToResponse(escalation))
}

func (h *EscalationHandler) Timeout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	escalation, err := h.svc.MarkUnresolved(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, escalationToResponse(escalation))
}

type CheckUpdatesResponse struct {
	Resolved   []*EscalationResponse `json:"resolved"`
	HasUpdates bool                  `json:"has_updates"`
}

func (h *EscalationHandler) CheckUpdates(w http.ResponseWriter, r *http.Request) {
	var req CheckUpdatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.EscalationIDs) == 0 && req.CallerID == "" {
		api.Error(w, http.StatusBadRequest, "escalation_ids or caller_id is required")
		return
	}

	result, err := h.svc.CheckUpdates(r.Context(), req.EscalationIDs, req.CallerID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*EscalationResponse, len(result.Resolved))
	for i, e := range result.Resolved {
		responses[i] = escalationToResponse(e)
	}

	api.Success(w, http.StatusOK, CheckUpdatesResponse{
		Resolved:   responses,
		HasUpdates: result.HasUpdates,
	})
}

func isValidStatusFilter(s domain.EscalationStatus) bool {
	switch s {
	case domain.EscalationStatusPending, domain.EscalationStatusResolved, domain.EscalationStatusUnresolved:
		return true
	}
	return false
}
