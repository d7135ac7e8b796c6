package handlers

import (
	"encoding/json"
	"net/http"

	"checkvibe/internal/engine/dismissals"
	"checkvibe/internal/pkg/errors"
	"checkvibe/internal/platform/repositories"
)

type DismissalHandler struct {
	service  *dismissals.Service
	projects *repositories.ProjectRepository
}

func NewDismissalHandler(service *dismissals.Service, projects *repositories.ProjectRepository) *DismissalHandler {
	return &DismissalHandler{service: service, projects: projects}
}

type CreateDismissalRequest struct {
	ProjectID   string `json:"projectId"`
	ScanID      string `json:"scanId,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Reason      string `json:"reason"`
	Note        string `json:"note,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

func (h *DismissalHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	var req CreateDismissalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if !h.requireOwnedProject(w, r, req.ProjectID) {
		return
	}

	d, err := h.service.Dismiss(r.Context(), &dismissals.DismissRequest{
		UserID:      ctx.UserID,
		ProjectID:   req.ProjectID,
		ScanID:      req.ScanID,
		Fingerprint: req.Fingerprint,
		Reason:      req.Reason,
		Note:        req.Note,
		Scope:       req.Scope,
	})
	if err != nil {
		writeDismissalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(d)
}

type BulkDismissalRequest struct {
	ProjectID    string   `json:"projectId"`
	ScanID       string   `json:"scanId,omitempty"`
	Fingerprints []string `json:"fingerprints"`
	Reason       string   `json:"reason"`
	Note         string   `json:"note,omitempty"`
	Scope        string   `json:"scope,omitempty"`
}

// BulkCreate settles each fingerprint independently and reports per-entry
// outcomes, so a partial failure never hides which dismissals stuck.
func (h *DismissalHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	var req BulkDismissalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if len(req.Fingerprints) == 0 {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "At least one fingerprint is required", nil)
		return
	}
	if !h.requireOwnedProject(w, r, req.ProjectID) {
		return
	}

	set := dismissals.NewOptimisticSet(h.service, req.Fingerprints)
	committed := set.Apply(r.Context(), &dismissals.DismissRequest{
		UserID:    ctx.UserID,
		ProjectID: req.ProjectID,
		ScanID:    req.ScanID,
		Reason:    req.Reason,
		Note:      req.Note,
		Scope:     req.Scope,
	})

	response := struct {
		Committed int                 `json:"committed"`
		Entries   []*dismissals.Entry `json:"entries"`
	}{Committed: committed, Entries: set.Entries()}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *DismissalHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	err := h.service.Restore(r.Context(), param(r, "dismissal_id"), ctx.UserID)
	if err != nil {
		writeDismissalError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DismissalHandler) requireOwnedProject(w http.ResponseWriter, r *http.Request, projectID string) bool {
	ctx := authCtx(r)
	if projectID == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "projectId is required", nil)
		return false
	}
	ownerID, err := h.projects.GetOwnerID(r.Context(), projectID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return false
	}
	if ownerID == "" || ownerID != ctx.UserID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Project not found", nil)
		return false
	}
	return true
}

func writeDismissalError(w http.ResponseWriter, err error) {
	switch err {
	case dismissals.ErrNotFound:
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Dismissal not found", nil)
	case dismissals.ErrNotOwner:
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Dismissal belongs to another user", nil)
	case dismissals.ErrInvalidReason, dismissals.ErrInvalidScope, dismissals.ErrMissingField:
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
	default:
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to update dismissal", nil)
	}
}
