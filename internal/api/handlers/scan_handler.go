package handlers

import (
	"encoding/json"
	"net/http"

	"checkvibe/internal/engine/authz"
	"checkvibe/internal/engine/scans"
	"checkvibe/internal/pkg/errors"
	"checkvibe/internal/platform/models"
	"checkvibe/internal/platform/repositories"
)

type ScanHandler struct {
	scans      *repositories.ScanRepository
	projects   *repositories.ProjectRepository
	profiles   *repositories.ProfileRepository
	dismissals *repositories.DismissalRepository
}

func NewScanHandler(
	scanRepo *repositories.ScanRepository,
	projects *repositories.ProjectRepository,
	profiles *repositories.ProfileRepository,
	dismissalRepo *repositories.DismissalRepository,
) *ScanHandler {
	return &ScanHandler{scans: scanRepo, projects: projects, profiles: profiles, dismissals: dismissalRepo}
}

type TriggerScanRequest struct {
	ProjectID string `json:"projectId"`
}

// Trigger queues a new scan. Internal callers arrive already resolved to the
// project owner; everyone else must own the project outright.
func (h *ScanHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	var req TriggerScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProjectID == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "projectId is required", nil)
		return
	}

	project, err := h.projects.GetByID(r.Context(), req.ProjectID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if project == nil || project.UserID != ctx.UserID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Project not found", nil)
		return
	}

	if denial := authz.RequireDomain(ctx, project.Domain); denial != nil {
		errors.WriteError(w, denial.Status, denial.Code, denial.Message, nil)
		return
	}

	ok, err := h.profiles.IncrementScansUsed(r.Context(), ctx.UserID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if !ok {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeQuotaExceeded, "Monthly scan quota exhausted", nil)
		return
	}

	scan := &models.Scan{ProjectID: project.ID, UserID: project.UserID}
	if err := h.scans.Create(r.Context(), scan); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to queue scan", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(scan)
}

// scanView is a scan plus its dismissal-adjusted score.
type scanView struct {
	*models.Scan
	AdjustedScore *int `json:"adjusted_score,omitempty"`
}

func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	scan := h.ownedScan(w, r, ctx, param(r, "scan_id"))
	if scan == nil {
		return
	}

	view := scanView{Scan: scan}
	if scan.Status == models.ScanStatusCompleted && scan.Results != nil {
		var results scans.Results
		if err := json.Unmarshal(scan.Results, &results); err == nil {
			dismissed, err := h.dismissals.FingerprintsForScan(r.Context(), scan.ProjectID, scan.ID)
			if err == nil {
				adjusted := scans.AdjustedScore(results, dismissed)
				view.AdjustedScore = &adjusted
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

func (h *ScanHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	project, err := h.projects.GetByID(r.Context(), param(r, "project_id"))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if project == nil || project.UserID != ctx.UserID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Project not found", nil)
		return
	}

	list, err := h.scans.ListByProject(r.Context(), project.ID, 0)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if list == nil {
		list = []*models.Scan{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// Diff compares a completed scan against the project's previous completed
// scan. The first scan of a project diffs against nothing: everything is new.
func (h *ScanHandler) Diff(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	scan := h.ownedScan(w, r, ctx, param(r, "scan_id"))
	if scan == nil {
		return
	}
	if scan.Status != models.ScanStatusCompleted {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Scan has not completed", nil)
		return
	}

	var current scans.Results
	if err := json.Unmarshal(scan.Results, &current); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Stored results are unreadable", nil)
		return
	}

	previous := scans.Results{}
	prevScan, err := h.scans.GetPreviousCompleted(r.Context(), scan.ProjectID, scan.ID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if prevScan != nil && prevScan.Results != nil {
		json.Unmarshal(prevScan.Results, &previous)
	}

	diff := scans.ComputeDiff(current, previous)

	response := struct {
		ScanID         string     `json:"scan_id"`
		PreviousScanID string     `json:"previous_scan_id,omitempty"`
		Diff           scans.Diff `json:"diff"`
	}{ScanID: scan.ID, Diff: diff}
	if prevScan != nil {
		response.PreviousScanID = prevScan.ID
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ListDismissals returns every dismissal that applies to the scan: the
// project-scoped ones plus those pinned to this scan.
func (h *ScanHandler) ListDismissals(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	scan := h.ownedScan(w, r, ctx, param(r, "scan_id"))
	if scan == nil {
		return
	}

	list, err := h.dismissals.ListForScan(r.Context(), scan.ProjectID, scan.ID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if list == nil {
		list = []*models.Dismissal{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

type CompleteScanRequest struct {
	ProjectID string          `json:"projectId"`
	Results   json.RawMessage `json:"results"`
	Failed    bool            `json:"failed,omitempty"`
}

// Complete ingests scanner output. Only the internal scanning engine may call
// it; resolved credentials and sessions are refused regardless of scope.
func (h *ScanHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)
	if ctx.KeyID != authz.InternalKeyID {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Results ingestion is internal only", nil)
		return
	}

	var req CompleteScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	scan, err := h.scans.GetByID(r.Context(), param(r, "scan_id"))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if scan == nil || scan.ProjectID != req.ProjectID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Scan not found", nil)
		return
	}

	if req.Failed {
		if err := h.scans.MarkFailed(r.Context(), scan.ID); err != nil {
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to update scan", nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var results scans.Results
	if err := json.Unmarshal(req.Results, &results); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid results payload", nil)
		return
	}

	counts := scans.CountIssues(results)
	score := scans.AdjustedScore(results, nil)
	if err := h.scans.Complete(r.Context(), scan.ID, req.Results, score, counts); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to store results", nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownedScan loads a scan the caller may see, writing the error response and
// returning nil otherwise. Internal callers own whatever project they were
// resolved to.
func (h *ScanHandler) ownedScan(w http.ResponseWriter, r *http.Request, ctx *authz.Context, scanID string) *models.Scan {
	scan, err := h.scans.GetByID(r.Context(), scanID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return nil
	}
	if scan == nil || scan.UserID != ctx.UserID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Scan not found", nil)
		return nil
	}
	return scan
}
