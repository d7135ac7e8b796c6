package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"checkvibe/internal/engine/keys"
	"checkvibe/internal/pkg/errors"
	"checkvibe/internal/platform/models"
	"checkvibe/internal/platform/repositories"
)

type ProjectHandler struct {
	projects *repositories.ProjectRepository
	profiles *repositories.ProfileRepository
}

func NewProjectHandler(projects *repositories.ProjectRepository, profiles *repositories.ProfileRepository) *ProjectHandler {
	return &ProjectHandler{projects: projects, profiles: profiles}
}

type CreateProjectRequest struct {
	Name         string `json:"name"`
	Domain       string `json:"domain"`
	ScanSchedule string `json:"scan_schedule"`
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	req.Domain = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(req.Domain), "."))
	if req.Name == "" || req.Domain == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Name and domain are required", nil)
		return
	}
	if !keys.ValidDomain(req.Domain) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid domain", nil)
		return
	}
	if req.ScanSchedule != "" && req.ScanSchedule != "daily" && req.ScanSchedule != "weekly" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Scan schedule must be daily or weekly", nil)
		return
	}

	count, err := h.projects.CountByUser(r.Context(), ctx.UserID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if count >= ctx.PlanDomains {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeQuotaExceeded, "Domain limit reached for your plan", nil)
		return
	}

	project := &models.Project{
		UserID:       ctx.UserID,
		Name:         req.Name,
		Domain:       req.Domain,
		ScanSchedule: req.ScanSchedule,
	}
	if req.ScanSchedule != "" {
		next := nextScanTime(req.ScanSchedule, time.Now())
		project.NextScanAt = &next
	}

	if err := h.projects.Create(r.Context(), project); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create project", nil)
		return
	}

	// The project's domain joins the account allow list so restricted keys
	// can be scoped to it.
	if err := h.profiles.AddAllowedDomain(r.Context(), ctx.UserID, req.Domain); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to register domain", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(project)
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	project, err := h.projects.GetByID(r.Context(), param(r, "project_id"))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	// Another account's project is indistinguishable from a missing one.
	if project == nil || project.UserID != ctx.UserID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Project not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(project)
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	list, err := h.projects.ListByUser(r.Context(), ctx.UserID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if list == nil {
		list = []*models.Project{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func nextScanTime(schedule string, from time.Time) int64 {
	if schedule == "weekly" {
		return from.Add(7 * 24 * time.Hour).Unix()
	}
	return from.Add(24 * time.Hour).Unix()
}
