package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"checkvibe/internal/engine/keys"
	"checkvibe/internal/pkg/errors"
	"checkvibe/internal/platform/models"
	"checkvibe/internal/platform/repositories"
)

type APIKeyHandler struct {
	repo *repositories.APIKeyRepository
}

func NewAPIKeyHandler(repo *repositories.APIKeyRepository) *APIKeyHandler {
	return &APIKeyHandler{repo: repo}
}

type CreateKeyRequest struct {
	Name           string   `json:"name"`
	Scopes         []string `json:"scopes"`
	AllowedDomains []string `json:"allowed_domains"`
	AllowedIPs     []string `json:"allowed_ips"`
	ExpiresInDays  int      `json:"expires_in_days"`
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if req.Name == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Key name is required", nil)
		return
	}
	if len(req.Scopes) == 0 || !keys.ValidScopes(req.Scopes) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid scopes", map[string]interface{}{"valid_scopes": keys.Scopes})
		return
	}
	for _, d := range req.AllowedDomains {
		if !keys.ValidDomain(d) {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid domain: "+d, nil)
			return
		}
	}
	for _, entry := range req.AllowedIPs {
		if !keys.ValidIPOrCIDR(entry) {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid IP or CIDR: "+entry, nil)
			return
		}
	}

	rawKey := keys.Generate()
	apiKey := &models.APIKey{
		UserID:         ctx.UserID,
		Name:           req.Name,
		KeyHash:        keys.Hash(rawKey),
		KeyPrefix:      keys.DisplayPrefix(rawKey),
		Scopes:         req.Scopes,
		AllowedDomains: req.AllowedDomains,
		AllowedIPs:     req.AllowedIPs,
	}
	if req.ExpiresInDays > 0 {
		exp := time.Now().Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour).Unix()
		apiKey.ExpiresAt = &exp
	}

	if err := h.repo.Create(r.Context(), apiKey); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create key", nil)
		return
	}

	// The raw key is returned exactly once; only the hash is stored.
	response := struct {
		ID        string   `json:"id"`
		Key       string   `json:"key"`
		KeyPrefix string   `json:"key_prefix"`
		Name      string   `json:"name"`
		Scopes    []string `json:"scopes"`
		ExpiresAt *int64   `json:"expires_at,omitempty"`
		CreatedAt int64    `json:"created_at"`
	}{
		ID:        apiKey.ID,
		Key:       rawKey,
		KeyPrefix: apiKey.KeyPrefix,
		Name:      apiKey.Name,
		Scopes:    apiKey.Scopes,
		ExpiresAt: apiKey.ExpiresAt,
		CreatedAt: apiKey.CreatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	list, err := h.repo.ListByUser(r.Context(), ctx.UserID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list keys", nil)
		return
	}
	if list == nil {
		list = []*models.APIKey{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)
	keyID := param(r, "key_id")

	ok, err := h.repo.Revoke(r.Context(), keyID, ctx.UserID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to revoke key", nil)
		return
	}
	if !ok {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Key not found", nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
