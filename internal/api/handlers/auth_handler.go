package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"checkvibe/internal/pkg/errors"
	"checkvibe/internal/pkg/validator"
	"checkvibe/internal/platform/auth"
	"checkvibe/internal/platform/models"
	"checkvibe/internal/platform/repositories"
)

// Free-tier defaults applied at signup. Paid plans overwrite these when the
// billing integration updates the profile.
const (
	freePlanScansLimit = 5
	freePlanDomains    = 1
)

type AuthHandler struct {
	profiles *repositories.ProfileRepository
	tokenSvc *auth.TokenService
}

func NewAuthHandler(profiles *repositories.ProfileRepository, tokenSvc *auth.TokenService) *AuthHandler {
	return &AuthHandler{profiles: profiles, tokenSvc: tokenSvc}
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type SessionResponse struct {
	User        *models.Profile `json:"user"`
	AccessToken string          `json:"access_token"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validator.IsValidEmail(req.Email); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if err := validator.ValidatePassword(req.Password); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	existing, err := h.profiles.GetByEmail(r.Context(), req.Email)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if existing != nil {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "An account with this email already exists", nil)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to hash password", nil)
		return
	}

	now := time.Now().Unix()
	profile := &models.Profile{
		ID:             "usr_" + uuid.NewString(),
		Email:          req.Email,
		PasswordHash:   string(hashedPassword),
		FullName:       req.FullName,
		Plan:           "none",
		PlanScansLimit: freePlanScansLimit,
		PlanDomains:    freePlanDomains,
		AllowedDomains: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.profiles.Create(r.Context(), profile); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create account", nil)
		return
	}

	h.writeSession(w, profile, http.StatusCreated)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	profile, err := h.profiles.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	// A missing account and a wrong password produce the same answer.
	if profile == nil || bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(req.Password)) != nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid email or password", nil)
		return
	}

	h.writeSession(w, profile, http.StatusOK)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated account's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := authCtx(r)

	profile, err := h.profiles.GetByID(r.Context(), ctx.UserID)
	if err != nil || profile == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Account not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profile)
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, profile *models.Profile, status int) {
	token, err := h.tokenSvc.GenerateAccessToken(profile.ID, profile.Email)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to issue token", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(SessionResponse{User: profile, AccessToken: token})
}
