package authz

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"checkvibe/internal/engine/keys"
	"checkvibe/internal/engine/ratelimit"
	"checkvibe/internal/pkg/errors"
	"checkvibe/internal/pkg/ipmatch"
)

// InternalSecretHeader authenticates the scheduled-scan worker. The secret is
// compared in constant time and must be at least 16 bytes long before any
// comparison is attempted.
const InternalSecretHeader = "X-Cron-Secret"

const minInternalSecretLen = 16

// PlanSnapshot is the quota view of one account at resolve time.
type PlanSnapshot struct {
	Plan           string
	ScansUsed      int
	ScansLimit     int
	Domains        int
	AllowedDomains []string
}

// ValidatedKey is the store's answer to a credential-hash lookup: the matched
// key joined with its owner's plan snapshot. A nil result means the hash is
// unknown, expired, or revoked; the three are indistinguishable by design.
type ValidatedKey struct {
	KeyID          string
	UserID         string
	Scopes         []string
	AllowedDomains []string
	AllowedIPs     []string
	Plan           PlanSnapshot
}

// Store contracts. All durable state lives behind these; the resolver holds
// no cross-request mutable state of its own.
type ProjectStore interface {
	// GetOwnerID returns "" when the project does not exist.
	GetOwnerID(ctx context.Context, projectID string) (string, error)
}

type ProfileStore interface {
	GetPlanSnapshot(ctx context.Context, userID string) (*PlanSnapshot, error)
}

type KeyStore interface {
	// ValidateHash returns nil for invalid, expired, or revoked hashes.
	ValidateHash(ctx context.Context, keyHash string) (*ValidatedKey, error)
}

// SessionVerifier extracts an already-authenticated principal, if any.
type SessionVerifier interface {
	Verify(r *http.Request) (userID string, err error)
}

// Resolution is a successful resolve: the trusted context plus the rate-limit
// headers the response must carry.
type Resolution struct {
	Context     *Context
	ClientIP    string
	RateHeaders map[string]string
}

type Resolver struct {
	internalSecret string
	projects       ProjectStore
	profiles       ProfileStore
	keys           KeyStore
	sessions       SessionVerifier
	limiter        *ratelimit.Aggregator
	log            zerolog.Logger
}

func NewResolver(
	internalSecret string,
	projects ProjectStore,
	profiles ProfileStore,
	keyStore KeyStore,
	sessions SessionVerifier,
	limiter *ratelimit.Aggregator,
	log zerolog.Logger,
) *Resolver {
	return &Resolver{
		internalSecret: internalSecret,
		projects:       projects,
		profiles:       profiles,
		keys:           keyStore,
		sessions:       sessions,
		limiter:        limiter,
		log:            log,
	}
}

var fullScanScopes = []string{keys.ScopeScanRead, keys.ScopeScanWrite}

// Resolve inspects a request and produces exactly one trusted identity or a
// terminal denial. Trust precedence: internal scheduler secret, then issued
// credential, then session. The first matching signal wins.
func (rs *Resolver) Resolve(r *http.Request) (*Resolution, *Denial) {
	ip := ClientIP(r)

	if secret := r.Header.Get(InternalSecretHeader); secret != "" {
		if rs.internalTrusted(secret) {
			return rs.resolveInternal(r, ip)
		}
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer "+keys.Prefix) {
		return rs.resolveCredential(r, strings.TrimPrefix(authHeader, "Bearer "), ip)
	}

	return rs.resolveSession(r, ip)
}

func (rs *Resolver) internalTrusted(secret string) bool {
	if len(rs.internalSecret) < minInternalSecretLen {
		return false
	}
	if len(secret) != len(rs.internalSecret) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(rs.internalSecret)) == 1
}

// resolveInternal trusts only the owner looked up from the request body's
// project ID, never an operator-supplied identity, so an internal caller
// cannot impersonate an arbitrary account via header injection.
func (rs *Resolver) resolveInternal(r *http.Request, ip string) (*Resolution, *Denial) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, deny(http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body")
	}
	// The handler still needs the body.
	r.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		ProjectID string `json:"projectId"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, deny(http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body")
	}
	if payload.ProjectID == "" {
		return nil, deny(http.StatusBadRequest, errors.ErrCodeInvalidInput, "Internal requests must include a projectId")
	}

	ownerID, err := rs.projects.GetOwnerID(r.Context(), payload.ProjectID)
	if err != nil || ownerID == "" {
		return nil, deny(http.StatusNotFound, errors.ErrCodeNotFound, "Project not found")
	}

	snapshot := rs.planSnapshot(r.Context(), ownerID)

	return &Resolution{
		Context: &Context{
			UserID:             ownerID,
			KeyID:              InternalKeyID,
			Scopes:             fullScanScopes,
			Plan:               snapshot.Plan,
			PlanScansUsed:      snapshot.ScansUsed,
			PlanScansLimit:     snapshot.ScansLimit,
			PlanDomains:        snapshot.Domains,
			UserAllowedDomains: snapshot.AllowedDomains,
		},
		ClientIP: ip,
	}, nil
}

func (rs *Resolver) resolveCredential(r *http.Request, rawKey, ip string) (*Resolution, *Denial) {
	validated, err := rs.keys.ValidateHash(r.Context(), keys.Hash(rawKey))
	if err != nil || validated == nil {
		// Lookup failures are indistinguishable from unknown keys so that
		// store errors never leak credential existence.
		if err != nil {
			rs.log.Error().Err(err).Msg("credential validation lookup failed")
		}
		return nil, deny(http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid or expired API key")
	}

	if len(validated.AllowedIPs) > 0 {
		matched := false
		for _, entry := range validated.AllowedIPs {
			if ipmatch.Matches(ip, entry) {
				matched = true
				break
			}
		}
		if !matched {
			return nil, deny(http.StatusForbidden, errors.ErrCodeForbidden, "Request from unauthorized IP address")
		}
	}

	decision := rs.limiter.CheckAll(r.Context(), ratelimit.CheckRequest{
		KeyID:  validated.KeyID,
		UserID: validated.UserID,
		IP:     ip,
		Plan:   validated.Plan.Plan,
	})
	if !decision.Allowed {
		return nil, &Denial{
			Status:  http.StatusTooManyRequests,
			Code:    errors.ErrCodeRateLimitExceeded,
			Message: "Rate limit exceeded",
			Headers: decision.Headers,
		}
	}

	return &Resolution{
		Context: &Context{
			UserID:             validated.UserID,
			KeyID:              validated.KeyID,
			Scopes:             validated.Scopes,
			KeyAllowedDomains:  validated.AllowedDomains,
			KeyAllowedIPs:      validated.AllowedIPs,
			Plan:               validated.Plan.Plan,
			PlanScansUsed:      validated.Plan.ScansUsed,
			PlanScansLimit:     validated.Plan.ScansLimit,
			PlanDomains:        validated.Plan.Domains,
			UserAllowedDomains: validated.Plan.AllowedDomains,
		},
		ClientIP:    ip,
		RateHeaders: decision.Headers,
	}, nil
}

func (rs *Resolver) resolveSession(r *http.Request, ip string) (*Resolution, *Denial) {
	userID, err := rs.sessions.Verify(r)
	if err != nil || userID == "" {
		return nil, deny(http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Unauthorized")
	}

	snapshot := rs.planSnapshot(r.Context(), userID)

	decision := rs.limiter.CheckAll(r.Context(), ratelimit.CheckRequest{
		UserID: userID,
		IP:     ip,
		Plan:   snapshot.Plan,
	})
	if !decision.Allowed {
		return nil, &Denial{
			Status:  http.StatusTooManyRequests,
			Code:    errors.ErrCodeRateLimitExceeded,
			Message: "Rate limit exceeded",
			Headers: decision.Headers,
		}
	}

	return &Resolution{
		Context: &Context{
			UserID:             userID,
			Plan:               snapshot.Plan,
			PlanScansUsed:      snapshot.ScansUsed,
			PlanScansLimit:     snapshot.ScansLimit,
			PlanDomains:        snapshot.Domains,
			UserAllowedDomains: snapshot.AllowedDomains,
		},
		ClientIP:    ip,
		RateHeaders: decision.Headers,
	}, nil
}

// planSnapshot tolerates profile lookup failures: a missing profile resolves
// to the zero-quota "none" plan rather than failing the request.
func (rs *Resolver) planSnapshot(ctx context.Context, userID string) PlanSnapshot {
	snapshot, err := rs.profiles.GetPlanSnapshot(ctx, userID)
	if err != nil || snapshot == nil {
		if err != nil {
			rs.log.Warn().Err(err).Str("user_id", userID).Msg("plan snapshot lookup failed")
		}
		return PlanSnapshot{Plan: "none", AllowedDomains: []string{}}
	}
	return *snapshot
}

// ClientIP extracts the caller address: the first X-Forwarded-For entry, then
// X-Real-Ip, then the connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "0.0.0.0"
}
