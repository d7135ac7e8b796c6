package middleware

import (
	"context"
	"net/http"

	apiContext "checkvibe/internal/api/context"
	"checkvibe/internal/engine/authz"
	"checkvibe/internal/pkg/errors"
	"checkvibe/internal/platform/audit"
)

// Resolver turns a request into one trusted identity or a terminal denial.
type Resolver interface {
	Resolve(r *http.Request) (*authz.Resolution, *authz.Denial)
}

type AuthMiddleware struct {
	resolver Resolver
	audit    *audit.Logger
}

func NewAuthMiddleware(resolver Resolver, auditLogger *audit.Logger) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver, audit: auditLogger}
}

// Handle authenticates the request and stores the resolved context. Rate
// headers from the resolution are set on every successful response; denial
// headers carry them for 429s.
func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, denial := m.resolver.Resolve(r)
		if denial != nil {
			for k, v := range denial.Headers {
				w.Header().Set(k, v)
			}
			errors.WriteError(w, denial.Status, denial.Code, denial.Message, nil)
			return
		}

		for k, v := range res.RateHeaders {
			w.Header().Set(k, v)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx := context.WithValue(r.Context(), apiContext.Auth, res.Context)
		next(rec, r.WithContext(ctx))

		if m.audit != nil {
			m.audit.Record(audit.Entry{
				UserID:    res.Context.UserID,
				KeyID:     res.Context.KeyID,
				Method:    r.Method,
				Path:      r.URL.Path,
				Status:    rec.status,
				IPAddress: res.ClientIP,
				UserAgent: r.UserAgent(),
			})
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// AuthContext returns the identity stored by Handle.
func AuthContext(r *http.Request) *authz.Context {
	c, _ := r.Context().Value(apiContext.Auth).(*authz.Context)
	return c
}
