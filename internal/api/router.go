package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "checkvibe/internal/api/context"
	"checkvibe/internal/api/handlers"
	"checkvibe/internal/api/middleware"
	"checkvibe/internal/engine/authz"
	"checkvibe/internal/engine/keys"
	"checkvibe/internal/pkg/errors"
)

type Dependencies struct {
	AuthHandler      *handlers.AuthHandler
	APIKeyHandler    *handlers.APIKeyHandler
	ProjectHandler   *handlers.ProjectHandler
	ScanHandler      *handlers.ScanHandler
	DismissalHandler *handlers.DismissalHandler
	HealthHandler    *handlers.HealthHandler
	AuthMiddleware   *middleware.AuthMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/healthz", wrap(deps.HealthHandler.Check))

	// Authentication routes
	router.POST("/api/v1/auth/signup", wrap(deps.AuthHandler.Signup))
	router.POST("/api/v1/auth/login", wrap(deps.AuthHandler.Login))
	router.POST("/api/v1/auth/logout", wrap(deps.AuthHandler.Logout))

	authMid := deps.AuthMiddleware

	router.GET("/api/v1/auth/me",
		chain(deps.AuthHandler.Me, authMid.Handle))

	// API key management
	router.POST("/api/v1/keys",
		chain(deps.APIKeyHandler.Create, authMid.Handle, requireScope(keys.ScopeKeysManage)))
	router.GET("/api/v1/keys",
		chain(deps.APIKeyHandler.List, authMid.Handle, requireScope(keys.ScopeKeysRead)))
	router.DELETE("/api/v1/keys/:key_id",
		chain(deps.APIKeyHandler.Revoke, authMid.Handle, requireScope(keys.ScopeKeysManage)))

	// Projects
	router.POST("/api/v1/projects",
		chain(deps.ProjectHandler.Create, authMid.Handle))
	router.GET("/api/v1/projects",
		chain(deps.ProjectHandler.List, authMid.Handle))
	router.GET("/api/v1/projects/:project_id",
		chain(deps.ProjectHandler.Get, authMid.Handle))
	router.GET("/api/v1/projects/:project_id/scans",
		chain(deps.ScanHandler.ListByProject, authMid.Handle, requireScope(keys.ScopeScanRead)))

	// Scans
	router.POST("/api/v1/scans",
		chain(deps.ScanHandler.Trigger, authMid.Handle, requireScope(keys.ScopeScanWrite)))
	router.GET("/api/v1/scans/:scan_id",
		chain(deps.ScanHandler.Get, authMid.Handle, requireScope(keys.ScopeScanRead)))
	router.GET("/api/v1/scans/:scan_id/diff",
		chain(deps.ScanHandler.Diff, authMid.Handle, requireScope(keys.ScopeScanRead)))
	router.GET("/api/v1/scans/:scan_id/dismissals",
		chain(deps.ScanHandler.ListDismissals, authMid.Handle, requireScope(keys.ScopeScanRead)))
	router.POST("/api/v1/scans/:scan_id/results",
		chain(deps.ScanHandler.Complete, authMid.Handle))

	// Dismissals
	router.POST("/api/v1/dismissals",
		chain(deps.DismissalHandler.Create, authMid.Handle))
	router.POST("/api/v1/dismissals/bulk",
		chain(deps.DismissalHandler.BulkCreate, authMid.Handle))
	router.DELETE("/api/v1/dismissals/:dismissal_id",
		chain(deps.DismissalHandler.Restore, authMid.Handle))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireScope(scope string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authCtx, _ := r.Context().Value(apiContext.Auth).(*authz.Context)
			if authCtx == nil {
				errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Unauthorized", nil)
				return
			}
			if denial := authz.RequireScope(authCtx, scope); denial != nil {
				errors.WriteError(w, denial.Status, denial.Code, denial.Message, nil)
				return
			}
			next(w, r)
		}
	}
}
