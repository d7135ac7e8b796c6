package main

import (
	"fmt"
	"log"
	"net/http"

	"checkvibe/internal/api"
	"checkvibe/internal/api/handlers"
	"checkvibe/internal/api/middleware"
	"checkvibe/internal/engine/authz"
	"checkvibe/internal/engine/dismissals"
	"checkvibe/internal/engine/ratelimit"
	"checkvibe/internal/pkg/logger"
	"checkvibe/internal/platform/audit"
	"checkvibe/internal/platform/auth"
	"checkvibe/internal/platform/config"
	"checkvibe/internal/platform/database"
	"checkvibe/internal/platform/repositories"

	zlog "github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)
	appLog := zlog.Logger

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Repositories
	profileRepo := repositories.NewProfileRepository(db)
	projectRepo := repositories.NewProjectRepository(db)
	scanRepo := repositories.NewScanRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	dismissalRepo := repositories.NewDismissalRepository(db)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	limiter := ratelimit.NewAggregator(ratelimit.NewSQLStore(db), cfg.RateLimit.WindowSeconds, appLog)
	resolver := authz.NewResolver(cfg.Internal.CronSecret, projectRepo, profileRepo, apiKeyRepo, tokenSvc, limiter, appLog)
	dismissalSvc := dismissals.NewService(dismissalRepo)
	auditLogger := audit.NewLogger(db, appLog)

	// Handlers
	authHandler := handlers.NewAuthHandler(profileRepo, tokenSvc)
	apiKeyHandler := handlers.NewAPIKeyHandler(apiKeyRepo)
	projectHandler := handlers.NewProjectHandler(projectRepo, profileRepo)
	scanHandler := handlers.NewScanHandler(scanRepo, projectRepo, profileRepo, dismissalRepo)
	dismissalHandler := handlers.NewDismissalHandler(dismissalSvc, projectRepo)
	healthHandler := handlers.NewHealthHandler(db)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(resolver, auditLogger)

	deps := &api.Dependencies{
		AuthHandler:      authHandler,
		APIKeyHandler:    apiKeyHandler,
		ProjectHandler:   projectHandler,
		ScanHandler:      scanHandler,
		DismissalHandler: dismissalHandler,
		HealthHandler:    healthHandler,
		AuthMiddleware:   authMiddleware,
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLog.Info().Str("addr", addr).Msg("server starting")
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
