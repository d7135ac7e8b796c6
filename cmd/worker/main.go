package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"

	"checkvibe/internal/pkg/logger"
	"checkvibe/internal/platform/config"
	"checkvibe/internal/platform/database"
	"checkvibe/internal/platform/repositories"
	"checkvibe/internal/workers"
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

	interval := cfg.Worker.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}

	scheduler := workers.NewScheduler(
		repositories.NewProjectRepository(db),
		cfg.Worker.APIBaseURL,
		cfg.Internal.CronSecret,
		appLog,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLog.Info().Dur("interval", interval).Msg("scheduled scan worker starting")
	scheduler.Run(ctx, interval)
}
