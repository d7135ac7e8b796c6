// Package workers runs the scheduled-scan loop: it finds projects whose next
// scan time has passed and triggers each one through the public API using the
// internal scheduler secret.
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"checkvibe/internal/engine/authz"
	"checkvibe/internal/platform/repositories"
)

type Scheduler struct {
	projects   *repositories.ProjectRepository
	apiBaseURL string
	cronSecret string
	client     *http.Client
	log        zerolog.Logger
}

func NewScheduler(projects *repositories.ProjectRepository, apiBaseURL, cronSecret string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		projects:   projects,
		apiBaseURL: apiBaseURL,
		cronSecret: cronSecret,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick triggers every due project once. A failed trigger is still
// rescheduled, so a dead API cannot pile up an unbounded backlog.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now()
	due, err := s.projects.ListDueScheduled(ctx, now.Unix())
	if err != nil {
		s.log.Error().Err(err).Msg("due project listing failed")
		return
	}

	for _, project := range due {
		if err := s.trigger(ctx, project.ID); err != nil {
			s.log.Error().Err(err).Str("project_id", project.ID).Msg("scheduled scan trigger failed")
		} else {
			s.log.Info().Str("project_id", project.ID).Str("schedule", project.ScanSchedule).Msg("scheduled scan triggered")
		}

		next := nextRun(project.ScanSchedule, now)
		if err := s.projects.UpdateNextScanAt(ctx, project.ID, next); err != nil {
			s.log.Error().Err(err).Str("project_id", project.ID).Msg("reschedule failed")
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, projectID string) error {
	body, err := json.Marshal(map[string]string{"projectId": projectID})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBaseURL+"/api/v1/scans", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authz.InternalSecretHeader, s.cronSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func nextRun(schedule string, from time.Time) int64 {
	if schedule == "weekly" {
		return from.Add(7 * 24 * time.Hour).Unix()
	}
	return from.Add(24 * time.Hour).Unix()
}
