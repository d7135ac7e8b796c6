package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"checkvibe/internal/engine/scans"
	"checkvibe/internal/platform/models"
)

type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

func (r *ScanRepository) Create(ctx context.Context, s *models.Scan) error {
	if s.ID == "" {
		s.ID = "scan_" + uuid.New().String()
	}
	if s.Status == "" {
		s.Status = models.ScanStatusQueued
	}
	s.CreatedAt = time.Now().Unix()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scans (id, project_id, user_id, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.ID, s.ProjectID, s.UserID, s.Status, s.CreatedAt)
	return err
}

func (r *ScanRepository) GetByID(ctx context.Context, id string) (*models.Scan, error) {
	s := &models.Scan{}
	var results sql.NullString
	var score sql.NullInt64
	var completedAt sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, user_id, status, results, score, critical, high, medium, low, total, created_at, completed_at
		FROM scans WHERE id = ?
	`, id).Scan(&s.ID, &s.ProjectID, &s.UserID, &s.Status, &results, &score,
		&s.Critical, &s.High, &s.Medium, &s.Low, &s.Total, &s.CreatedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if results.Valid {
		s.Results = []byte(results.String)
	}
	if score.Valid {
		v := int(score.Int64)
		s.Score = &v
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Int64
	}
	return s, nil
}

// ListByProject returns scans newest first, without the results blob.
func (r *ScanRepository) ListByProject(ctx context.Context, projectID string, limit int) ([]*models.Scan, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, status, score, critical, high, medium, low, total, created_at, completed_at
		FROM scans WHERE project_id = ? ORDER BY created_at DESC LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Scan
	for rows.Next() {
		s := &models.Scan{ProjectID: projectID}
		var score, completedAt sql.NullInt64
		if err := rows.Scan(&s.ID, &s.UserID, &s.Status, &score,
			&s.Critical, &s.High, &s.Medium, &s.Low, &s.Total, &s.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			s.Score = &v
		}
		if completedAt.Valid {
			s.CompletedAt = &completedAt.Int64
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// GetPreviousCompleted returns the newest completed scan of the project that
// finished strictly before the given scan, or nil when this is the first.
func (r *ScanRepository) GetPreviousCompleted(ctx context.Context, projectID, beforeScanID string) (*models.Scan, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM scans
		WHERE project_id = ? AND status = ? AND id != ?
		  AND created_at < (SELECT created_at FROM scans WHERE id = ?)
		ORDER BY created_at DESC LIMIT 1
	`, projectID, models.ScanStatusCompleted, beforeScanID, beforeScanID).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *ScanRepository) MarkRunning(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE scans SET status = ? WHERE id = ? AND status = ?`,
		models.ScanStatusRunning, id, models.ScanStatusQueued)
	return err
}

// Complete stores the findings blob with the derived counts and base score.
func (r *ScanRepository) Complete(ctx context.Context, id string, results []byte, score int, counts scans.IssueCounts) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scans SET status = ?, results = ?, score = ?, critical = ?, high = ?, medium = ?, low = ?, total = ?, completed_at = ?
		WHERE id = ?
	`, models.ScanStatusCompleted, string(results), score,
		counts.Critical, counts.High, counts.Medium, counts.Low, counts.Total,
		time.Now().Unix(), id)
	return err
}

func (r *ScanRepository) MarkFailed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE scans SET status = ?, completed_at = ? WHERE id = ?`,
		models.ScanStatusFailed, time.Now().Unix(), id)
	return err
}
