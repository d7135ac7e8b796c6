package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"checkvibe/internal/platform/models"
)

type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = "proj_" + uuid.New().String()
	}
	now := time.Now().Unix()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, user_id, name, domain, scan_schedule, next_scan_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.Name, p.Domain, p.ScanSchedule, p.NextScanAt, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	p := &models.Project{}
	var nextScanAt sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, domain, scan_schedule, next_scan_at, created_at, updated_at
		FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.UserID, &p.Name, &p.Domain, &p.ScanSchedule, &nextScanAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if nextScanAt.Valid {
		p.NextScanAt = &nextScanAt.Int64
	}
	return p, nil
}

// GetOwnerID returns "" when the project does not exist.
func (r *ProjectRepository) GetOwnerID(ctx context.Context, projectID string) (string, error) {
	var ownerID string
	err := r.db.QueryRowContext(ctx, `SELECT user_id FROM projects WHERE id = ?`, projectID).Scan(&ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return ownerID, nil
}

func (r *ProjectRepository) ListByUser(ctx context.Context, userID string) ([]*models.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, domain, scan_schedule, next_scan_at, created_at, updated_at
		FROM projects WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p := &models.Project{UserID: userID}
		var nextScanAt sql.NullInt64
		if err := rows.Scan(&p.ID, &p.Name, &p.Domain, &p.ScanSchedule, &nextScanAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if nextScanAt.Valid {
			p.NextScanAt = &nextScanAt.Int64
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *ProjectRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// ListDueScheduled returns projects whose next scheduled scan time has passed.
func (r *ProjectRepository) ListDueScheduled(ctx context.Context, now int64) ([]*models.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, domain, scan_schedule, next_scan_at, created_at, updated_at
		FROM projects
		WHERE scan_schedule != '' AND next_scan_at IS NOT NULL AND next_scan_at <= ?
		ORDER BY next_scan_at ASC
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p := &models.Project{}
		var nextScanAt sql.NullInt64
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Domain, &p.ScanSchedule, &nextScanAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if nextScanAt.Valid {
			p.NextScanAt = &nextScanAt.Int64
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *ProjectRepository) UpdateNextScanAt(ctx context.Context, projectID string, nextScanAt int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE projects SET next_scan_at = ?, updated_at = ? WHERE id = ?`,
		nextScanAt, time.Now().Unix(), projectID)
	return err
}
