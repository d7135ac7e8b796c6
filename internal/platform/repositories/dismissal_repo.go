package repositories

import (
	"context"
	"database/sql"

	"checkvibe/internal/platform/models"
)

type DismissalRepository struct {
	db *sql.DB
}

func NewDismissalRepository(db *sql.DB) *DismissalRepository {
	return &DismissalRepository{db: db}
}

func (r *DismissalRepository) Create(ctx context.Context, d *models.Dismissal) error {
	var scanID any
	if d.ScanID != "" {
		scanID = d.ScanID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dismissals (id, user_id, project_id, scan_id, fingerprint, reason, note, scope, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.UserID, d.ProjectID, scanID, d.Fingerprint, d.Reason, d.Note, d.Scope, d.CreatedAt)
	return err
}

func (r *DismissalRepository) GetByID(ctx context.Context, id string) (*models.Dismissal, error) {
	d := &models.Dismissal{}
	var scanID sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, project_id, scan_id, fingerprint, reason, note, scope, created_at
		FROM dismissals WHERE id = ?
	`, id).Scan(&d.ID, &d.UserID, &d.ProjectID, &scanID, &d.Fingerprint, &d.Reason, &d.Note, &d.Scope, &d.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if scanID.Valid {
		d.ScanID = scanID.String
	}
	return d, nil
}

func (r *DismissalRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM dismissals WHERE id = ?`, id)
	return err
}

func (r *DismissalRepository) ListByProject(ctx context.Context, projectID string) ([]*models.Dismissal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, project_id, scan_id, fingerprint, reason, note, scope, created_at
		FROM dismissals WHERE project_id = ? ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Dismissal
	for rows.Next() {
		d := &models.Dismissal{}
		var scanID sql.NullString
		if err := rows.Scan(&d.ID, &d.UserID, &d.ProjectID, &scanID, &d.Fingerprint, &d.Reason, &d.Note, &d.Scope, &d.CreatedAt); err != nil {
			return nil, err
		}
		if scanID.Valid {
			d.ScanID = scanID.String
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// ListForScan returns the dismissals that apply to one scan: every
// project-scoped dismissal plus the scan-scoped ones pinned to it.
func (r *DismissalRepository) ListForScan(ctx context.Context, projectID, scanID string) ([]*models.Dismissal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, project_id, scan_id, fingerprint, reason, note, scope, created_at
		FROM dismissals
		WHERE project_id = ? AND (scope = ? OR (scope = ? AND scan_id = ?))
		ORDER BY created_at DESC
	`, projectID, models.DismissalScopeProject, models.DismissalScopeScan, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Dismissal
	for rows.Next() {
		d := &models.Dismissal{}
		var scanID sql.NullString
		if err := rows.Scan(&d.ID, &d.UserID, &d.ProjectID, &scanID, &d.Fingerprint, &d.Reason, &d.Note, &d.Scope, &d.CreatedAt); err != nil {
			return nil, err
		}
		if scanID.Valid {
			d.ScanID = scanID.String
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// FingerprintsForScan collects the dismissed fingerprints that apply to one
// scan: every project-scoped dismissal plus the scan-scoped ones pinned to it.
func (r *DismissalRepository) FingerprintsForScan(ctx context.Context, projectID, scanID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT fingerprint FROM dismissals
		WHERE project_id = ? AND (scope = ? OR (scope = ? AND scan_id = ?))
	`, projectID, models.DismissalScopeProject, models.DismissalScopeScan, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fps := make(map[string]struct{})
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		fps[fp] = struct{}{}
	}
	return fps, rows.Err()
}
