package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"checkvibe/internal/engine/authz"
	"checkvibe/internal/platform/models"
)

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Create(ctx context.Context, p *models.Profile) error {
	domainsJSON, err := json.Marshal(p.AllowedDomains)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, password_hash, full_name, plan, plan_scans_used, plan_scans_limit, plan_domains, allowed_domains, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Email, p.PasswordHash, p.FullName, p.Plan, p.PlanScansUsed, p.PlanScansLimit, p.PlanDomains, string(domainsJSON), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	return r.getBy(ctx, `WHERE id = ?`, id)
}

func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return r.getBy(ctx, `WHERE email = ?`, email)
}

func (r *ProfileRepository) getBy(ctx context.Context, where string, arg any) (*models.Profile, error) {
	p := &models.Profile{}
	var domainsStr sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, full_name, plan, plan_scans_used, plan_scans_limit, plan_domains, allowed_domains, created_at, updated_at
		FROM profiles `+where, arg,
	).Scan(&p.ID, &p.Email, &p.PasswordHash, &p.FullName, &p.Plan, &p.PlanScansUsed, &p.PlanScansLimit, &p.PlanDomains, &domainsStr, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if domainsStr.Valid {
		json.Unmarshal([]byte(domainsStr.String), &p.AllowedDomains)
	}
	if p.AllowedDomains == nil {
		p.AllowedDomains = []string{}
	}
	return p, nil
}

func (r *ProfileRepository) GetPlanSnapshot(ctx context.Context, userID string) (*authz.PlanSnapshot, error) {
	var s authz.PlanSnapshot
	var domainsStr sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT plan, plan_scans_used, plan_scans_limit, plan_domains, allowed_domains
		FROM profiles WHERE id = ?
	`, userID).Scan(&s.Plan, &s.ScansUsed, &s.ScansLimit, &s.Domains, &domainsStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if domainsStr.Valid {
		json.Unmarshal([]byte(domainsStr.String), &s.AllowedDomains)
	}
	if s.AllowedDomains == nil {
		s.AllowedDomains = []string{}
	}
	return &s, nil
}

// IncrementScansUsed burns one unit of the monthly scan quota. The predicate
// keeps the counter from passing the limit under concurrent triggers; false
// means the quota was already exhausted.
func (r *ProfileRepository) IncrementScansUsed(ctx context.Context, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET plan_scans_used = plan_scans_used + 1, updated_at = ?
		WHERE id = ? AND plan_scans_used < plan_scans_limit
	`, time.Now().Unix(), userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *ProfileRepository) AddAllowedDomain(ctx context.Context, userID, domain string) error {
	p, err := r.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if p == nil {
		return sql.ErrNoRows
	}
	for _, d := range p.AllowedDomains {
		if d == domain {
			return nil
		}
	}
	domainsJSON, err := json.Marshal(append(p.AllowedDomains, domain))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `UPDATE profiles SET allowed_domains = ?, updated_at = ? WHERE id = ?`,
		string(domainsJSON), time.Now().Unix(), userID)
	return err
}
