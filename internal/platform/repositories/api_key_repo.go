package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"checkvibe/internal/engine/authz"
	"checkvibe/internal/platform/models"
)

type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	if key.ID == "" {
		key.ID = "key_" + uuid.New().String()
	}
	key.CreatedAt = time.Now().Unix()

	scopesJSON, err := json.Marshal(key.Scopes)
	if err != nil {
		return err
	}
	domainsJSON, err := marshalNullable(key.AllowedDomains)
	if err != nil {
		return err
	}
	ipsJSON, err := marshalNullable(key.AllowedIPs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, allowed_domains, allowed_ips, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query, key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix,
		string(scopesJSON), domainsJSON, ipsJSON, key.CreatedAt, key.ExpiresAt)
	return err
}

// ValidateHash resolves a credential hash to the key joined with its owner's
// plan. Expired and revoked keys are filtered in SQL so the caller sees them
// exactly like unknown hashes.
func (r *APIKeyRepository) ValidateHash(ctx context.Context, keyHash string) (*authz.ValidatedKey, error) {
	query := `
		SELECT k.id, k.user_id, k.scopes, k.allowed_domains, k.allowed_ips,
		       p.plan, p.plan_scans_used, p.plan_scans_limit, p.plan_domains, p.allowed_domains
		FROM api_keys k
		JOIN profiles p ON p.id = k.user_id
		WHERE k.key_hash = ?
		  AND k.revoked_at IS NULL
		  AND (k.expires_at IS NULL OR k.expires_at > ?)
	`
	row := r.db.QueryRowContext(ctx, query, keyHash, time.Now().Unix())

	var vk authz.ValidatedKey
	var scopesStr string
	var keyDomains, keyIPs, userDomains sql.NullString

	err := row.Scan(&vk.KeyID, &vk.UserID, &scopesStr, &keyDomains, &keyIPs,
		&vk.Plan.Plan, &vk.Plan.ScansUsed, &vk.Plan.ScansLimit, &vk.Plan.Domains, &userDomains)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	json.Unmarshal([]byte(scopesStr), &vk.Scopes)
	vk.AllowedDomains = unmarshalNullable(keyDomains)
	vk.AllowedIPs = unmarshalNullable(keyIPs)
	if userDomains.Valid {
		json.Unmarshal([]byte(userDomains.String), &vk.Plan.AllowedDomains)
	}

	return &vk, nil
}

func (r *APIKeyRepository) ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	query := `
		SELECT id, name, key_prefix, scopes, allowed_domains, allowed_ips, last_used_at, created_at, expires_at, revoked_at
		FROM api_keys WHERE user_id = ? ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		var scopesStr string
		var domains, ips sql.NullString
		var lastUsedAt, expiresAt, revokedAt sql.NullInt64

		if err := rows.Scan(&k.ID, &k.Name, &k.KeyPrefix, &scopesStr, &domains, &ips, &lastUsedAt, &k.CreatedAt, &expiresAt, &revokedAt); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(scopesStr), &k.Scopes)
		k.AllowedDomains = unmarshalNullable(domains)
		k.AllowedIPs = unmarshalNullable(ips)
		if lastUsedAt.Valid {
			k.LastUsedAt = &lastUsedAt.Int64
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Int64
		}
		if revokedAt.Valid {
			k.RevokedAt = &revokedAt.Int64
		}
		k.UserID = userID
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// Revoke marks the key unusable. The user_id predicate keeps one account from
// revoking another's key by ID.
func (r *APIKeyRepository) Revoke(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = ? WHERE id = ? AND user_id = ? AND revoked_at IS NULL`,
		time.Now().Unix(), id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, time.Now().Unix(), id)
	return err
}

func marshalNullable(list []string) (any, error) {
	if list == nil {
		return nil, nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalNullable(col sql.NullString) []string {
	if !col.Valid || col.String == "" {
		return nil
	}
	var list []string
	json.Unmarshal([]byte(col.String), &list)
	return list
}
