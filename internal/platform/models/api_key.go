package models

type APIKey struct {
	ID             string   `json:"id"`
	UserID         string   `json:"user_id"`
	Name           string   `json:"name"`
	KeyHash        string   `json:"-"`
	KeyPrefix      string   `json:"key_prefix"`
	Scopes         []string `json:"scopes"`                    // JSON array in DB
	AllowedDomains []string `json:"allowed_domains,omitempty"` // JSON array, nil = unrestricted
	AllowedIPs     []string `json:"allowed_ips,omitempty"`     // JSON array, nil = unrestricted
	LastUsedAt     *int64   `json:"last_used_at,omitempty"`
	ExpiresAt      *int64   `json:"expires_at,omitempty"`
	CreatedAt      int64    `json:"created_at"`
	RevokedAt      *int64   `json:"revoked_at,omitempty"`
}
