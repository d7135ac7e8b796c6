package models

import "encoding/json"

// Profile is the account record backing both session and credential auth.
// Plan fields are the quota snapshot the auth layer copies into each request
// context.
type Profile struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	PasswordHash   string   `json:"-"`
	FullName       string   `json:"full_name"`
	Plan           string   `json:"plan"`
	PlanScansUsed  int      `json:"plan_scans_used"`
	PlanScansLimit int      `json:"plan_scans_limit"`
	PlanDomains    int      `json:"plan_domains"`
	AllowedDomains []string `json:"allowed_domains"` // JSON array in DB
	CreatedAt      int64    `json:"created_at"`
	UpdatedAt      int64    `json:"updated_at"`
}

type Project struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Domain       string `json:"domain"`
	ScanSchedule string `json:"scan_schedule"` // "", "daily" or "weekly"
	NextScanAt   *int64 `json:"next_scan_at,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// Scan statuses.
const (
	ScanStatusQueued    = "queued"
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

// Scan holds one scan run. Results is the raw per-scanner findings blob;
// severity counts and the base score are precomputed at completion so list
// views never need the blob.
type Scan struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	UserID      string          `json:"user_id"`
	Status      string          `json:"status"`
	Results     json.RawMessage `json:"results,omitempty"` // JSON object in DB
	Score       *int            `json:"score,omitempty"`
	Critical    int             `json:"critical"`
	High        int             `json:"high"`
	Medium      int             `json:"medium"`
	Low         int             `json:"low"`
	Total       int             `json:"total"`
	CreatedAt   int64           `json:"created_at"`
	CompletedAt *int64          `json:"completed_at,omitempty"`
}

// Dismissal reasons and scopes.
const (
	DismissalReasonFalsePositive = "false_positive"
	DismissalReasonAcceptedRisk  = "accepted_risk"
	DismissalReasonNotApplicable = "not_applicable"
	DismissalReasonWillFixLater  = "will_fix_later"

	DismissalScopeProject = "project"
	DismissalScopeScan    = "scan"
)

// Dismissal suppresses a finding identity. Project-scoped dismissals apply to
// every scan of the project; scan-scoped ones to a single scan.
type Dismissal struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	ProjectID   string `json:"project_id"`
	ScanID      string `json:"scan_id"`
	Fingerprint string `json:"fingerprint"`
	Reason      string `json:"reason"`
	Note        string `json:"note,omitempty"`
	Scope       string `json:"scope"`
	CreatedAt   int64  `json:"created_at"`
}

func ValidDismissalReason(reason string) bool {
	switch reason {
	case DismissalReasonFalsePositive, DismissalReasonAcceptedRisk,
		DismissalReasonNotApplicable, DismissalReasonWillFixLater:
		return true
	}
	return false
}

func ValidDismissalScope(scope string) bool {
	return scope == DismissalScopeProject || scope == DismissalScopeScan
}
