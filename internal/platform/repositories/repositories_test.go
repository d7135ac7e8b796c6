package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"checkvibe/internal/engine/scans"
	"checkvibe/internal/platform/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE profiles (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		full_name TEXT,
		plan TEXT NOT NULL DEFAULT 'none',
		plan_scans_used INTEGER NOT NULL DEFAULT 0,
		plan_scans_limit INTEGER NOT NULL DEFAULT 0,
		plan_domains INTEGER NOT NULL DEFAULT 0,
		allowed_domains TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE projects (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		domain TEXT NOT NULL,
		scan_schedule TEXT NOT NULL DEFAULT '',
		next_scan_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE scans (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		results TEXT,
		score INTEGER,
		critical INTEGER NOT NULL DEFAULT 0,
		high INTEGER NOT NULL DEFAULT 0,
		medium INTEGER NOT NULL DEFAULT 0,
		low INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE TABLE api_keys (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		key_hash TEXT UNIQUE NOT NULL,
		key_prefix TEXT NOT NULL,
		scopes TEXT NOT NULL,
		allowed_domains TEXT,
		allowed_ips TEXT,
		last_used_at INTEGER,
		created_at INTEGER NOT NULL,
		expires_at INTEGER,
		revoked_at INTEGER
	);
	CREATE TABLE dismissals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		scan_id TEXT,
		fingerprint TEXT NOT NULL,
		reason TEXT NOT NULL,
		note TEXT,
		scope TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return db
}

func seedProfile(t *testing.T, db *sql.DB, id, plan string, used, limit int) {
	t.Helper()
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO profiles (id, email, password_hash, plan, plan_scans_used, plan_scans_limit, plan_domains, allowed_domains, created_at, updated_at)
		VALUES (?, ?, 'x', ?, ?, ?, 5, '["example.com"]', ?, ?)
	`, id, id+"@test.dev", plan, used, limit, now, now)
	if err != nil {
		t.Fatalf("Failed to seed profile: %v", err)
	}
}

func TestProfileRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db)
	ctx := context.Background()

	p := &models.Profile{
		ID: "usr_1", Email: "a@test.dev", PasswordHash: "hash", FullName: "A",
		Plan: "pro", PlanScansLimit: 50, PlanDomains: 5,
		AllowedDomains: []string{"example.com"},
		CreatedAt:      time.Now().Unix(), UpdatedAt: time.Now().Unix(),
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	byEmail, err := repo.GetByEmail(ctx, "a@test.dev")
	if err != nil || byEmail == nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if byEmail.Plan != "pro" || len(byEmail.AllowedDomains) != 1 {
		t.Errorf("Unexpected profile: %+v", byEmail)
	}

	missing, err := repo.GetByID(ctx, "usr_missing")
	if err != nil || missing != nil {
		t.Errorf("Missing profile should be nil, nil; got %v, %v", missing, err)
	}

	snap, err := repo.GetPlanSnapshot(ctx, "usr_1")
	if err != nil || snap == nil {
		t.Fatalf("GetPlanSnapshot failed: %v", err)
	}
	if snap.Plan != "pro" || snap.ScansLimit != 50 {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
}

func TestProfileRepositoryQuota(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db)
	ctx := context.Background()

	seedProfile(t, db, "usr_1", "starter", 9, 10)

	ok, err := repo.IncrementScansUsed(ctx, "usr_1")
	if err != nil || !ok {
		t.Fatalf("Increment under quota should pass: ok=%v err=%v", ok, err)
	}
	ok, err = repo.IncrementScansUsed(ctx, "usr_1")
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if ok {
		t.Error("Increment at quota limit should be rejected")
	}
}

func TestProjectRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := &models.Project{UserID: "usr_1", Name: "Site", Domain: "example.com"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	owner, err := repo.GetOwnerID(ctx, p.ID)
	if err != nil || owner != "usr_1" {
		t.Errorf("Expected owner usr_1, got %q, %v", owner, err)
	}
	owner, err = repo.GetOwnerID(ctx, "proj_missing")
	if err != nil || owner != "" {
		t.Errorf("Missing project should yield empty owner, got %q, %v", owner, err)
	}

	list, err := repo.ListByUser(ctx, "usr_1")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByUser: %v, %d entries", err, len(list))
	}
	n, err := repo.CountByUser(ctx, "usr_1")
	if err != nil || n != 1 {
		t.Errorf("CountByUser: %v, %d", err, n)
	}
}

func TestProjectRepositoryScheduled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()
	now := time.Now().Unix()

	past := now - 60
	future := now + 3600
	due := &models.Project{UserID: "usr_1", Name: "Due", Domain: "due.dev", ScanSchedule: "daily", NextScanAt: &past}
	notDue := &models.Project{UserID: "usr_1", Name: "Later", Domain: "later.dev", ScanSchedule: "weekly", NextScanAt: &future}
	manual := &models.Project{UserID: "usr_1", Name: "Manual", Domain: "manual.dev"}
	for _, p := range []*models.Project{due, notDue, manual} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	list, err := repo.ListDueScheduled(ctx, now)
	if err != nil {
		t.Fatalf("ListDueScheduled failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != due.ID {
		t.Fatalf("Expected only the due project, got %d", len(list))
	}

	if err := repo.UpdateNextScanAt(ctx, due.ID, future); err != nil {
		t.Fatalf("UpdateNextScanAt failed: %v", err)
	}
	list, err = repo.ListDueScheduled(ctx, now)
	if err != nil || len(list) != 0 {
		t.Errorf("Rescheduled project should no longer be due, got %d", len(list))
	}
}

func TestScanRepositoryLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScanRepository(db)
	ctx := context.Background()

	s := &models.Scan{ProjectID: "proj_1", UserID: "usr_1"}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if s.Status != models.ScanStatusQueued {
		t.Errorf("New scan should be queued, got %s", s.Status)
	}

	if err := repo.MarkRunning(ctx, s.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}

	results := []byte(`{"headers":{"findings":[{"title":"Missing CSP","severity":"high"}]}}`)
	counts := scans.IssueCounts{High: 1, Total: 1}
	if err := repo.Complete(ctx, s.ID, results, 92, counts); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, err := repo.GetByID(ctx, s.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != models.ScanStatusCompleted || got.Score == nil || *got.Score != 92 {
		t.Errorf("Unexpected scan: %+v", got)
	}
	if got.High != 1 || got.Total != 1 {
		t.Errorf("Unexpected counts: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("Completed scan missing completion time")
	}
}

func TestScanRepositoryPreviousCompleted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScanRepository(db)
	ctx := context.Background()

	mk := func(createdAt int64, status string) string {
		s := &models.Scan{ProjectID: "proj_1", UserID: "usr_1", Status: status}
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if _, err := db.Exec(`UPDATE scans SET created_at = ? WHERE id = ?`, createdAt, s.ID); err != nil {
			t.Fatalf("Backdate failed: %v", err)
		}
		return s.ID
	}

	first := mk(1000, models.ScanStatusCompleted)
	mk(2000, models.ScanStatusFailed)
	third := mk(3000, models.ScanStatusCompleted)

	prev, err := repo.GetPreviousCompleted(ctx, "proj_1", third)
	if err != nil {
		t.Fatalf("GetPreviousCompleted failed: %v", err)
	}
	if prev == nil || prev.ID != first {
		t.Fatalf("Expected %s, got %+v", first, prev)
	}

	prev, err = repo.GetPreviousCompleted(ctx, "proj_1", first)
	if err != nil || prev != nil {
		t.Errorf("First scan has no predecessor, got %+v, %v", prev, err)
	}
}

func TestDismissalRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDismissalRepository(db)
	ctx := context.Background()
	now := time.Now().Unix()

	projectWide := &models.Dismissal{
		ID: "dis_1", UserID: "usr_1", ProjectID: "proj_1",
		Fingerprint: "headers::missing-csp::high",
		Reason:      models.DismissalReasonFalsePositive,
		Scope:       models.DismissalScopeProject, CreatedAt: now,
	}
	scanPinned := &models.Dismissal{
		ID: "dis_2", UserID: "usr_1", ProjectID: "proj_1", ScanID: "scan_1",
		Fingerprint: "ssl::weak-cipher::critical",
		Reason:      models.DismissalReasonAcceptedRisk,
		Scope:       models.DismissalScopeScan, CreatedAt: now,
	}
	otherScan := &models.Dismissal{
		ID: "dis_3", UserID: "usr_1", ProjectID: "proj_1", ScanID: "scan_2",
		Fingerprint: "ssl::expired-cert::high",
		Reason:      models.DismissalReasonWillFixLater,
		Scope:       models.DismissalScopeScan, CreatedAt: now,
	}
	for _, d := range []*models.Dismissal{projectWide, scanPinned, otherScan} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	fps, err := repo.FingerprintsForScan(ctx, "proj_1", "scan_1")
	if err != nil {
		t.Fatalf("FingerprintsForScan failed: %v", err)
	}
	if len(fps) != 2 {
		t.Fatalf("Expected project-wide plus scan-pinned, got %d", len(fps))
	}
	if _, ok := fps["headers::missing-csp::high"]; !ok {
		t.Error("Project-wide dismissal missing")
	}
	if _, ok := fps["ssl::expired-cert::high"]; ok {
		t.Error("Other scan's dismissal must not apply")
	}

	got, err := repo.GetByID(ctx, "dis_2")
	if err != nil || got == nil || got.ScanID != "scan_1" {
		t.Fatalf("GetByID: %+v, %v", got, err)
	}

	if err := repo.Delete(ctx, "dis_1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	fps, _ = repo.FingerprintsForScan(ctx, "proj_1", "scan_1")
	if len(fps) != 1 {
		t.Errorf("Expected 1 fingerprint after restore, got %d", len(fps))
	}
}
