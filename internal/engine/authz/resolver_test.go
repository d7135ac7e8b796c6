package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"checkvibe/internal/engine/keys"
	"checkvibe/internal/engine/ratelimit"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeProjects struct {
	owners map[string]string
	err    error
}

func (f *fakeProjects) GetOwnerID(_ context.Context, projectID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.owners[projectID], nil
}

type fakeProfiles struct {
	snapshots map[string]*PlanSnapshot
	err       error
}

func (f *fakeProfiles) GetPlanSnapshot(_ context.Context, userID string) (*PlanSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshots[userID], nil
}

type fakeKeys struct {
	byHash map[string]*ValidatedKey
	err    error
}

func (f *fakeKeys) ValidateHash(_ context.Context, keyHash string) (*ValidatedKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byHash[keyHash], nil
}

type fakeSessions struct {
	userID string
}

func (f *fakeSessions) Verify(_ *http.Request) (string, error) {
	if f.userID == "" {
		return "", errors.New("no session")
	}
	return f.userID, nil
}

type allowChecker struct{ denied map[string]bool }

func (c *allowChecker) Check(_ context.Context, identifier string, maxRequests, _ int) (ratelimit.Result, error) {
	if c.denied[identifier] {
		return ratelimit.Result{Allowed: false, CurrentCount: maxRequests + 1, LimitMax: maxRequests, ResetAt: time.Now()}, nil
	}
	return ratelimit.Result{Allowed: true, CurrentCount: 1, LimitMax: maxRequests, ResetAt: time.Now().Add(time.Minute)}, nil
}

type resolverFixture struct {
	projects *fakeProjects
	profiles *fakeProfiles
	keys     *fakeKeys
	sessions *fakeSessions
	checker  *allowChecker
}

func newFixture() *resolverFixture {
	return &resolverFixture{
		projects: &fakeProjects{owners: map[string]string{"proj_1": "usr_owner"}},
		profiles: &fakeProfiles{snapshots: map[string]*PlanSnapshot{
			"usr_owner": {Plan: "pro", ScansUsed: 2, ScansLimit: 50, Domains: 5, AllowedDomains: []string{"example.com"}},
			"usr_sess":  {Plan: "starter", ScansLimit: 10, Domains: 1, AllowedDomains: []string{}},
		}},
		keys:     &fakeKeys{byHash: map[string]*ValidatedKey{}},
		sessions: &fakeSessions{},
		checker:  &allowChecker{denied: map[string]bool{}},
	}
}

func (f *resolverFixture) resolver() *Resolver {
	agg := ratelimit.NewAggregator(f.checker, 60, zerolog.Nop())
	return NewResolver(testSecret, f.projects, f.profiles, f.keys, f.sessions, agg, zerolog.Nop())
}

func (f *resolverFixture) addKey(raw string, vk *ValidatedKey) {
	f.keys.byHash[keys.Hash(raw)] = vk
}

func internalRequest(secret, body string) *http.Request {
	req := httptest.NewRequest("POST", "/api/v1/scans", strings.NewReader(body))
	req.Header.Set(InternalSecretHeader, secret)
	return req
}

func TestResolveInternalTrust(t *testing.T) {
	f := newFixture()
	rs := f.resolver()

	res, denial := rs.Resolve(internalRequest(testSecret, `{"projectId":"proj_1"}`))
	if denial != nil {
		t.Fatalf("Unexpected denial: %+v", denial)
	}

	if res.Context.UserID != "usr_owner" {
		t.Errorf("Expected owner identity, got %s", res.Context.UserID)
	}
	if res.Context.KeyID != InternalKeyID {
		t.Errorf("Expected sentinel key ID, got %s", res.Context.KeyID)
	}
	if !res.Context.HasScope(keys.ScopeScanRead) || !res.Context.HasScope(keys.ScopeScanWrite) {
		t.Error("Internal context must carry the full scan scope set")
	}
	if res.Context.Plan != "pro" {
		t.Errorf("Expected plan snapshot, got %s", res.Context.Plan)
	}
}

func TestResolveInternalMissingProjectID(t *testing.T) {
	f := newFixture()
	rs := f.resolver()

	for _, body := range []string{``, `not json`, `{}`, `{"projectId":""}`} {
		_, denial := rs.Resolve(internalRequest(testSecret, body))
		if denial == nil || denial.Status != http.StatusBadRequest {
			t.Errorf("Body %q: expected 400, got %+v", body, denial)
		}
	}
}

func TestResolveInternalUnknownProject(t *testing.T) {
	f := newFixture()
	rs := f.resolver()

	_, denial := rs.Resolve(internalRequest(testSecret, `{"projectId":"proj_missing"}`))
	if denial == nil || denial.Status != http.StatusNotFound {
		t.Fatalf("Expected 404, got %+v", denial)
	}
}

func TestResolveInternalWrongSecretFallsThrough(t *testing.T) {
	f := newFixture()
	rs := f.resolver()

	// Wrong secret is not an internal caller; with no other signal it is 401.
	wrong := strings.Repeat("x", len(testSecret))
	_, denial := rs.Resolve(internalRequest(wrong, `{"projectId":"proj_1"}`))
	if denial == nil || denial.Status != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %+v", denial)
	}
}

func TestResolveInternalShortConfiguredSecretNeverTrusts(t *testing.T) {
	f := newFixture()
	agg := ratelimit.NewAggregator(f.checker, 60, zerolog.Nop())
	rs := NewResolver("short", f.projects, f.profiles, f.keys, f.sessions, agg, zerolog.Nop())

	_, denial := rs.Resolve(internalRequest("short", `{"projectId":"proj_1"}`))
	if denial == nil || denial.Status != http.StatusUnauthorized {
		t.Fatalf("A sub-16-byte secret must never authenticate, got %+v", denial)
	}
}

func credentialRequest(raw, ip string) *http.Request {
	req := httptest.NewRequest("GET", "/api/v1/scans/scan_1", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	return req
}

func proKey(raw string, allowedIPs []string) *ValidatedKey {
	return &ValidatedKey{
		KeyID:      "key_1",
		UserID:     "usr_owner",
		Scopes:     []string{keys.ScopeScanRead},
		AllowedIPs: allowedIPs,
		Plan:       PlanSnapshot{Plan: "pro", ScansUsed: 2, ScansLimit: 50, Domains: 5, AllowedDomains: []string{"example.com"}},
	}
}

func TestResolveCredential(t *testing.T) {
	f := newFixture()
	raw := keys.Prefix + "aabbccddeeff00112233445566778899"
	f.addKey(raw, proKey(raw, nil))
	rs := f.resolver()

	res, denial := rs.Resolve(credentialRequest(raw, "10.1.2.3"))
	if denial != nil {
		t.Fatalf("Unexpected denial: %+v", denial)
	}
	if res.Context.KeyID != "key_1" || res.Context.UserID != "usr_owner" {
		t.Errorf("Unexpected context: %+v", res.Context)
	}
	if res.RateHeaders["X-RateLimit-Limit"] == "" {
		t.Error("Successful credential resolution must carry rate headers")
	}
}

func TestResolveCredentialUnknownKey(t *testing.T) {
	f := newFixture()
	rs := f.resolver()

	_, denial := rs.Resolve(credentialRequest(keys.Prefix+"00000000000000000000000000000000", "10.1.2.3"))
	if denial == nil || denial.Status != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %+v", denial)
	}
}

func TestResolveCredentialStoreErrorIs401(t *testing.T) {
	f := newFixture()
	f.keys.err = errors.New("store unreachable")
	rs := f.resolver()

	_, denial := rs.Resolve(credentialRequest(keys.Prefix+"aabbccddeeff00112233445566778899", "10.1.2.3"))
	if denial == nil || denial.Status != http.StatusUnauthorized {
		t.Fatalf("Store errors must look like invalid keys, got %+v", denial)
	}
}

func TestResolveCredentialIPAllowList(t *testing.T) {
	f := newFixture()
	raw := keys.Prefix + "aabbccddeeff00112233445566778899"
	f.addKey(raw, proKey(raw, []string{"10.0.0.0/8"}))
	rs := f.resolver()

	if _, denial := rs.Resolve(credentialRequest(raw, "10.1.2.3")); denial != nil {
		t.Fatalf("10.1.2.3 is inside 10.0.0.0/8, got %+v", denial)
	}

	_, denial := rs.Resolve(credentialRequest(raw, "11.1.2.3"))
	if denial == nil || denial.Status != http.StatusForbidden {
		t.Fatalf("11.1.2.3 is outside 10.0.0.0/8, expected 403, got %+v", denial)
	}
}

func TestResolveCredentialRateLimited(t *testing.T) {
	f := newFixture()
	raw := keys.Prefix + "aabbccddeeff00112233445566778899"
	f.addKey(raw, proKey(raw, nil))
	f.checker.denied["key:key_1"] = true
	rs := f.resolver()

	_, denial := rs.Resolve(credentialRequest(raw, "10.1.2.3"))
	if denial == nil || denial.Status != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %+v", denial)
	}
	if denial.Headers["Retry-After"] != "60" {
		t.Errorf("Expected Retry-After 60, got %q", denial.Headers["Retry-After"])
	}
}

func TestResolveSession(t *testing.T) {
	f := newFixture()
	f.sessions.userID = "usr_sess"
	rs := f.resolver()

	req := httptest.NewRequest("GET", "/api/v1/projects", nil)
	res, denial := rs.Resolve(req)
	if denial != nil {
		t.Fatalf("Unexpected denial: %+v", denial)
	}
	if res.Context.KeyID != "" {
		t.Error("Session context must carry no key ID")
	}
	if res.Context.Scopes != nil {
		t.Error("Session context must carry no scope set")
	}
	if !res.Context.HasScope(keys.ScopeKeysManage) {
		t.Error("Session trust grants every capability")
	}
	if res.Context.Plan != "starter" {
		t.Errorf("Expected starter plan, got %s", res.Context.Plan)
	}
}

func TestResolveNoSignalIs401(t *testing.T) {
	f := newFixture()
	rs := f.resolver()

	req := httptest.NewRequest("GET", "/api/v1/projects", nil)
	_, denial := rs.Resolve(req)
	if denial == nil || denial.Status != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %+v", denial)
	}
}

func TestResolveSessionRateLimited(t *testing.T) {
	f := newFixture()
	f.sessions.userID = "usr_sess"
	f.checker.denied["user:usr_sess"] = true
	rs := f.resolver()

	req := httptest.NewRequest("GET", "/api/v1/projects", nil)
	_, denial := rs.Resolve(req)
	if denial == nil || denial.Status != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %+v", denial)
	}
}

func TestInternalTrustWinsOverCredential(t *testing.T) {
	f := newFixture()
	raw := keys.Prefix + "aabbccddeeff00112233445566778899"
	f.addKey(raw, proKey(raw, nil))
	rs := f.resolver()

	req := internalRequest(testSecret, `{"projectId":"proj_1"}`)
	req.Header.Set("Authorization", "Bearer "+raw)

	res, denial := rs.Resolve(req)
	if denial != nil {
		t.Fatalf("Unexpected denial: %+v", denial)
	}
	if res.Context.KeyID != InternalKeyID {
		t.Errorf("Internal trust must take precedence, got key %s", res.Context.KeyID)
	}
}

func TestResolveProfileFailureDefaultsToNonePlan(t *testing.T) {
	f := newFixture()
	f.sessions.userID = "usr_sess"
	f.profiles.err = errors.New("store unreachable")
	rs := f.resolver()

	req := httptest.NewRequest("GET", "/api/v1/projects", nil)
	res, denial := rs.Resolve(req)
	if denial != nil {
		t.Fatalf("Profile failure must not fail the request, got %+v", denial)
	}
	if res.Context.Plan != "none" {
		t.Errorf("Expected fallback plan none, got %s", res.Context.Plan)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "10.1.2.3, 172.16.0.1")
	if ip := ClientIP(req); ip != "10.1.2.3" {
		t.Errorf("Expected first forwarded entry, got %s", ip)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Real-Ip", "192.0.2.7")
	if ip := ClientIP(req); ip != "192.0.2.7" {
		t.Errorf("Expected X-Real-Ip, got %s", ip)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.4:1234"
	if ip := ClientIP(req); ip != "198.51.100.4" {
		t.Errorf("Expected remote addr host, got %s", ip)
	}
}
