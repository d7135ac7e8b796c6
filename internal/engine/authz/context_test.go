package authz

import (
	"net/http"
	"testing"

	"checkvibe/internal/engine/keys"
)

func TestHasScope(t *testing.T) {
	keyed := &Context{KeyID: "key_1", Scopes: []string{keys.ScopeScanRead}}
	if !keyed.HasScope(keys.ScopeScanRead) {
		t.Error("Granted scope not recognized")
	}
	if keyed.HasScope(keys.ScopeScanWrite) {
		t.Error("Ungranted scope recognized")
	}

	session := &Context{UserID: "usr_1"}
	for _, scope := range []string{keys.ScopeScanRead, keys.ScopeScanWrite, keys.ScopeKeysRead, keys.ScopeKeysManage} {
		if !session.HasScope(scope) {
			t.Errorf("Session context should grant %s", scope)
		}
	}
}

func TestRequireScope(t *testing.T) {
	c := &Context{KeyID: "key_1", Scopes: []string{keys.ScopeScanRead}}

	if d := RequireScope(c, keys.ScopeScanRead); d != nil {
		t.Errorf("Unexpected denial: %+v", d)
	}

	d := RequireScope(c, keys.ScopeKeysManage)
	if d == nil || d.Status != http.StatusForbidden {
		t.Fatalf("Expected 403, got %+v", d)
	}
}

func TestRequireDomain(t *testing.T) {
	unrestricted := &Context{KeyID: "key_1"}
	if d := RequireDomain(unrestricted, "anything.example"); d != nil {
		t.Errorf("Keys without a domain list are unrestricted, got %+v", d)
	}

	session := &Context{UserID: "usr_1"}
	if d := RequireDomain(session, "anything.example"); d != nil {
		t.Errorf("Session contexts are unrestricted, got %+v", d)
	}

	restricted := &Context{KeyID: "key_1", KeyAllowedDomains: []string{"Example.COM", "api.example.org."}}

	allowed := []string{"example.com", "EXAMPLE.com", "example.com.", "api.example.org"}
	for _, domain := range allowed {
		if d := RequireDomain(restricted, domain); d != nil {
			t.Errorf("Domain %s should match the allow list, got %+v", domain, d)
		}
	}

	d := RequireDomain(restricted, "evil.com")
	if d == nil || d.Status != http.StatusForbidden {
		t.Fatalf("Expected 403 for off-list domain, got %+v", d)
	}
	// Subdomains do not inherit the parent's entry.
	if d := RequireDomain(restricted, "sub.example.com"); d == nil {
		t.Error("Subdomain must not match a parent domain entry")
	}
}
