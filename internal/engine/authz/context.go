// Package authz resolves inbound requests to an authenticated context and
// enforces credential scope and domain restrictions on top of it.
package authz

import (
	"net/http"
	"strings"

	"checkvibe/internal/pkg/errors"
)

// InternalKeyID is the sentinel key ID carried by contexts produced from the
// internal scheduler secret. It never matches a stored credential.
const InternalKeyID = "__cron__"

// Context is the single trusted identity a request resolves to. Scopes is set
// iff KeyID is set; session-authenticated callers carry neither and are
// implicitly unrestricted.
type Context struct {
	UserID             string
	KeyID              string
	Scopes             []string
	KeyAllowedDomains  []string
	KeyAllowedIPs      []string
	Plan               string
	PlanScansUsed      int
	PlanScansLimit     int
	PlanDomains        int
	UserAllowedDomains []string
}

// HasScope reports whether the context grants a capability. Contexts without
// a key (session trust) grant everything.
func (c *Context) HasScope(scope string) bool {
	if c.KeyID == "" {
		return true
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Denial is a terminal auth failure, ready to be written as an HTTP response.
type Denial struct {
	Status  int
	Code    string
	Message string
	Headers map[string]string
}

func deny(status int, code, message string) *Denial {
	return &Denial{Status: status, Code: code, Message: message}
}

// RequireScope returns a denial unless the context grants the scope.
func RequireScope(c *Context, scope string) *Denial {
	if c.HasScope(scope) {
		return nil
	}
	return deny(http.StatusForbidden, errors.ErrCodeForbidden, "API key missing required scope: "+scope)
}

// RequireDomain returns a denial unless the context's key is unrestricted or
// its domain allow-list contains the target. Domains are lower-cased and
// stripped of one trailing dot on both sides so neither case nor a FQDN dot
// can bypass the list.
func RequireDomain(c *Context, domain string) *Denial {
	if c.KeyID == "" || len(c.KeyAllowedDomains) == 0 {
		return nil
	}

	target := normalizeDomain(domain)
	for _, allowed := range c.KeyAllowedDomains {
		if normalizeDomain(allowed) == target {
			return nil
		}
	}
	return deny(http.StatusForbidden, errors.ErrCodeForbidden, "API key not authorized for domain: "+domain)
}

func normalizeDomain(d string) string {
	return strings.TrimSuffix(strings.ToLower(d), ".")
}
