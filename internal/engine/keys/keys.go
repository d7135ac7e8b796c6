// Package keys generates and hashes API credentials and validates the
// scope, domain, and IP restrictions a key may carry.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// Prefix is the public prefix of every issued credential. The full key is the
// prefix followed by 32 lowercase hex characters and is shown exactly once.
const Prefix = "cvd_live_"

// Scopes maps each capability to its user-facing description.
var Scopes = map[string]string{
	ScopeScanRead:   "Read scan results and history",
	ScopeScanWrite:  "Trigger new scans",
	ScopeKeysRead:   "List your API keys",
	ScopeKeysManage: "Create, update, and revoke API keys",
}

const (
	ScopeScanRead   = "scan:read"
	ScopeScanWrite  = "scan:write"
	ScopeKeysRead   = "keys:read"
	ScopeKeysManage = "keys:manage"
)

// Generate returns a new raw credential.
func Generate() string {
	b := make([]byte, 16)
	rand.Read(b)
	return Prefix + hex.EncodeToString(b)
}

// Hash returns the SHA-256 hex digest stored in place of the raw key.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the identifying prefix shown in key lists:
// the public prefix plus the first 8 hex characters.
func DisplayPrefix(raw string) string {
	n := len(Prefix) + 8
	if len(raw) < n {
		return raw
	}
	return raw[:n]
}

func ValidScope(scope string) bool {
	_, ok := Scopes[scope]
	return ok
}

func ValidScopes(scopes []string) bool {
	for _, s := range scopes {
		if !ValidScope(s) {
			return false
		}
	}
	return true
}

var domainPattern = regexp.MustCompile(`(?i)^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)

func ValidDomain(domain string) bool {
	return domainPattern.MatchString(domain)
}

// ValidIPOrCIDR checks allow-list entry syntax: a dotted-quad IPv4 address,
// optionally with a /0..32 prefix.
func ValidIPOrCIDR(entry string) bool {
	parts := strings.Split(entry, "/")
	if len(parts) > 2 {
		return false
	}

	octets := strings.Split(parts[0], ".")
	if len(octets) != 4 {
		return false
	}
	for _, octet := range octets {
		if octet == "" || len(octet) > 3 {
			return false
		}
		n, err := strconv.Atoi(octet)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}

	if len(parts) == 2 {
		if parts[1] == "" || len(parts[1]) > 2 {
			return false
		}
		mask, err := strconv.Atoi(parts[1])
		if err != nil || mask < 0 || mask > 32 {
			return false
		}
	}

	return true
}
