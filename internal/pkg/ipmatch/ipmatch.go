// Package ipmatch tests caller IP addresses against allow-list entries.
//
// An entry is either a literal address ("10.1.2.3", "2001:db8::1") or a CIDR
// range ("10.0.0.0/8", "2001:db8::/32"). Matching is deny-safe: any malformed
// input yields false instead of an error, so a broken allow-list entry can
// never widen access.
package ipmatch

import (
	"strconv"
	"strings"
)

// Matches reports whether ip falls inside entry. Entries without a "/" must
// match exactly. Cross-family comparisons (v4 vs v6) are always false.
func Matches(ip, entry string) bool {
	if !strings.Contains(entry, "/") {
		return ip == entry
	}

	parts := strings.SplitN(entry, "/", 2)
	subnet := parts[0]
	prefix, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}

	if strings.Contains(subnet, ":") || strings.Contains(ip, ":") {
		return matchesV6(ip, subnet, prefix)
	}
	return matchesV4(ip, subnet, prefix)
}

// parseV4 converts a dotted-quad address to a big-endian uint32.
func parseV4(s string) (uint32, bool) {
	octets := strings.Split(s, ".")
	if len(octets) != 4 {
		return 0, false
	}
	var v uint32
	for _, o := range octets {
		if o == "" || len(o) > 3 {
			return 0, false
		}
		for _, c := range o {
			if c < '0' || c > '9' {
				return 0, false
			}
		}
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 || n > 255 {
			return 0, false
		}
		v = v<<8 | uint32(n)
	}
	return v, true
}

func matchesV4(ip, subnet string, prefix int) bool {
	if prefix < 0 || prefix > 32 {
		return false
	}
	ipv, ok := parseV4(ip)
	if !ok {
		return false
	}
	subv, ok := parseV4(subnet)
	if !ok {
		return false
	}

	// prefix 0 matches every v4 address; a 32-bit shift is undefined, so
	// handle it before building the mask.
	if prefix == 0 {
		return true
	}
	mask := ^uint32(0) << (32 - prefix)
	return ipv&mask == subv&mask
}

// parseV6 expands an address, including a single "::" contraction, into its
// 16-byte big-endian form.
func parseV6(s string) ([16]byte, bool) {
	var out [16]byte
	if s == "" {
		return out, false
	}

	var head, tail []string
	switch strings.Count(s, "::") {
	case 0:
		head = strings.Split(s, ":")
		if len(head) != 8 {
			return out, false
		}
	case 1:
		halves := strings.SplitN(s, "::", 2)
		if halves[0] != "" {
			head = strings.Split(halves[0], ":")
		}
		if halves[1] != "" {
			tail = strings.Split(halves[1], ":")
		}
		// "::" must stand in for at least one zero group.
		if len(head)+len(tail) >= 8 {
			return out, false
		}
	default:
		return out, false
	}

	groups := make([]uint16, 0, 8)
	appendGroups := func(parts []string) bool {
		for _, p := range parts {
			if p == "" || len(p) > 4 {
				return false
			}
			n, err := strconv.ParseUint(p, 16, 16)
			if err != nil {
				return false
			}
			groups = append(groups, uint16(n))
		}
		return true
	}

	if !appendGroups(head) {
		return out, false
	}
	for i := len(head) + len(tail); i < 8; i++ {
		groups = append(groups, 0)
	}
	if !appendGroups(tail) {
		return out, false
	}
	if len(groups) != 8 {
		return out, false
	}

	for i, g := range groups {
		out[i*2] = byte(g >> 8)
		out[i*2+1] = byte(g)
	}
	return out, true
}

func matchesV6(ip, subnet string, prefix int) bool {
	if prefix < 0 || prefix > 128 {
		return false
	}
	ipb, ok := parseV6(ip)
	if !ok {
		return false
	}
	subb, ok := parseV6(subnet)
	if !ok {
		return false
	}

	remaining := prefix
	for i := 0; i < 16 && remaining > 0; i++ {
		if remaining >= 8 {
			if ipb[i] != subb[i] {
				return false
			}
			remaining -= 8
			continue
		}
		mask := byte(0xff) << (8 - remaining)
		if ipb[i]&mask != subb[i]&mask {
			return false
		}
		remaining = 0
	}
	return true
}
