// Package domainres maps a tunnel hostname to the registered domain (zone)
// that owns it.
package domainres

import (
	"strings"

	"github.com/IYouKnow/TunnelUI/internal/database"
)

// Matches reports whether hostname equals domain or is a subdomain of it.
// The dot boundary keeps "notexample.com" from matching "example.com".
func Matches(hostname, domain string) bool {
	h := normalize(hostname)
	d := normalize(domain)
	if h == "" || d == "" {
		return false
	}
	return h == d || strings.HasSuffix(h, "."+d)
}

// Resolve returns the most specific candidate owning hostname, or nil
// when none does. A nil result means the zone is unknown, not an error.
func Resolve(hostname string, candidates []database.Domain) *database.Domain {
	var best *database.Domain
	for i := range candidates {
		d := &candidates[i]
		if !Matches(hostname, d.Domain) {
			continue
		}
		if best == nil || len(normalize(d.Domain)) > len(normalize(best.Domain)) {
			best = d
		}
	}
	return best
}

func normalize(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
}
