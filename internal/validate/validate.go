// Package validate holds the format checks applied to account names,
// Cloudflare API tokens and zone identifiers before anything is written.
package validate

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

var (
	tokenPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	zoneIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)
)

const (
	MinTokenLen = 20
	MaxTokenLen = 255
	ZoneIDLen   = 32
)

// AccountName requires a non-empty name without whitespace; it becomes a
// directory name under the cloudflared home.
func AccountName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("Account name is required")
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return errors.New("Account name cannot contain spaces")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errors.New("Account name cannot contain path separators")
	}
	return nil
}

// APIToken accepts an empty token; the field is optional.
func APIToken(token string) error {
	if token == "" {
		return nil
	}
	if len(token) < MinTokenLen {
		return errors.New("API Token must be at least 20 characters long")
	}
	if len(token) > MaxTokenLen {
		return errors.New("API Token is too long")
	}
	if !tokenPattern.MatchString(token) {
		return errors.New("API Token contains invalid characters. Only letters, numbers, hyphens and underscores are allowed")
	}
	return nil
}

// ZoneID accepts an empty zone id; the field is optional.
func ZoneID(zoneID string) error {
	if zoneID == "" {
		return nil
	}
	if !zoneIDPattern.MatchString(zoneID) {
		return errors.New("Zone ID must be exactly 32 alphanumeric characters")
	}
	return nil
}

// Domain checks that a zone name looks like a hostname.
func Domain(domain string) error {
	if domain == "" {
		return errors.New("Domain is required")
	}
	if strings.IndexFunc(domain, unicode.IsSpace) >= 0 || strings.Contains(domain, "/") {
		return errors.New("Domain must be a bare hostname such as example.com")
	}
	if !strings.Contains(domain, ".") {
		return errors.New("Domain must contain at least one dot")
	}
	return nil
}
