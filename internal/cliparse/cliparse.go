// Package cliparse extracts structured values from cloudflared's human
// readable output. The patterns below are matched against cloudflared
// 2023.x through 2025.x; when the CLI changes its wording only this file
// and its fixtures need to follow.
package cliparse

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	nameConflictMarker = "A tunnel with that name already exists"
	dnsConflictMarker  = "record with that host already exists"
)

var (
	credentialsWrittenRe = regexp.MustCompile(`Tunnel credentials written to (?:.+/)?([a-f0-9-]+)\.json`)
	createdWithIDRe      = regexp.MustCompile(`Created tunnel \S+ with id ([a-f0-9-]+)`)
	loginURLRe           = regexp.MustCompile(`https?://[^\s"']*cloudflare\.com/[^\s"']*`)
	versionRe            = regexp.MustCompile(`\b(\d{4}\.\d+\.\d+)\b`)
)

// TunnelID returns the identifier assigned by `tunnel create`. The
// credentials file line is preferred; the summary line is a fallback.
// Candidates that are not UUIDs are ignored.
func TunnelID(output string) (string, bool) {
	for _, re := range []*regexp.Regexp{credentialsWrittenRe, createdWithIDRe} {
		m := re.FindStringSubmatch(output)
		if m == nil {
			continue
		}
		if id, err := uuid.Parse(m[1]); err == nil {
			return id.String(), true
		}
	}
	return "", false
}

// LoginURL returns the first dashboard authorization URL printed by
// `tunnel login`.
func LoginURL(output string) (string, bool) {
	u := loginURLRe.FindString(output)
	return u, u != ""
}

func IsNameConflict(output string) bool {
	return strings.Contains(output, nameConflictMarker)
}

// IsDNSRecordExists matches the `route dns` failure for a hostname that
// already has an A, AAAA or CNAME record.
func IsDNSRecordExists(output string) bool {
	return strings.Contains(output, dnsConflictMarker)
}

// Version returns the YYYY.M.D version from `cloudflared --version`.
func Version(output string) string {
	m := versionRe.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return m[1]
}

// TunnelListHasName reports whether `tunnel list` output contains a row
// whose NAME column equals name exactly.
func TunnelListHasName(output, name string) bool {
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		if _, err := uuid.Parse(fields[0]); err != nil {
			continue
		}
		if fields[1] == name {
			return true
		}
	}
	return false
}
