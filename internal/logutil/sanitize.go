package logutil

import "strings"

const maxLogValueLen = 512

// SanitizeForLog flattens user-provided or process-captured text onto a
// single log line and caps its length.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 32 || r == 127:
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxLogValueLen {
		out = out[:maxLogValueLen] + "..."
	}
	return out
}
