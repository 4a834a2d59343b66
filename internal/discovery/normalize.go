package discovery

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	hyphenatedUUIDPattern = regexp.MustCompile(
		`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	bareHexPattern = regexp.MustCompile(`(?i)[0-9a-f]{32}`)
)

// NormalizeID extracts the canonical device identifier from whatever
// textual form a protocol hands us: a hyphenated UUID embedded in a
// service instance name, a bare 32-hex run, or an opaque name.
//
// Both UUID forms canonicalize to 32 lowercase hex characters with all
// hyphens removed. A bare hex run is deliberately folded to lowercase
// rather than returned as written, so a record that reports the same
// identifier in a different case cannot split one physical device into
// two registry entries. Anything non-hex passes through unchanged.
func NormalizeID(s string) string {
	if m := hyphenatedUUIDPattern.FindString(s); m != "" {
		if u, err := uuid.Parse(m); err == nil {
			return hex.EncodeToString(u[:])
		}
	}
	if m := bareHexPattern.FindString(s); m != "" {
		return strings.ToLower(m)
	}
	return s
}
