package aggregate

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/janekbaraniewski/tokenpulse/internal/core"
)

// latestVersion returns the highest client version seen in the records, or
// "" when none parse as semver.
func latestVersion(records []core.UsageRecord) string {
	best := ""
	for _, r := range records {
		v := canonicalVersion(r.ClientVersion)
		if v == "" {
			continue
		}
		if best == "" || semver.Compare(v, best) > 0 {
			best = v
		}
	}
	return strings.TrimPrefix(best, "v")
}

func canonicalVersion(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "v") {
		raw = "v" + raw
	}
	if !semver.IsValid(raw) {
		return ""
	}
	return raw
}
