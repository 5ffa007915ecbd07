// Package version holds build-time metadata injected via ldflags.
package version

// These variables are set at build time using -ldflags:
//
//	-X 'github.com/janekbaraniewski/tokenpulse/internal/version.Version=...'
//	-X 'github.com/janekbaraniewski/tokenpulse/internal/version.CommitHash=...'
//	-X 'github.com/janekbaraniewski/tokenpulse/internal/version.BuildDate=...'
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// String returns the version followed by whichever build details are known.
func String() string {
	s := "tokenpulse " + Version
	if CommitHash != "unknown" && CommitHash != "" {
		s += " (" + CommitHash + ")"
	}
	if BuildDate != "unknown" && BuildDate != "" {
		s += " built " + BuildDate
	}
	return s
}
