// Package version holds build information injected via ldflags.
package version

var (
	Version = "dev"
	Commit  = "unknown"
)
