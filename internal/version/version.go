// Package version holds build metadata for the docchat binary, injected via
// ldflags and logged at startup.
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
