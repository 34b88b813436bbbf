// Package version exposes build metadata injected at link time.
package version

var (
	// Version is the release version, overridden by the linker.
	Version = "dev"
	// Commit is the short hash of the commit that was built.
	Commit = "unknown"
	// BuildTime is the build timestamp in RFC 3339 UTC.
	BuildTime = "unknown"
)
