// Package version exposes build metadata stamped in with -ldflags.
// A binary built without stamping identifies itself as a plain dev build.
package version

var (
	// Version is the release tag (e.g. v0.4.1). Empty outside tagged builds.
	Version = ""
	// Commit is the abbreviated git revision the binary was built from.
	Commit = ""
	// Date is the build timestamp in RFC3339 UTC.
	Date = ""
	// Dirty is "dirty" when the tree carried local modifications at build time.
	Dirty = ""
)

// String renders the version for log lines and the health endpoint: the
// release tag when present, otherwise "dev-<commit>" with a trailing "*"
// marking a dirty tree, or plain "dev" with no metadata at all.
func String() string {
	if Version != "" {
		return Version
	}
	if Commit == "" {
		return "dev"
	}
	out := "dev-" + Commit
	if Dirty == "dirty" {
		out += "*"
	}
	return out
}
