// Package buildinfo carries release metadata stamped at link time.
package buildinfo

import "fmt"

// Set with -ldflags "-X github.com/cleared-dev/ledger/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the metadata for --version output.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}

// Labels returns the metadata as metric labels.
func Labels() map[string]string {
	return map[string]string{"version": Version, "commit": Commit}
}
