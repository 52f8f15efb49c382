// Package buildinfo carries version data stamped in by the linker:
//
//	go build -ldflags "-X github.com/xelth-com/wingetpro/internal/buildinfo.CommitHash=$(git rev-parse --short HEAD)"
package buildinfo

import "time"

// Set via -ldflags at build time
var (
	BuildTime  string // when the binary was compiled
	CommitTime string // last git commit time
	CommitHash string // short git commit hash
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC().Format(time.RFC3339)

// String is a one-line description for --version output.
func String() string {
	commit := CommitHash
	if commit == "" {
		commit = "dev"
	}
	if BuildTime == "" {
		return commit
	}
	return commit + " (built " + BuildTime + ")"
}
