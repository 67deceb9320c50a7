// Package version carries build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/formcheck/formcheck/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for `formcheck version`.
func String() string {
	return fmt.Sprintf("formcheck %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
