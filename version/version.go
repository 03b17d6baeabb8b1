// Package version exposes build metadata stamped in via ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/forgedocs/wikiforge/version.Tag=v0.2.0 -X github.com/forgedocs/wikiforge/version.Commit=$(git rev-parse --short HEAD)"
var (
	// Tag is the semantic version of this build
	Tag = "dev"

	// Commit is the git commit hash of this build
	Commit = "unknown"
)

// Info is version metadata in a serializable form
type Info struct {
	Tag       string `json:"tag"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the current build's version information
func Get() Info {
	return Info{
		Tag:       Tag,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String formats the version for display
func (i Info) String() string {
	return fmt.Sprintf("%s (%s, %s, %s)", i.Tag, i.Commit, i.GoVersion, i.Platform)
}
