// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

import "strings"

// Version is the semantic version or tag for this build.
// Inject via: -X github.com/garyellow/menubot-go/internal/buildinfo.Version=...
var Version = ""

// Commit is the git commit SHA for this build.
// Inject via: -X github.com/garyellow/menubot-go/internal/buildinfo.Commit=...
var Commit = ""

// BuildDate is the RFC3339 build timestamp.
// Inject via: -X github.com/garyellow/menubot-go/internal/buildinfo.BuildDate=...
var BuildDate = ""

// String renders the build as "version (commit, date)", omitting unset parts.
// An unversioned build reports "dev".
func String() string {
	version := Version
	if version == "" {
		version = "dev"
	}

	var extra []string
	if Commit != "" {
		commit := Commit
		if len(commit) > 7 {
			commit = commit[:7]
		}
		extra = append(extra, commit)
	}
	if BuildDate != "" {
		extra = append(extra, BuildDate)
	}
	if len(extra) == 0 {
		return version
	}
	return version + " (" + strings.Join(extra, ", ") + ")"
}
