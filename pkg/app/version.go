package app

import (
	"fmt"
	"runtime"
)

// Build information, injected with -ldflags at release time. A dev build
// reports "dev" for everything but the Go runtime facts.
var (
	Version   = "dev"
	GitCommit = "dev"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
	Platform  = fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
)

// VersionInfo is the version report printed by --version and stamped
// into the logger's initial fields.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersion returns the bare version string.
func GetVersion() string {
	return Version
}

// GetVersionInfo returns the full version report.
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
		Platform:  Platform,
	}
}

func (v VersionInfo) String() string {
	return fmt.Sprintf(
		"Version: %s\nGit Commit: %s\nBuild Date: %s\nGo Version: %s\nPlatform: %s",
		v.Version, v.GitCommit, v.BuildDate, v.GoVersion, v.Platform,
	)
}
