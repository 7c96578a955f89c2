package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/ternarybob/tally/internal/common.Version=..."
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// BuildInfo describes the running binary
type BuildInfo struct {
	Version   string `json:"version"`
	Build     string `json:"build"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
}

// Info returns the build details. Values not injected at link time are
// taken from the module build info when the binary carries it.
func Info() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Build:     Build,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" && setting.Value != "" {
				info.GitCommit = shortCommit(setting.Value)
			}
		case "vcs.time":
			if info.Build == "unknown" && setting.Value != "" {
				info.Build = setting.Value
			}
		}
	}
	return info
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}

// GetVersion returns the current version string
func GetVersion() string {
	return Info().Version
}

// GetBuild returns the build timestamp
func GetBuild() string {
	return Info().Build
}

// String renders the one line form printed by `tally version`
func (b BuildInfo) String() string {
	return fmt.Sprintf("tally %s (build: %s, commit: %s, %s)", b.Version, b.Build, b.GitCommit, b.GoVersion)
}

// GetFullVersion returns version with build info
func GetFullVersion() string {
	return Info().String()
}

// LoadVersionFromFile overrides Version from a .version file next to the
// executable, used by packaged releases
func LoadVersionFromFile() string {
	exePath, err := os.Executable()
	if err != nil {
		return Version
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(exePath), ".version"))
	if err != nil {
		return Version
	}

	if version := strings.TrimSpace(string(data)); version != "" {
		Version = version
	}
	return Version
}
