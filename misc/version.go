// Package misc keeps build time information about the program.
package misc

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

// Set by the linker: -X critcss/misc.version=... -X critcss/misc.gitHash=...
var (
	version = "dev"
	gitHash = ""
	appName = ""
)

// GetAppName returns the program name used for logs, reports and temporary files.
func GetAppName() string {
	if len(appName) > 0 {
		return appName
	}
	name := strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))
	if len(name) == 0 || strings.HasSuffix(name, ".test") {
		// under "go test" binary name is meaningless
		return "critcss"
	}
	return name
}

func GetVersion() string {
	return version
}

// GetGitHash returns the revision the program was built from, falling back to
// VCS information embedded by the go tool.
func GetGitHash() string {
	if len(gitHash) > 0 {
		return gitHash
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
