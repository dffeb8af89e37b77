// Package version reports the build version of thinkt-live.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is set at build time:
// -ldflags="-X github.com/wethinkt/thinkt-live/internal/version.Version=v0.3.0"
var Version = ""

// Info is the version payload served by the health endpoint.
type Info struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Revision string `json:"revision,omitempty"`
}

// GetInfo returns version metadata for the named binary.
func GetInfo(name string) Info {
	info := Info{Name: name, Version: Get()}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.Revision = vcsRevision(bi)
	}
	return info
}

// Get returns the ldflags version, the module version, or a dev marker.
func Get() string {
	if Version != "" {
		return Version
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	if rev := vcsRevision(bi); len(rev) >= 7 {
		return "dev-" + rev[:7]
	}
	return "dev"
}

// String formats "<name> version <v>".
func String(name string) string {
	return fmt.Sprintf("%s version %s", name, Get())
}

func vcsRevision(bi *debug.BuildInfo) string {
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}
