package version

import (
	"runtime/debug"

	"tracelatency/pkg/api"
)

// Version is set at link time with -ldflags "-X tracelatency/internal/version.Version=...".
var Version = ""

func Current() string {
	if Version != "" {
		return Version
	}
	return api.Version()
}

// Build returns the VCS revision the binary was built from, or "dev".
func Build() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return "dev"
}
