package cli

import (
	"runtime/debug"
	"strings"
)

const (
	devVersion         = "dev"
	goDevelMainVersion = "(devel)"
)

var readBuildInfo = debug.ReadBuildInfo

// resolvedVersion prefers the injected version, then the module version and
// finally the VCS revision stamped by the Go toolchain.
func resolvedVersion(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && trimmed != devVersion {
		return trimmed
	}

	if info, ok := readBuildInfo(); ok && info != nil {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != goDevelMainVersion {
			return v
		}
		if rev, dirty := vcsRevision(info.Settings); rev != "" {
			if dirty {
				return rev + "-dirty"
			}
			return rev
		}
	}
	return devVersion
}

func vcsRevision(settings []debug.BuildSetting) (string, bool) {
	var revision string
	dirty := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = strings.TrimSpace(s.Value)
		case "vcs.modified":
			dirty = strings.EqualFold(strings.TrimSpace(s.Value), "true")
		}
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	return revision, dirty
}
