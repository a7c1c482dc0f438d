package version

import (
	"runtime/debug"
)

const (
	ModulePath = "github.com/curtisnewbie/lettuce"
)

var (
	// Version of lettuce, replaced by the module version found in build info.
	Version = "v0.1.0"
)

func init() {
	if ver := ReadBuildVersion(); ver != "" {
		Version = ver
	}
}

// Read version of lettuce from build info.
//
// When lettuce is a dependency, the version of the dependency is returned. When lettuce is the main
// module (e.g., cmd/worker), the version of the main module is returned, unless it's '(devel)'.
func ReadBuildVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	if buildInfo.Main.Path == ModulePath {
		if v := buildInfo.Main.Version; v != "" && v != "(devel)" {
			return v
		}
		return ""
	}
	for _, dep := range buildInfo.Deps {
		if dep.Path == ModulePath {
			return dep.Version
		}
	}
	return ""
}
