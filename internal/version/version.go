// Package version reports the bundlebuilder release. The variables are set at
// link time:
//
//	go build -ldflags "-X github.com/gaoking123/AssetBundles-BuildPipeline/internal/version.Version=v1.2.0"
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Version   = "unknown"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info is the release a binary was built from.
type Info struct {
	Version   string
	GitCommit string
	BuildTime string
}

// Get returns the linked-in release. A binary built without ldflags falls back
// to the VCS revision the Go toolchain embedded, when there is one.
func Get() Info {
	info := Info{Version: Version, GitCommit: GitCommit, BuildTime: BuildTime}
	if info.GitCommit != "unknown" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.GitCommit = s.Value
			case "vcs.time":
				if info.BuildTime == "unknown" {
					info.BuildTime = s.Value
				}
			}
		}
	}
	return info
}

func (i Info) String() string {
	if i.GitCommit == "unknown" && i.BuildTime == "unknown" {
		return i.Version
	}
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.GitCommit, i.BuildTime)
}

// String is the --version text.
func String() string {
	return Get().String()
}
