// Package version хранит сведения о сборке, проставляемые через -ldflags:
//
//	-X github.com/vladislavdragonenkov/storefront/internal/version.version=v1.2.0
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

const unknown = "unknown"

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// BuildInfo — сведения о собранном бинаре.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// Get возвращает сведения о сборке. Если commit и date не заданы через
// -ldflags, они берутся из VCS-меток go build.
func Get() BuildInfo {
	info := BuildInfo{
		Version:   version,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
	}
	if info.Commit == "" || info.Date == "" {
		fillFromVCS(&info, debug.ReadBuildInfo)
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if info.Date == "" {
		info.Date = unknown
	}
	return info
}

func fillFromVCS(info *BuildInfo, read func() (*debug.BuildInfo, bool)) {
	bi, ok := read()
	if !ok {
		return
	}
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = setting.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = setting.Value
			}
		}
	}
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

func (b BuildInfo) String() string {
	return fmt.Sprintf("storefront version=%s commit=%s date=%s go=%s", b.Version, b.Commit, b.Date, b.GoVersion)
}
