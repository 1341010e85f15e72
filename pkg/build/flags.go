// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata embedded into the binary at link time:
//
//	go build -ldflags "-X soukou/pkg/build.buildVersion=0.2.0 -X soukou/pkg/build.buildCommit=$(git rev-parse --short HEAD)"
//
// Development builds carry no flags and report "unknown" values.
package build

import (
	"fmt"
	"strings"
)

// Info is the build metadata of the running binary.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Set by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var current = defaultInfo()

func defaultInfo() Info {
	return Info{
		Name:    "soukou",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "unknown",
	}
}

// Initialize copies the linker-provided values into the current Info. Values
// that were not provided keep their defaults and are listed in the returned
// error.
func Initialize() error {
	info := defaultInfo()
	var missing []string
	for _, f := range []struct {
		name string
		src  string
		dst  *string
	}{
		{"buildName", buildName, &info.Name},
		{"buildTime", buildTime, &info.Time},
		{"buildCommit", buildCommit, &info.Commit},
		{"buildVersion", buildVersion, &info.Version},
	} {
		if f.src == "" {
			missing = append(missing, f.name)
			continue
		}
		*f.dst = f.src
	}
	current = info

	if len(missing) > 0 {
		return fmt.Errorf("build flags not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Current returns the build metadata. Call Initialize first.
func Current() Info {
	return current
}
