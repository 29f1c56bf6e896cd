// Package version reports build information for scvv. Version, Commit and
// Date are set at link time:
//
//	go build -ldflags "-X github.com/jmylchreest/scvv/internal/version.Version=1.0.0 \
//	                   -X github.com/jmylchreest/scvv/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/jmylchreest/scvv/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
)

// Set by -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// ApplicationName is the canonical name of this application.
const ApplicationName = "scvv"

// Info is the build information of the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns the build information.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// shortCommit returns the abbreviated commit, or "" for unstamped builds.
func shortCommit() string {
	if Commit == "unknown" || len(Commit) < 8 {
		return ""
	}
	return Commit[:8]
}

// String returns the long form printed by "scvv version".
func String() string {
	i := GetInfo()
	if c := shortCommit(); c != "" {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			ApplicationName, i.Version, c, i.Date, i.GoVersion, i.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, i.Version, i.GoVersion, i.Platform)
}

// Short returns the form used for --version.
func Short() string {
	if c := shortCommit(); c != "" {
		return fmt.Sprintf("%s %s (%s)", ApplicationName, Version, c)
	}
	return ApplicationName + " " + Version
}

// UserAgent returns the User-Agent sent with asset requests.
func UserAgent() string {
	return ApplicationName + "/" + Version
}

// JSON returns GetInfo as a JSON object.
func JSON() string {
	data, err := json.Marshal(GetInfo())
	if err != nil {
		return "{}"
	}
	return string(data)
}
