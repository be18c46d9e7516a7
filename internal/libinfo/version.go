/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package libinfo

import (
	"debug/buildinfo"
	"regexp"
	"sync"

	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

// LibShortName is the short name of the module, used in the default User-Agent.
const LibShortName = "scrapekit"

const moduleName = "github.com/storescrape/" + LibShortName

// PrometheusLibVersionLabel is a constant label added to all collectors of the module.
const PrometheusLibVersionLabel = "scrapekit_version"

// AddPrometheusLibVersionLabel returns a copy of labels with the module version label added.
func AddPrometheusLibVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels))
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusLibVersionLabel] = GetLibVersion()
	return labelsCopy
}

// UserAgent returns the default User-Agent of outgoing scraper requests, e.g. "scrapekit/v1.2.0".
func UserAgent() string {
	return LibShortName + "/" + GetLibVersion()
}

var libVersion string
var libVersionOnce sync.Once

// GetLibVersion returns the version of the module as recorded in the build info of the binary.
func GetLibVersion() string {
	libVersionOnce.Do(initLibVersion)
	return libVersion
}

func initLibVersion() {
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		libVersion = extractLibVersion(buildInfo, moduleName)
	}
	if libVersion == "" {
		libVersion = "v0.0.0"
	}
}

// extractLibVersion extracts the version of the given module from the build info.
// It expects the module name to be in the form "moduleName" or "moduleName/vX" where X is a major version number.
// This format is used by Go modules to indicate major version changes.
func extractLibVersion(buildInfo *buildinfo.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	re, err := regexp.Compile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if err != nil {
		return "" // should never happen
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
