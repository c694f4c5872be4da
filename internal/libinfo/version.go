/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package libinfo

import (
	"debug/buildinfo"
	"fmt"
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const LibShortName = "tassiac-sub000"

const moduleName = "github.com/gitboycryptogeek/" + LibShortName

const PrometheusLibVersionLabel = "tassiac_sub000_version"

// AddPrometheusLibVersionLabel returns a copy of the passed labels
// with the library version label added.
func AddPrometheusLibVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusLibVersionLabel] = GetLibVersion()
	return labelsCopy
}

// UserAgent builds the default User-Agent string for outgoing HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", LibShortName, GetLibVersion())
}

var (
	libVersion     string
	libVersionOnce sync.Once
)

// GetLibVersion returns the version of this library as it appears
// in the build info of the binary that imports it.
func GetLibVersion() string {
	libVersionOnce.Do(func() {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			libVersion = extractLibVersion(buildInfo, moduleName)
		}
		if libVersion == "" {
			libVersion = "v0.0.0"
		}
	})
	return libVersion
}

// extractLibVersion finds modName among the build info dependencies and returns its version.
// Major-version module paths ("modName/vN") are recognized as well.
func extractLibVersion(buildInfo *buildinfo.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	modulePathRe := regexp.MustCompile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	for _, dep := range buildInfo.Deps {
		if modulePathRe.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
