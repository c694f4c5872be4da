/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package libinfo

import (
	"debug/buildinfo"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractLibVersion(t *testing.T) {
	makeBuildInfo := func(deps ...*debug.Module) *buildinfo.BuildInfo {
		return &buildinfo.BuildInfo{Deps: deps}
	}

	tests := []struct {
		name    string
		info    *buildinfo.BuildInfo
		wantVer string
	}{
		{
			name:    "library is a direct dependency",
			info:    makeBuildInfo(&debug.Module{Path: moduleName, Version: "v0.7.1"}),
			wantVer: "v0.7.1",
		},
		{
			name:    "major version suffix in module path",
			info:    makeBuildInfo(&debug.Module{Path: moduleName + "/v3", Version: "v3.1.0"}),
			wantVer: "v3.1.0",
		},
		{
			name: "found among other dependencies",
			info: makeBuildInfo(
				&debug.Module{Path: "github.com/stretchr/testify", Version: "v1.8.4"},
				&debug.Module{Path: moduleName, Version: "v0.7.1"},
				&debug.Module{Path: "gopkg.in/yaml.v3", Version: "v3.0.1"},
			),
			wantVer: "v0.7.1",
		},
		{
			name:    "module path prefix does not match",
			info:    makeBuildInfo(&debug.Module{Path: moduleName + "-extras", Version: "v0.1.0"}),
			wantVer: "",
		},
		{
			name:    "library is not a dependency",
			info:    makeBuildInfo(&debug.Module{Path: "github.com/other/module", Version: "v1.0.0"}),
			wantVer: "",
		},
		{
			name:    "no dependencies at all",
			info:    makeBuildInfo(),
			wantVer: "",
		},
		{
			name:    "nil build info",
			info:    nil,
			wantVer: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.wantVer, extractLibVersion(tt.info, moduleName))
		})
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	require.True(t, strings.HasPrefix(ua, LibShortName+"/"))
	require.NotEqual(t, LibShortName+"/", ua, "version part should not be empty")
}

func TestAddPrometheusLibVersionLabel(t *testing.T) {
	labels := AddPrometheusLibVersionLabel(map[string]string{"queue_name": "main"})
	require.Equal(t, "main", labels["queue_name"])
	require.NotEmpty(t, labels[PrometheusLibVersionLabel])
}
