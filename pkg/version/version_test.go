package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_IsSemverOrDev(t *testing.T) {
	// Given: the version package is imported

	// When: accessing Version

	// Then: it is "dev" or a semver tag, with or without a leading v
	require.NotEmpty(t, Version)
	if Version == "dev" {
		return
	}
	semver := regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[a-zA-Z0-9.+-]+)?(\+[a-zA-Z0-9.]+)?$`)
	assert.Regexp(t, semver, Version)
}

func TestString_IncludesProgramAndBuildInfo(t *testing.T) {
	// Given: the version package is imported

	// When: calling String()
	str := String()

	// Then: it names the program, version, commit and Go version
	assert.Contains(t, str, "hybridrank "+Version)
	assert.Contains(t, str, "commit: "+Commit)
	assert.Contains(t, str, "go: "+GoVersion)
}

func TestShort_ReturnsVersion(t *testing.T) {
	assert.Equal(t, Version, Short())
}

func TestGetInfo_MatchesPackageVariables(t *testing.T) {
	// Given: the version package is imported

	// When: calling GetInfo()
	info := GetInfo()

	// Then: every field mirrors the build variables and runtime
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, Commit, info.Commit)
	assert.Equal(t, Date, info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
}

func TestGetInfo_JSONFieldNames(t *testing.T) {
	// Given: build info
	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	// When: decoding it generically
	var parsed map[string]string
	require.NoError(t, json.Unmarshal(data, &parsed))

	// Then: it uses snake_case keys
	for _, key := range []string{"version", "commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, parsed, key)
	}
}
