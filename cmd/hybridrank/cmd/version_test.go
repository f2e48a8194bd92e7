package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridrank/pkg/version"
)

func TestVersionCmd_DefaultOutput(t *testing.T) {
	// Given: a version command
	isolate(t)

	// When: executing without flags
	stdout, _, err := runCLI(t, "version")

	// Then: it prints program, version and commit
	require.NoError(t, err)
	assert.Contains(t, stdout, "hybridrank")
	assert.Contains(t, stdout, version.Version)
	assert.Contains(t, stdout, "commit")
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	isolate(t)

	stdout, _, err := runCLI(t, "version", "--short")

	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(stdout))
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	isolate(t)

	stdout, _, err := runCLI(t, "version", "--json")

	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, version.Version, info["version"])
	assert.Contains(t, info, "go_version")
}
