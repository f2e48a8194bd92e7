package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/Aman-CERP/hybridrank/internal/errors"
	"github.com/Aman-CERP/hybridrank/pkg/hybrid"
)

// isolate runs the test in an empty directory with no user config.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

type scoreReport struct {
	Query           string             `json:"query"`
	Fused           int                `json:"fused"`
	LexicalDegraded bool               `json:"lexical_degraded"`
	Stats           hybrid.BudgetStats `json:"stats"`
	Results         []struct {
		Rank        int     `json:"rank"`
		DocID       string  `json:"doc_id"`
		HybridScore float64 `json:"hybrid_score"`
		BM25Rank    int     `json:"bm25_rank"`
		Text        string  `json:"text"`
	} `json:"results"`
}

func decodeReport(t *testing.T, stdout string) scoreReport {
	t.Helper()
	var r scoreReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &r), stdout)
	return r
}

func (r scoreReport) ids() []string {
	out := make([]string, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.DocID
	}
	return out
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: the root command
	cmd := NewRootCmd()

	// When: listing its subcommands
	names := make(map[string]bool)
	for _, sc := range cmd.Commands() {
		names[sc.Name()] = true
	}

	// Then: every command is registered
	for _, name := range []string{"score", "watch", "config", "logs", "version"} {
		assert.True(t, names[name], "missing %s command", name)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()

	debug := cmd.PersistentFlags().Lookup("debug")
	require.NotNil(t, debug)
	assert.Equal(t, "false", debug.DefValue)

	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "", cfg.DefValue)
}

func TestRootCmd_InvalidConfigFailsCommandsThatNeedIt(t *testing.T) {
	// Given: a config file with a negative weight
	dir := isolate(t)
	path := writeFile(t, dir, "bad.yaml", "scorer:\n  sparse_weight: -1\n")

	// When: showing the config
	_, _, err := runCLI(t, "--config", path, "config", "show")

	// Then: the error is a coded config error
	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeConfigInvalid, rerrors.GetCode(err))
}

func TestPrintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "coded error shows details and code",
			err: rerrors.New(rerrors.ErrCodeDuplicateDoc, "doc_id \"A\" appears more than once", nil).
				WithDetail("source", "sparse"),
			want: []string{"Error: doc_id \"A\" appears more than once", "source: sparse", "Code: ERR_404_DUPLICATE_DOC"},
		},
		{
			name: "plain error is one line",
			err:  errors.New("unknown flag: --nope"),
			want: []string{"Error: unknown flag: --nope\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printError(&buf, tt.err)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}
