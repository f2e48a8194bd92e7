package cmd

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/Aman-CERP/hybridrank/internal/errors"
)

// syncBuffer is a bytes.Buffer safe for the watcher's goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchCmd_RequiresConfigFile(t *testing.T) {
	// Given: no --config and no project config
	dir := isolate(t)
	args := append([]string{"watch"}, scoreInputs(t, dir)...)

	// When: starting watch
	_, _, err := runCLI(t, args...)

	// Then: it refuses with a hint
	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeConfigNotFound, rerrors.GetCode(err))
}

func TestWatchCmd_RescoresOnWeightChange(t *testing.T) {
	// Given: a config weighting sparse only
	dir := isolate(t)
	cfgPath := writeFile(t, dir, "tune.yaml",
		"scorer:\n  sparse_weight: 1\n  dense_weight: 0\n  bm25_weight: 0\nreload:\n  debounce: 20ms\n")
	args := append([]string{"--config", cfgPath, "watch"}, scoreInputs(t, dir)...)

	cmd := NewRootCmd()
	stdout := &syncBuffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs(args)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	// When: the watcher is up and the weights flip to dense only
	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "Watching")
	}, 5*time.Second, 10*time.Millisecond)
	firstTop := firstRow(stdout.String())
	assert.Contains(t, firstTop, "A")

	writeFile(t, dir, "tune.yaml",
		"scorer:\n  sparse_weight: 0\n  dense_weight: 1\n  bm25_weight: 0\nreload:\n  debounce: 20ms\n")

	// Then: a reload notice and a re-scored table with B on top follow
	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "Reloaded")
	}, 5*time.Second, 10*time.Millisecond)
	const reloaded = "sparse=0.00 dense=1.00 bm25=0.00"
	require.Eventually(t, func() bool {
		out := stdout.String()
		i := strings.Index(out, reloaded)
		return i >= 0 && strings.Contains(out[i:], "kept")
	}, 5*time.Second, 10*time.Millisecond)

	out := stdout.String()
	assert.Contains(t, firstRow(out[strings.Index(out, reloaded):]), "B")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

// firstRow returns the first ranked row of the first table in out.
func firstRow(out string) string {
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "#  doc_id") && i+1 < len(lines) {
			return lines[i+1]
		}
	}
	return ""
}
