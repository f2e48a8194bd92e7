package logging

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPaths(t *testing.T) {
	dir := DefaultLogDir()
	assert.Contains(t, dir, ".hybridrank")
	assert.Equal(t, "logs", filepath.Base(dir))
	assert.Equal(t, "hybridrank.log", filepath.Base(DefaultLogPath()))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Empty(t, cfg.FilePath, "file logging is opt-in")
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.True(t, cfg.WriteToStderr)
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()

	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, DefaultLogPath(), cfg.FilePath)
}

func TestSetup_StderrOnly(t *testing.T) {
	var stderr bytes.Buffer
	logger, cleanup, err := Setup(Config{Level: "warn", WriteToStderr: true, Stderr: &stderr})
	require.NoError(t, err)
	defer cleanup()

	logger.Info("hidden")
	logger.Warn("shown", "k", 1)

	out := stderr.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "k=1")
}

func TestSetup_FileAndStderr(t *testing.T) {
	var stderr bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	logger, cleanup, err := Setup(Config{
		Level:         "debug",
		FilePath:      logPath,
		MaxSizeMB:     1,
		MaxFiles:      3,
		WriteToStderr: true,
		Stderr:        &stderr,
	})
	require.NoError(t, err)

	logger.Debug("fused scores", "count", 3)
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"fused scores"`)
	assert.Contains(t, stderr.String(), "fused scores")
}

func TestSetup_NothingEnabled_Discards(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	require.NoError(t, err)
	defer cleanup()

	assert.NotPanics(t, func() { logger.Info("dropped") })
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, LevelFromString(tc.input).String(), tc.input)
	}
}

func TestFindLogFile(t *testing.T) {
	_, err := FindLogFile("/nonexistent/path/to/log.log")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	got, err := FindLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

// =============================================================================
// RotatingWriter
// =============================================================================

func TestRotatingWriter_Rotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotate.log")
	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	line := []byte(strings.Repeat("x", 400*1024) + "\n")
	for i := 0; i < 4; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	assert.FileExists(t, logPath)
	assert.FileExists(t, logPath+".1")
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "limit.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	line := []byte(strings.Repeat("y", 700*1024) + "\n")
	for i := 0; i < 6; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	assert.FileExists(t, logPath+".1")
	assert.FileExists(t, logPath+".2")
	assert.NoFileExists(t, logPath+".3")
}

func TestRotatingWriter_DefaultsForNonPositiveLimits(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "d.log"), 0, 0)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	assert.Equal(t, int64(defaultMaxSizeMB)*1024*1024, w.maxSize)
	assert.Equal(t, defaultMaxFiles, w.maxFiles)
}

func TestRotatingWriter_CloseIsIdempotent(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "c.log"), 1, 1)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Sync())
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	w, err := NewRotatingWriter(logPath, 10, 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = fmt.Fprintf(w, "goroutine %d line %d\n", g, i)
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, 400, strings.Count(string(data), "\n"))
}

// =============================================================================
// Viewer
// =============================================================================

const sampleLog = `{"time":"2026-01-02T10:00:00.000Z","level":"DEBUG","msg":"fused scores","count":3}
{"time":"2026-01-02T10:00:01.000Z","level":"INFO","msg":"Updated hybrid weights","sparse":0.4}
not json at all
{"time":"2026-01-02T10:00:02.000Z","level":"WARN","msg":"Hybrid weights do not sum to 1.0","sum":1.2}
{"time":"2026-01-02T10:00:03.000Z","level":"ERROR","msg":"retrieval failed","source":"dense"}
`

func writeSampleLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hybridrank.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))
	return path
}

func TestViewer_Tail(t *testing.T) {
	path := writeSampleLog(t)
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	entries, err := v.Tail(path, 2)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Hybrid weights do not sum to 1.0", entries[0].Msg)
	assert.Equal(t, "retrieval failed", entries[1].Msg)
}

func TestViewer_Tail_LevelFilterKeepsRawLines(t *testing.T) {
	path := writeSampleLog(t)
	v := NewViewer(ViewerConfig{Level: "warn", NoColor: true}, &bytes.Buffer{})

	entries, err := v.Tail(path, 0)

	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.False(t, entries[0].IsValid)
	assert.Equal(t, "WARN", entries[1].Level)
	assert.Equal(t, "ERROR", entries[2].Level)
}

func TestViewer_Tail_PatternFilter(t *testing.T) {
	path := writeSampleLog(t)
	v := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`weights`), NoColor: true}, &bytes.Buffer{})

	entries, err := v.Tail(path, 0)

	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestViewer_Tail_NonexistentFile(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	_, err := v.Tail("/nonexistent/file.log", 10)
	assert.Error(t, err)
}

func TestViewer_FormatEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	entry := v.parseLine(`{"time":"2026-01-02T10:00:01.5Z","level":"INFO","msg":"scored","zeta":1,"alpha":"a"}`)

	got := v.FormatEntry(entry)

	assert.Equal(t, "10:00:01.500 INFO  scored alpha=a zeta=1", got)
	assert.Equal(t, "plain text", v.FormatEntry(v.parseLine("plain text")))
}

func TestViewer_Print(t *testing.T) {
	var out bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &out)

	v.Print([]LogEntry{{Raw: "one"}, {Raw: "two"}})

	assert.Equal(t, "one\ntwo\n", out.String())
}

func TestViewer_Follow(t *testing.T) {
	path := writeSampleLog(t)
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	// Let Follow seek to the end before appending.
	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"time":"2026-01-02T10:00:04Z","level":"INFO","msg":"appended"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case e := <-entries:
		assert.Equal(t, "appended", e.Msg)
	case <-ctx.Done():
		t.Fatal("timed out waiting for followed entry")
	}

	cancel()
	assert.NoError(t, <-done)
}
