// Package reload applies configuration changes to a running Scorer.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/hybridrank/internal/config"
	"github.com/Aman-CERP/hybridrank/internal/metrics"
	"github.com/Aman-CERP/hybridrank/pkg/hybrid"
)

// DefaultDebounce is the quiet window before a changed file is reloaded.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a config file when it changes and pushes new weights into
// a Scorer. Configs that fail to load or validate are logged and ignored, so
// the scorer keeps its current weights.
type Watcher struct {
	path     string
	scorer   *hybrid.Scorer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	debounce time.Duration
	onReload func(*config.Config)

	mu    sync.Mutex // serializes Reload
	ready chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// WithMetrics counts applied weight updates.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Watcher) {
		w.metrics = m
	}
}

// WithDebounce sets the quiet window. Non-positive values use DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// OnReload registers a callback invoked with every successfully loaded
// config, after weights are applied.
func OnReload(fn func(*config.Config)) Option {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// New creates a watcher for the config file at path.
func New(path string, scorer *hybrid.Scorer, opts ...Option) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		scorer:   scorer,
		debounce: DefaultDebounce,
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Ready is closed once Run is watching.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Apply pushes cfg's weights into the scorer if they differ from the
// current ones. Reports whether weights changed. Settings fixed at
// construction (fusion method, rrf_k, boosts) are not applied; a change to
// them is logged.
func (w *Watcher) Apply(cfg *config.Config) bool {
	if method, err := hybrid.ParseFusionMethod(cfg.Scorer.FusionMethod); err == nil && method != w.scorer.FusionMethod() {
		w.logger.Warn("Fusion method change requires restart",
			slog.String("current", string(w.scorer.FusionMethod())),
			slog.String("configured", string(method)))
	}

	next := cfg.Weights()
	if next == w.scorer.Weights() {
		return false
	}
	w.scorer.UpdateWeights(next.Sparse, next.Dense, &next.BM25)
	w.metrics.WeightsUpdated()
	return true
}

// Reload loads the config file and applies it.
func (w *Watcher) Reload() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	cfg, err := config.LoadFile(w.path)
	if err != nil {
		w.logger.Warn("Ignoring invalid config, keeping current weights",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		return err
	}

	changed := w.Apply(cfg)
	w.logger.Debug("Config reloaded",
		slog.String("path", w.path),
		slog.Bool("weights_changed", changed))

	if w.onReload != nil {
		w.onReload(cfg)
	}
	return nil
}

// Run watches until ctx is done. The file's directory is watched rather than
// the file itself so atomic saves (write temp, rename over) are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	deb := newDebouncer(w.debounce, func() { _ = w.Reload() })
	defer deb.Stop()

	close(w.ready)
	w.logger.Info("Watching config for changes", slog.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			deb.Trigger()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Config watcher error", slog.String("error", err.Error()))
		}
	}
}
