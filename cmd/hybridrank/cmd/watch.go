package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/hybridrank/internal/config"
	rerrors "github.com/Aman-CERP/hybridrank/internal/errors"
	"github.com/Aman-CERP/hybridrank/internal/metrics"
	"github.com/Aman-CERP/hybridrank/internal/output"
	"github.com/Aman-CERP/hybridrank/internal/reload"
)

const metricsShutdownTimeout = 5 * time.Second

func newWatchCmd(a *app) *cobra.Command {
	var (
		in          inputFlags
		view        viewFlags
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-score whenever the config file's weights change",
		Long: `Score the inputs once, then watch the config file and re-score each time its
weights change. Edits that fail to parse or validate are logged and ignored.

Only the sparse, dense and bm25 weights are reloaded. Changing the fusion
method, boosts or budget requires a restart.

The watched file is --config, or .hybridrank.yaml in the working directory.`,
		Example: `  # Tune weights interactively
  hybridrank watch --config tune.yaml --query bundle.yaml --explain

  # Also serve Prometheus metrics
  hybridrank watch --query bundle.yaml --metrics-addr :9464`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, a, &in, &view, metricsAddr)
		},
	}

	in.register(cmd.Flags())
	view.register(cmd.Flags())
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")

	return cmd
}

func runWatch(cmd *cobra.Command, a *app, in *inputFlags, view *viewFlags, metricsAddr string) error {
	path := a.watchedConfigPath()
	if path == "" {
		return rerrors.New(rerrors.ErrCodeConfigNotFound, "no config file to watch", nil).
			WithSuggestion("pass --config, or run 'hybridrank config init --project'")
	}

	base, err := a.loadConfig()
	if err != nil {
		return err
	}
	cfg, err := in.apply(cmd, base)
	if err != nil {
		return err
	}
	q, err := in.load()
	if err != nil {
		return err
	}

	logger := a.log()
	m := metrics.New()
	p, err := buildPipeline(cfg, q, !in.noBudget, logger, m)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := output.New(cmd.OutOrStdout())
	var mu sync.Mutex
	rescore := func() {
		mu.Lock()
		defer mu.Unlock()

		res, err := p.Run(ctx, q.Text)
		if err != nil {
			logger.Error("Scoring failed", rerrors.LogAttrs(err)...)
			return
		}
		if err := view.render(out, res); err != nil {
			logger.Error("Failed to print results", slog.String("error", err.Error()))
		}
	}

	rescore()

	w := reload.New(path, p.Scorer(),
		reload.WithLogger(logger),
		reload.WithMetrics(m),
		reload.WithDebounce(cfg.ReloadDebounce()),
		reload.OnReload(func(*config.Config) {
			if !view.json {
				weights := p.Scorer().Weights()
				mu.Lock()
				out.Newline()
				out.Statusf("🔄", "Reloaded %s (sparse=%.2f dense=%.2f bm25=%.2f)",
					path, weights.Sparse, weights.Dense, weights.BM25)
				mu.Unlock()
			}
			rescore()
		}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	if metricsAddr != "" {
		serveMetrics(gctx, g, metricsAddr, m, logger)
	}

	select {
	case <-w.Ready():
		if !view.json {
			mu.Lock()
			out.Statusf("👀", "Watching %s for changes (Ctrl+C to stop)", path)
			mu.Unlock()
		}
	case <-gctx.Done():
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveMetrics runs a /metrics endpoint until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, m *metrics.Metrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("Serving metrics", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}
