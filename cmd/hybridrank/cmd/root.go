// Package cmd provides the CLI commands for hybridrank.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrank/internal/config"
	rerrors "github.com/Aman-CERP/hybridrank/internal/errors"
	"github.com/Aman-CERP/hybridrank/internal/logging"
	"github.com/Aman-CERP/hybridrank/pkg/version"
)

// app holds state shared by one command tree: persistent flags, the loaded
// configuration and the logger set up before each run.
type app struct {
	debug      bool
	configPath string

	cfg    *config.Config
	cfgErr error
	loaded bool

	logger         *slog.Logger
	loggingCleanup func()
}

// NewRootCmd creates the root command for the hybridrank CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "hybridrank",
		Short: "Fuse sparse, dense and lexical retrieval results",
		Long: `hybridrank fuses per-document scores from a sparse (SPLADE-style), a dense
(embedding) and an optional lexical (BM25) retriever into one ranked list,
then trims it to a passage and token budget before it reaches a reader model.

Retrieval results are read from YAML or JSON files, so backend output can be
replayed and compared under different weights and fusion methods.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetVersionTemplate("hybridrank version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging to ~/.hybridrank/logs/")
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: user config + .hybridrank.yaml)")

	cmd.PersistentPreRunE = a.startLogging
	cmd.PersistentPostRunE = a.stopLogging

	cmd.AddCommand(newScoreCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		printError(root.ErrOrStderr(), err)
	}
	return err
}

// printError renders coded errors with their details and hint, and plain
// errors (bad flags, unknown commands) as a single line.
func printError(w io.Writer, err error) {
	var re *rerrors.RankError
	if errors.As(err, &re) {
		_, _ = fmt.Fprint(w, rerrors.FormatForCLI(err))
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}

// startLogging sets up the default logger. --debug adds a rotating JSON log
// file at debug level; otherwise the configured level applies to stderr.
func (a *app) startLogging(cmd *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if a.debug {
		logCfg = logging.DebugConfig()
	} else if cfg, err := a.loadConfig(); err == nil {
		logCfg.Level = cfg.Logging.Level
	}
	logCfg.Stderr = cmd.ErrOrStderr()

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	a.logger = logger
	a.loggingCleanup = cleanup
	slog.SetDefault(logger)

	if a.debug {
		logger.Info("Debug logging enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Version))
	}
	return nil
}

func (a *app) stopLogging(_ *cobra.Command, _ []string) error {
	if a.loggingCleanup != nil {
		if a.debug {
			a.logger.Info("Debug logging stopped")
		}
		a.loggingCleanup()
		a.loggingCleanup = nil
	}
	return nil
}

// loadConfig loads the --config file if given, otherwise the merged user and
// project configuration for the working directory. The result is cached.
func (a *app) loadConfig() (*config.Config, error) {
	if a.loaded {
		return a.cfg, a.cfgErr
	}
	a.loaded = true

	if a.configPath != "" {
		a.cfg, a.cfgErr = config.LoadFile(a.configPath)
	} else {
		dir, err := os.Getwd()
		if err != nil {
			dir = "."
		}
		a.cfg, a.cfgErr = config.Load(dir)
	}
	if a.cfgErr != nil {
		a.cfgErr = rerrors.ConfigError(a.cfgErr.Error(), a.cfgErr).
			WithSuggestion("run 'hybridrank config show' after fixing the file, or 'hybridrank config init --force' to reset it")
	}
	return a.cfg, a.cfgErr
}

// watchedConfigPath returns the file the watch command reloads: --config if
// given, otherwise the project config in the working directory.
func (a *app) watchedConfigPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return config.FindProjectConfig(dir)
}

func (a *app) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger
}
