// Package config loads hybridrank configuration: scorer weights and fusion
// settings, budget limits, retrieval fan-out and logging.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	rerrors "github.com/Aman-CERP/hybridrank/internal/errors"
	"github.com/Aman-CERP/hybridrank/pkg/hybrid"
)

// Project config file names, checked in this order.
const (
	ProjectConfigFile    = ".hybridrank.yaml"
	ProjectConfigFileAlt = ".hybridrank.yml"
)

// Config represents the complete hybridrank configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Scorer    ScorerConfig    `yaml:"scorer" json:"scorer"`
	Budget    BudgetConfig    `yaml:"budget" json:"budget"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Reload    ReloadConfig    `yaml:"reload" json:"reload"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ScorerConfig configures hybrid score fusion.
// Weights are configurable via:
//  1. User config (~/.config/hybridrank/config.yaml)
//  2. Project config (.hybridrank.yaml)
//  3. Env vars (HYBRIDRANK_SPARSE_WEIGHT, HYBRIDRANK_DENSE_WEIGHT, HYBRIDRANK_BM25_WEIGHT)
type ScorerConfig struct {
	// Weighted-sum weights. Under weighted_sum they should sum to 1.0;
	// a mismatch is logged as a warning, not rejected.
	SparseWeight float64 `yaml:"sparse_weight" json:"sparse_weight"`
	DenseWeight  float64 `yaml:"dense_weight" json:"dense_weight"`
	BM25Weight   float64 `yaml:"bm25_weight" json:"bm25_weight"`

	// FusionMethod is "weighted_sum" or "rrf".
	FusionMethod string `yaml:"fusion_method" json:"fusion_method"`

	// RRFK is the RRF rank-damping constant (default: 60).
	RRFK int `yaml:"rrf_k" json:"rrf_k"`

	TitleBoost    float64 `yaml:"title_boost" json:"title_boost"`
	AbstractBoost float64 `yaml:"abstract_boost" json:"abstract_boost"`
	ContentBoost  float64 `yaml:"content_boost" json:"content_boost"`

	// Normalize divides fused scores by the top score.
	Normalize bool `yaml:"normalize" json:"normalize"`
}

// BudgetConfig configures passage/token trimming.
type BudgetConfig struct {
	MaxPassages int `yaml:"max_passages" json:"max_passages"`
	// MaxTokens <= 0 disables the token cap.
	MaxTokens                  int     `yaml:"max_tokens" json:"max_tokens"`
	EnableDisagreementSampling bool    `yaml:"enable_disagreement_sampling" json:"enable_disagreement_sampling"`
	DisagreementThreshold      float64 `yaml:"disagreement_threshold" json:"disagreement_threshold"`
}

// RetrievalConfig configures the retrieval fan-out.
type RetrievalConfig struct {
	// FetchLimit is how many hits to request from each backend.
	FetchLimit int `yaml:"fetch_limit" json:"fetch_limit"`
	// PassageCacheSize is the LRU size for passage texts.
	PassageCacheSize int `yaml:"passage_cache_size" json:"passage_cache_size"`
	// Timeout bounds a whole retrieval fan-out (e.g. "5s"). Empty disables it.
	Timeout string `yaml:"timeout" json:"timeout"`
	// MaxRetries is how many times a failed backend call is retried.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// RetryDelay is the first backoff delay (e.g. "100ms").
	RetryDelay string `yaml:"retry_delay" json:"retry_delay"`
	// BreakerFailures is the consecutive lexical failures that open its circuit.
	BreakerFailures int `yaml:"breaker_failures" json:"breaker_failures"`
	// BreakerReset is how long the lexical circuit stays open (e.g. "30s").
	BreakerReset string `yaml:"breaker_reset" json:"breaker_reset"`
}

// ReloadConfig configures config hot-reload.
type ReloadConfig struct {
	// Debounce coalesces bursts of file writes (e.g. "200ms").
	Debounce string `yaml:"debounce" json:"debounce"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	w := hybrid.DefaultWeights()
	return &Config{
		Version: 1,
		Scorer: ScorerConfig{
			SparseWeight:  w.Sparse,
			DenseWeight:   w.Dense,
			BM25Weight:    w.BM25,
			FusionMethod:  string(hybrid.FusionWeightedSum),
			RRFK:          hybrid.DefaultRRFConstant,
			TitleBoost:    hybrid.DefaultTitleBoost,
			AbstractBoost: hybrid.DefaultAbstractBoost,
			ContentBoost:  hybrid.DefaultContentBoost,
			Normalize:     true,
		},
		Budget: BudgetConfig{
			MaxPassages:                hybrid.DefaultMaxPassages,
			MaxTokens:                  hybrid.DefaultMaxTokens,
			EnableDisagreementSampling: false,
			DisagreementThreshold:      hybrid.DefaultDisagreementThreshold,
		},
		Retrieval: RetrievalConfig{
			FetchLimit:       100,
			PassageCacheSize: 1000,
			Timeout:          "5s",
			MaxRetries:       2,
			RetryDelay:       "100ms",
			BreakerFailures:  5,
			BreakerReset:     "30s",
		},
		Reload: ReloadConfig{
			Debounce: "200ms",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/hybridrank/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/hybridrank/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hybridrank", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "hybridrank", "config.yaml")
	}
	return filepath.Join(home, ".config", "hybridrank", "config.yaml")
}

// Load loads configuration for the given directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/hybridrank/config.yaml)
//  3. Project config (.hybridrank.yaml in dir)
//  4. Environment variables (HYBRIDRANK_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path := FindProjectConfig(dir); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile loads defaults, then the given file, then env overrides.
// Used for an explicit --config path and by the reload watcher.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// FindProjectConfig returns the project config path in dir, or "" if none.
func FindProjectConfig(dir string) string {
	for _, name := range []string{ProjectConfigFile, ProjectConfigFileAlt} {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// loadYAML decodes a YAML file on top of the current values. Keys absent
// from the file keep their current value, so explicit zeros (max_tokens: 0)
// and false booleans are honored.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies HYBRIDRANK_* environment variable overrides.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if v, ok := envFloat("HYBRIDRANK_SPARSE_WEIGHT"); ok && v >= 0 {
		c.Scorer.SparseWeight = v
	}
	if v, ok := envFloat("HYBRIDRANK_DENSE_WEIGHT"); ok && v >= 0 {
		c.Scorer.DenseWeight = v
	}
	if v, ok := envFloat("HYBRIDRANK_BM25_WEIGHT"); ok && v >= 0 {
		c.Scorer.BM25Weight = v
	}
	if v := os.Getenv("HYBRIDRANK_FUSION_METHOD"); v != "" {
		c.Scorer.FusionMethod = v
	}
	if v, ok := envInt("HYBRIDRANK_RRF_K"); ok && v > 0 {
		c.Scorer.RRFK = v
	}

	if v, ok := envInt("HYBRIDRANK_MAX_PASSAGES"); ok && v >= 0 {
		c.Budget.MaxPassages = v
	}
	if v, ok := envInt("HYBRIDRANK_MAX_TOKENS"); ok {
		c.Budget.MaxTokens = v
	}
	if v := os.Getenv("HYBRIDRANK_DISAGREEMENT_SAMPLING"); v != "" {
		c.Budget.EnableDisagreementSampling = strings.ToLower(v) == "true" || v == "1"
	}
	if v, ok := envFloat("HYBRIDRANK_DISAGREEMENT_THRESHOLD"); ok && v >= 0 && v <= 1 {
		c.Budget.DisagreementThreshold = v
	}

	if v := os.Getenv("HYBRIDRANK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate validates the configuration and returns an error if invalid.
// Weights that do not sum to 1.0 are allowed; the scorer logs a warning.
func (c *Config) Validate() error {
	s := c.Scorer
	for name, w := range map[string]float64{
		"sparse_weight": s.SparseWeight,
		"dense_weight":  s.DenseWeight,
		"bm25_weight":   s.BM25Weight,
	} {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("scorer.%s must be a non-negative number, got %v", name, w)
		}
	}

	if _, err := hybrid.ParseFusionMethod(s.FusionMethod); err != nil {
		return fmt.Errorf("scorer.fusion_method: %w", err)
	}

	if s.RRFK < 0 {
		return fmt.Errorf("scorer.rrf_k must be non-negative, got %d", s.RRFK)
	}

	for name, b := range map[string]float64{
		"title_boost":    s.TitleBoost,
		"abstract_boost": s.AbstractBoost,
		"content_boost":  s.ContentBoost,
	} {
		if b < 0 || math.IsNaN(b) || math.IsInf(b, 0) {
			return fmt.Errorf("scorer.%s must be a non-negative number, got %v", name, b)
		}
	}

	if c.Budget.MaxPassages < 0 {
		return fmt.Errorf("budget.max_passages must be non-negative, got %d", c.Budget.MaxPassages)
	}
	if t := c.Budget.DisagreementThreshold; math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("budget.disagreement_threshold must be between 0 and 1, got %v", t)
	}

	if c.Retrieval.FetchLimit < 0 {
		return fmt.Errorf("retrieval.fetch_limit must be non-negative, got %d", c.Retrieval.FetchLimit)
	}
	if c.Retrieval.MaxRetries < 0 {
		return fmt.Errorf("retrieval.max_retries must be non-negative, got %d", c.Retrieval.MaxRetries)
	}
	if c.Retrieval.BreakerFailures < 0 {
		return fmt.Errorf("retrieval.breaker_failures must be non-negative, got %d", c.Retrieval.BreakerFailures)
	}
	for name, v := range map[string]string{
		"retrieval.timeout":       c.Retrieval.Timeout,
		"retrieval.retry_delay":   c.Retrieval.RetryDelay,
		"retrieval.breaker_reset": c.Retrieval.BreakerReset,
		"reload.debounce":         c.Reload.Debounce,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// Weights returns the scorer weights as a hybrid.Weights snapshot.
func (c *Config) Weights() hybrid.Weights {
	return hybrid.Weights{
		Sparse: c.Scorer.SparseWeight,
		Dense:  c.Scorer.DenseWeight,
		BM25:   c.Scorer.BM25Weight,
	}
}

// ScorerOptions translates the scorer section into hybrid options.
// Call Validate first; an invalid fusion method falls back to weighted_sum.
func (c *Config) ScorerOptions(logger *slog.Logger) []hybrid.Option {
	method, err := hybrid.ParseFusionMethod(c.Scorer.FusionMethod)
	if err != nil {
		method = hybrid.FusionWeightedSum
	}
	return []hybrid.Option{
		hybrid.WithWeights(c.Weights()),
		hybrid.WithFusionMethod(method),
		hybrid.WithRRFK(c.Scorer.RRFK),
		hybrid.WithFieldBoosts(c.Scorer.TitleBoost, c.Scorer.AbstractBoost, c.Scorer.ContentBoost),
		hybrid.WithLogger(logger),
	}
}

// BudgetOptions translates the budget section into hybrid options.
func (c *Config) BudgetOptions() []hybrid.BudgetOption {
	return []hybrid.BudgetOption{
		hybrid.WithMaxPassages(c.Budget.MaxPassages),
		hybrid.WithMaxTokens(c.Budget.MaxTokens),
		hybrid.WithDisagreementSampling(c.Budget.EnableDisagreementSampling, c.Budget.DisagreementThreshold),
	}
}

// RetrievalTimeout returns the parsed retrieval timeout, 0 if unset.
func (c *Config) RetrievalTimeout() time.Duration {
	return parseDuration(c.Retrieval.Timeout)
}

// RetryConfig returns the backend retry policy.
func (c *Config) RetryConfig() rerrors.RetryConfig {
	rc := rerrors.DefaultRetryConfig()
	rc.MaxRetries = c.Retrieval.MaxRetries
	if d := parseDuration(c.Retrieval.RetryDelay); d > 0 {
		rc.InitialDelay = d
	}
	return rc
}

// BreakerOptions returns the lexical circuit breaker settings.
func (c *Config) BreakerOptions() []rerrors.CircuitBreakerOption {
	opts := []rerrors.CircuitBreakerOption{rerrors.WithMaxFailures(c.Retrieval.BreakerFailures)}
	if d := parseDuration(c.Retrieval.BreakerReset); d > 0 {
		opts = append(opts, rerrors.WithResetTimeout(d))
	}
	return opts
}

// ReloadDebounce returns the parsed reload debounce, 0 if unset.
func (c *Config) ReloadDebounce() time.Duration {
	return parseDuration(c.Reload.Debounce)
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
