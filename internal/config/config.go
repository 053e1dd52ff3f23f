// Package config loads and validates the engine configuration from YAML.
// Out-of-range values are clamped rather than rejected, so a partially bad
// config file degrades to defaults instead of blocking startup.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default config file location.
const DefaultConfigPath = "~/.config/featd/config.yaml"

// Bounds for clamped values.
const (
	MinWindowSize = 1
	MaxWindowSize = 200

	MinTopK = 1
	MaxTopK = 50

	MinCooldown = time.Minute
	MaxCooldown = 30 * 24 * time.Hour

	MinSemanticTimeout = 50 * time.Millisecond
	MaxSemanticTimeout = 30 * time.Second
)

// Weights configures the scoring components. Weights are non-negative;
// a zero weight disables the component.
type Weights struct {
	ContextMatch float64 `yaml:"context_match"`
	Popularity   float64 `yaml:"popularity"`
	Novelty      float64 `yaml:"novelty"`
	Semantic     float64 `yaml:"semantic"`
}

// DefaultWeights returns the default scoring weights.
func DefaultWeights() Weights {
	return Weights{
		ContextMatch: 0.45,
		Popularity:   0.25,
		Novelty:      0.15,
		Semantic:     0.15,
	}
}

// Cooldown configures the recommendation backoff policy. The cooldown after
// the n-th recommendation is Base * Factor^(n-1), capped at Max.
type Cooldown struct {
	Base   time.Duration `yaml:"base"`
	Factor float64       `yaml:"factor"`
	Max    time.Duration `yaml:"max"`

	// DismissExtension is added on a temporary dismissal.
	DismissExtension time.Duration `yaml:"dismiss_extension"`
}

// DefaultCooldown returns the default cooldown policy.
func DefaultCooldown() Cooldown {
	return Cooldown{
		Base:             6 * time.Hour,
		Factor:           2.0,
		Max:              14 * 24 * time.Hour,
		DismissExtension: 24 * time.Hour,
	}
}

// Config is the full engine configuration.
type Config struct {
	// ListenAddr is the HTTP listen address for the daemon.
	ListenAddr string `yaml:"listen_addr"`

	// DBPath is the SQLite database path (empty: ~/.featd/discovery.db).
	DBPath string `yaml:"db_path"`

	// CatalogPath is the feature catalog YAML file path.
	CatalogPath string `yaml:"catalog_path"`

	// WindowSize is the rolling context window size per user.
	WindowSize int `yaml:"window_size"`

	// TopK is the default number of recommendations per request.
	TopK int `yaml:"top_k"`

	// DiversityCap is the maximum features from one category in a result.
	DiversityCap int `yaml:"diversity_cap"`

	// ExplorationQuota is the number of no-signal-match candidates added
	// per request so low-signal features are not starved.
	ExplorationQuota int `yaml:"exploration_quota"`

	// EnforcePrerequisites excludes features whose prerequisites have not
	// reached the tried stage. Enabled by default.
	EnforcePrerequisites *bool `yaml:"enforce_prerequisites"`

	// HistoryLookback bounds how far back interaction history is read.
	HistoryLookback time.Duration `yaml:"history_lookback"`

	// HistoryMaxEvents bounds how many history events are read per query.
	HistoryMaxEvents int `yaml:"history_max_events"`

	// PopularityTau is the exponential decay time constant for the
	// popularity score component.
	PopularityTau time.Duration `yaml:"popularity_tau"`

	// SemanticTimeout bounds each call to the similarity collaborator.
	SemanticTimeout time.Duration `yaml:"semantic_timeout"`

	// SemanticCacheSize bounds the similarity LRU cache (entries).
	SemanticCacheSize int `yaml:"semantic_cache_size"`

	// SemanticEndpoint is the similarity collaborator base URL.
	// Empty disables the semantic component.
	SemanticEndpoint string `yaml:"semantic_endpoint"`

	Weights  Weights  `yaml:"weights"`
	Cooldown Cooldown `yaml:"cooldown"`
}

// Default returns the default configuration.
func Default() *Config {
	enforce := true
	return &Config{
		ListenAddr:           "127.0.0.1:8743",
		WindowSize:           20,
		TopK:                 5,
		DiversityCap:         2,
		ExplorationQuota:     2,
		EnforcePrerequisites: &enforce,
		HistoryLookback:      90 * 24 * time.Hour,
		HistoryMaxEvents:     500,
		PopularityTau:        7 * 24 * time.Hour,
		SemanticTimeout:      2 * time.Second,
		SemanticCacheSize:    4096,
		Weights:              DefaultWeights(),
		Cooldown:             DefaultCooldown(),
	}
}

// Load reads the config file at path, applying defaults for missing values
// and clamping out-of-range ones. A missing file is not an error: the
// defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandPath(DefaultConfigPath)
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.clamp()
	return cfg, nil
}

// clamp forces out-of-range values back into their bounds.
func (c *Config) clamp() {
	def := Default()

	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	c.WindowSize = clampInt(c.WindowSize, MinWindowSize, MaxWindowSize, def.WindowSize)
	c.TopK = clampInt(c.TopK, MinTopK, MaxTopK, def.TopK)
	c.DiversityCap = clampInt(c.DiversityCap, 1, MaxTopK, def.DiversityCap)
	if c.ExplorationQuota < 0 || c.ExplorationQuota > MaxTopK {
		c.ExplorationQuota = def.ExplorationQuota
	}
	if c.EnforcePrerequisites == nil {
		c.EnforcePrerequisites = def.EnforcePrerequisites
	}
	if c.HistoryLookback <= 0 {
		c.HistoryLookback = def.HistoryLookback
	}
	c.HistoryMaxEvents = clampInt(c.HistoryMaxEvents, 1, 100000, def.HistoryMaxEvents)
	if c.PopularityTau <= 0 {
		c.PopularityTau = def.PopularityTau
	}
	c.SemanticTimeout = clampDuration(c.SemanticTimeout, MinSemanticTimeout, MaxSemanticTimeout, def.SemanticTimeout)
	c.SemanticCacheSize = clampInt(c.SemanticCacheSize, 1, 1<<20, def.SemanticCacheSize)

	if c.Weights.ContextMatch < 0 {
		c.Weights.ContextMatch = 0
	}
	if c.Weights.Popularity < 0 {
		c.Weights.Popularity = 0
	}
	if c.Weights.Novelty < 0 {
		c.Weights.Novelty = 0
	}
	if c.Weights.Semantic < 0 {
		c.Weights.Semantic = 0
	}
	if c.Weights.ContextMatch+c.Weights.Popularity+c.Weights.Novelty+c.Weights.Semantic == 0 {
		c.Weights = DefaultWeights()
	}

	c.Cooldown.Base = clampDuration(c.Cooldown.Base, MinCooldown, MaxCooldown, def.Cooldown.Base)
	c.Cooldown.Max = clampDuration(c.Cooldown.Max, MinCooldown, MaxCooldown, def.Cooldown.Max)
	if c.Cooldown.Max < c.Cooldown.Base {
		c.Cooldown.Max = c.Cooldown.Base
	}
	if c.Cooldown.Factor < 1 {
		c.Cooldown.Factor = def.Cooldown.Factor
	}
	if c.Cooldown.DismissExtension <= 0 {
		c.Cooldown.DismissExtension = def.Cooldown.DismissExtension
	}
}

// Prerequisites reports whether prerequisite gating is enabled.
func (c *Config) Prerequisites() bool {
	return c.EnforcePrerequisites == nil || *c.EnforcePrerequisites
}

func clampInt(v, min, max, def int) int {
	if v == 0 {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampDuration(v, min, max, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ExpandPath expands ~ to the home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Manager holds the live configuration with hot-reload support.
type Manager struct {
	mu       sync.RWMutex
	cfg      *Config
	path     string
	logger   *slog.Logger
	onReload func(*Config)
}

// ManagerOptions configures the config manager.
type ManagerOptions struct {
	Path     string
	Logger   *slog.Logger
	OnReload func(*Config)
}

// NewManager creates a new config manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Path == "" {
		opts.Path = ExpandPath(DefaultConfigPath)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		path:     opts.Path,
		logger:   opts.Logger,
		onReload: opts.OnReload,
	}
}

// Load loads the config from disk.
func (m *Manager) Load() error {
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	m.logger.Info("config loaded", "path", m.path)
	return nil
}

// Reload reloads the config from disk and calls the onReload callback.
// Used for SIGHUP hot-reload.
func (m *Manager) Reload() error {
	if err := m.Load(); err != nil {
		return err
	}

	if m.onReload != nil {
		m.onReload(m.Get())
	}
	return nil
}

// Get returns the current config (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cfg == nil {
		return Default()
	}
	return m.cfg
}

// Path returns the config file path.
func (m *Manager) Path() string {
	return m.path
}
