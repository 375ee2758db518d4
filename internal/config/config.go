// Package config loads atlas settings from the state directory, ATLAS_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/viper"

	"github.com/steveyegge/atlas/internal/schema"
)

// StateDirName is the directory under the project root holding all state.
const StateDirName = ".atlas"

// maxSocketPath keeps socket paths under the sun_path limit.
const maxSocketPath = 100

// Config holds all atlas settings.
type Config struct {
	// Root is the absolute project root. It is not read from the config file.
	Root string `mapstructure:"-"`

	StateDir   string           `mapstructure:"state_dir"`
	Index      IndexConfig      `mapstructure:"index"`
	Drift      DriftConfig      `mapstructure:"drift"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Daemon     DaemonConfig     `mapstructure:"daemon"`
	RPC        RPCConfig        `mapstructure:"rpc"`
	Automation AutomationConfig `mapstructure:"automation"`
	Reports    ReportsConfig    `mapstructure:"reports"`
	VCS        VCSConfig        `mapstructure:"vcs"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	Log        LogConfig        `mapstructure:"log"`
}

// IndexConfig controls discovery and bucketing.
type IndexConfig struct {
	Roots            []string          `mapstructure:"roots"`
	Include          []string          `mapstructure:"include"`
	Exclude          []string          `mapstructure:"exclude"`
	RespectGitignore bool              `mapstructure:"respect_gitignore"`
	OversizedLines   int               `mapstructure:"oversized_lines"`
	Workers          int               `mapstructure:"workers"`
	Categories       map[string]string `mapstructure:"categories"`
}

// DriftConfig controls drift classification.
type DriftConfig struct {
	MtimeTolerance time.Duration `mapstructure:"mtime_tolerance"`
}

// WatchConfig controls the file watcher.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// DaemonConfig controls daemon lifecycle.
type DaemonConfig struct {
	Socket        string        `mapstructure:"socket"`
	Session       string        `mapstructure:"session"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
}

// RPCConfig controls client timeouts.
type RPCConfig struct {
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// AutomationConfig seeds the workflow automation toggles.
type AutomationConfig struct {
	GroupReports    bool `mapstructure:"group_reports"`
	StageReports    bool `mapstructure:"stage_reports"`
	IndexOnComplete bool `mapstructure:"index_on_complete"`
}

// Toggles returns the configured automation toggles.
func (a AutomationConfig) Toggles() schema.AutomationToggles {
	return schema.AutomationToggles{
		GroupReports:    a.GroupReports,
		StageReports:    a.StageReports,
		IndexOnComplete: a.IndexOnComplete,
	}
}

// ReportsConfig controls report synthesis. An empty model disables the
// language-model narrative and reports are rendered from templates.
type ReportsConfig struct {
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`

	// Timeout bounds one narration, retries included. Zero disables it.
	Timeout time.Duration `mapstructure:"timeout"`
}

// VCSConfig controls version control detection. Prefer picks the backend
// for colocated git+jj repositories; empty defers to ATLAS_VCS, then jj.
type VCSConfig struct {
	Prefer string `mapstructure:"prefer"`
}

// DashboardConfig controls the websocket dashboard. Port 0 disables it.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig controls the rotated daemon log.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DefaultCategories maps directory names to module buckets.
func DefaultCategories() map[string]string {
	// First element is the bucket, the rest are directory names mapped to it.
	buckets := [][]string{
		{"services", "services", "service"},
		{"controllers", "controllers", "controller", "handlers", "handler"},
		{"routes", "routes", "router"},
		{"models", "models", "model", "entities", "schema"},
		{"components", "components"},
		{"hooks", "hooks"},
		{"utils", "utils", "util", "helpers", "lib"},
		{"middleware", "middleware"},
		{"types", "types", "interfaces"},
		{"config", "config"},
		{"api", "api"},
		{"store", "store", "stores", "state"},
		{"pages", "pages", "views", "screens"},
		{"cmd", "cmd"},
		{"internal", "internal"},
	}
	m := make(map[string]string)
	for _, b := range buckets {
		for _, dir := range b[1:] {
			m[dir] = b[0]
		}
	}
	return m
}

// DefaultExclude lists globs that are never indexed or watched.
func DefaultExclude() []string {
	return []string{
		"**/node_modules/**",
		"**/dist/**",
		"**/build/**",
		"**/coverage/**",
		"**/vendor/**",
		"**/.git/**",
		"**/.jj/**",
		"**/" + StateDirName + "/**",
		"**/fixtures/**",
		"**/__fixtures__/**",
		"**/testdata/**",
		"**/*.min.js",
		"**/*.d.ts",
	}
}

// New returns a viper instance with defaults, ATLAS_* environment binding
// and the state directory config file (if any) loaded. Callers may bind
// flags on it before calling Decode.
func New(root string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.AddConfigPath(filepath.Join(root, StateDirName))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Decode builds a Config from v for the project at root.
func Decode(v *viper.Viper, root string) (*Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Root = absRoot
	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(absRoot, StateDirName)
	} else if !filepath.IsAbs(cfg.StateDir) {
		cfg.StateDir = filepath.Join(absRoot, cfg.StateDir)
	}
	if len(cfg.Index.Categories) == 0 {
		cfg.Index.Categories = DefaultCategories()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is New followed by Decode.
func Load(root string) (*Config, error) {
	v, err := New(root)
	if err != nil {
		return nil, err
	}
	return Decode(v, root)
}

// Default returns the built-in configuration for root without reading any
// file or environment.
func Default(root string) *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := Decode(v, root)
	if err != nil {
		// Defaults always validate.
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("index.roots", []string{"."})
	v.SetDefault("index.include", []string{"**/*.{ts,tsx,js,jsx,mjs,cjs,go,py}"})
	v.SetDefault("index.exclude", DefaultExclude())
	v.SetDefault("index.respect_gitignore", true)
	v.SetDefault("index.oversized_lines", 500)
	v.SetDefault("index.workers", 8)
	v.SetDefault("drift.mtime_tolerance", 2*time.Second)
	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.debounce", 2*time.Second)
	v.SetDefault("daemon.flush_interval", 5*time.Minute)
	v.SetDefault("daemon.drain_timeout", 10*time.Second)
	v.SetDefault("rpc.dial_timeout", 500*time.Millisecond)
	v.SetDefault("rpc.read_timeout", 5*time.Second)
	v.SetDefault("automation.group_reports", true)
	v.SetDefault("automation.stage_reports", true)
	v.SetDefault("automation.index_on_complete", true)
	v.SetDefault("reports.max_tokens", 1024)
	v.SetDefault("reports.timeout", 30*time.Second)
	v.SetDefault("vcs.prefer", "")
	v.SetDefault("dashboard.port", 0)
	v.SetDefault("log.file", "daemon.log")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	if len(c.Index.Roots) == 0 {
		return fmt.Errorf("index.roots must not be empty")
	}
	if len(c.Index.Include) == 0 {
		return fmt.Errorf("index.include must not be empty")
	}
	if c.Index.Workers < 1 {
		return fmt.Errorf("index.workers must be at least 1 (got %d)", c.Index.Workers)
	}
	if c.Drift.MtimeTolerance < 0 {
		return fmt.Errorf("drift.mtime_tolerance must not be negative")
	}
	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive")
	}
	for dir, module := range c.Index.Categories {
		if module == "" || module == "summary" || strings.ContainsAny(module, `/\`) {
			return fmt.Errorf("index.categories[%s]: invalid module name %q", dir, module)
		}
	}
	if c.Reports.Timeout < 0 {
		return fmt.Errorf("reports.timeout must not be negative")
	}
	switch c.VCS.Prefer {
	case "", "git", "jj":
	default:
		return fmt.Errorf("vcs.prefer must be git or jj (got %q)", c.VCS.Prefer)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port)
	}
	return nil
}

// StatePath joins elem under the state directory.
func (c *Config) StatePath(elem ...string) string {
	return filepath.Join(append([]string{c.StateDir}, elem...)...)
}

// SocketPath returns the unix socket the daemon listens on. Paths too long
// for a unix socket fall back to a per-root name in the temp directory.
func (c *Config) SocketPath() string {
	if c.Daemon.Socket != "" {
		return c.Daemon.Socket
	}
	path := c.StatePath("daemon.sock")
	if len(path) <= maxSocketPath {
		return path
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("atlas-%016x.sock", xxhash.Sum64String(c.Root)))
}

// LogPath returns the absolute daemon log path.
func (c *Config) LogPath() string {
	if c.Log.File == "" || filepath.IsAbs(c.Log.File) {
		return c.Log.File
	}
	return c.StatePath(c.Log.File)
}
