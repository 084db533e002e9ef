package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/retry"
)

// DefaultFileName is the project configuration file looked up by the CLI.
const DefaultFileName = "bundlebuilder.yaml"

// CurrentVersion is the only configuration version understood.
const CurrentVersion = "1"

// Config is the project configuration of a bundle build.
type Config struct {
	Version     string              `yaml:"version"`
	Project     ProjectConfig       `yaml:"project"`
	Target      TargetConfig        `yaml:"target"`
	Output      OutputConfig        `yaml:"output"`
	Compression CompressionConfig   `yaml:"compression"`
	Cache       CacheConfig         `yaml:"cache"`
	Logging     LoggingConfig       `yaml:"logging"`
	Metrics     MetricsConfig       `yaml:"metrics"`
	Bundles     []bundle.Definition `yaml:"bundles"`

	// dir is the directory of the loaded file; relative paths resolve against it.
	dir string
}

// ProjectConfig locates the project and its asset catalog.
type ProjectConfig struct {
	Root    string `yaml:"root"`    // project root, default: the config directory
	Catalog string `yaml:"catalog"` // asset catalog, relative to Root
}

// TargetConfig selects the build target.
type TargetConfig struct {
	Platform     string `yaml:"platform"`
	Group        string `yaml:"group,omitempty"` // derived from Platform when empty
	TypeDatabase string `yaml:"type_database,omitempty"`
}

// OutputConfig holds the output and scratch folders, relative to the project root.
type OutputConfig struct {
	Dir     string `yaml:"dir"`
	TempDir string `yaml:"temp_dir"`
}

// CompressionConfig is the raw compression section; see Config.CompressionSettings.
type CompressionConfig struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

// CacheConfig configures the stage cache.
type CacheConfig struct {
	Enabled *bool        `yaml:"enabled,omitempty"` // default true
	Backend CacheBackend `yaml:"backend"`
	Path    string       `yaml:"path"` // directory (fs) or database file (sqlite)
	Retry   RetryConfig  `yaml:"retry,omitempty"`
}

// RetryConfig controls how often a failed cache write is retried. SQLite
// returns "database is locked" while another build holds the file.
type RetryConfig struct {
	Backoff      string        `yaml:"backoff,omitempty"` // fixed|linear|exponential
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
	MaxDelay     time.Duration `yaml:"max_delay,omitempty"`
	MaxRetries   *int          `yaml:"max_retries,omitempty"` // default 2
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MetricsConfig configures the Prometheus textfile dump.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// Load reads, expands, defaults and validates the configuration at path.
// .env files next to it are loaded first so ${VAR} references can use them.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, dberrors.ConfigError("failed to resolve configuration path").
			WithCause(err).WithPath(path).Build()
	}
	dir := filepath.Dir(abs)

	loaded, err := loadEnvFiles(dir)
	if err != nil {
		return nil, dberrors.ConfigError("failed to load environment file").WithCause(err).Build()
	}
	for _, f := range loaded {
		slog.Debug("Loaded environment file", slog.String("path", f))
	}

	// #nosec G304 - the path is supplied by the operator
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, dberrors.ConfigError("configuration file not found").WithPath(abs).Build()
		}
		return nil, dberrors.IOError("failed to read configuration file").WithCause(err).WithPath(abs).Build()
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.dir = dir
	return cfg, nil
}

// Parse decodes configuration content, expanding ${VAR} references from the
// environment, then applies defaults and validates. Relative paths resolve
// against the working directory until the config is loaded from a file.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, dberrors.ConfigError("failed to parse configuration").WithCause(err).Build()
	}

	if cfg.Version != CurrentVersion {
		return nil, dberrors.ConfigError(fmt.Sprintf("unsupported configuration version %q (expected %q)", cfg.Version, CurrentVersion)).Build()
	}

	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Dir returns the directory the configuration was loaded from.
func (c *Config) Dir() string { return c.dir }

// ProjectRoot returns the absolute project root.
func (c *Config) ProjectRoot() string {
	return c.resolve(c.dir, c.Project.Root)
}

// ResolvePath resolves p against the project root.
func (c *Config) ResolvePath(p string) string {
	return c.resolve(c.ProjectRoot(), p)
}

func (c *Config) resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	if base == "" {
		base = "."
	}
	abs, err := filepath.Abs(filepath.Join(base, p))
	if err != nil {
		return filepath.Join(base, p)
	}
	return abs
}

// CatalogPath returns the absolute asset catalog path.
func (c *Config) CatalogPath() string { return c.ResolvePath(c.Project.Catalog) }

// OutputPath returns the absolute output folder.
func (c *Config) OutputPath() string { return c.ResolvePath(c.Output.Dir) }

// TempPath returns the absolute temporary build folder.
func (c *Config) TempPath() string { return c.ResolvePath(c.Output.TempDir) }

// CachePath returns the absolute cache location.
func (c *Config) CachePath() string { return c.ResolvePath(c.Cache.Path) }

// CacheEnabled reports whether stage caching is on.
func (c *Config) CacheEnabled() bool {
	return c.Cache.Enabled == nil || *c.Cache.Enabled
}

// RetryPolicy returns the cache write retry policy.
func (c *Config) RetryPolicy() (retry.Policy, error) {
	mode, err := retry.ParseMode(c.Cache.Retry.Backoff)
	if err != nil {
		return retry.Policy{}, err
	}
	maxRetries := retry.DefaultPolicy().MaxRetries
	if c.Cache.Retry.MaxRetries != nil {
		maxRetries = *c.Cache.Retry.MaxRetries
	}
	return retry.NewPolicy(mode, c.Cache.Retry.InitialDelay, c.Cache.Retry.MaxDelay, maxRetries), nil
}

// Settings returns the build settings for the configured target.
func (c *Config) Settings() bundle.BuildSettings {
	return bundle.NewSettings(c.Target.TypeDatabase, c.Target.Platform, c.Target.Group)
}

// CompressionSettings returns the parsed compression section.
func (c *Config) CompressionSettings() (bundle.CompressionConfig, error) {
	return bundle.ParseCompression(c.Compression.Mode, c.Compression.Level)
}

// Input returns the bundle definitions as build input.
func (c *Config) Input() bundle.BuildInput {
	return bundle.BuildInput{Definitions: c.Bundles}
}

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return dberrors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithPath(path).Build()
	}

	enabled := true
	example := Config{
		Version: CurrentVersion,
		Project: ProjectConfig{Root: ".", Catalog: "catalog.yaml"},
		Target:  TargetConfig{Platform: "StandaloneLinux64"},
		Output:  OutputConfig{Dir: bundle.DefaultOutputPath, TempDir: bundle.DefaultTempPath},
		Compression: CompressionConfig{
			Mode:  string(bundle.CompressionPerChunk),
			Level: string(bundle.LevelBalanced),
		},
		Cache:   CacheConfig{Enabled: &enabled, Backend: CacheBackendFS, Path: DefaultCachePath},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
		Bundles: []bundle.Definition{
			{Name: "environment", Assets: []bundle.AssetRef{{Asset: "0123456789abcdef0123456789abcdef"}}},
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return dberrors.InternalError("failed to marshal example configuration").WithCause(err).Build()
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return dberrors.IOError("failed to write configuration file").WithCause(err).WithPath(path).Build()
	}
	return nil
}
