package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/build"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/cache"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/catalog"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/config"
	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/logfields"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/storage"
)

// LogLevelEnv overrides the log level when -v is not given.
const LogLevelEnv = "BUNDLEBUILDER_LOG_LEVEL"

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition and global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"bundlebuilder.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Build every bundle defined in the configuration"`
	Watch   WatchCmd   `cmd:"" help:"Rebuild whenever the configuration or catalog changes"`
	Cache   CacheCmd   `cmd:"" help:"Inspect and maintain the stage cache"`
	Inspect InspectCmd `cmd:"" help:"Print the header and commands of a bundle file"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
}

// AfterApply runs after flag parsing; sets up logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	g.Logger = newLogger(parseLogLevel(c.Verbose), config.LogFormatText)
	slog.SetDefault(g.Logger)
	return nil
}

// parseLogLevel resolves the level from -v, then BUNDLEBUILDER_LOG_LEVEL.
func parseLogLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	if raw := strings.TrimSpace(os.Getenv(LogLevelEnv)); raw != "" {
		return config.NormalizeLogLevel(raw).SlogLevel()
	}
	return slog.LevelInfo
}

func newLogger(level slog.Level, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// applyConfigLogging switches to the configured logger unless the level was
// chosen on the command line or in the environment.
func applyConfigLogging(g *Global, root *CLI, cfg *config.Config) {
	level := cfg.Logging.Level.SlogLevel()
	if root.Verbose || os.Getenv(LogLevelEnv) != "" {
		level = parseLogLevel(root.Verbose)
	}
	g.Logger = newLogger(level, cfg.Logging.Format)
	slog.SetDefault(g.Logger)
}

// project bundles everything a build needs from the working tree.
type project struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	cache   *cache.Store
}

func (p *project) Close() {
	if p.cache == nil {
		return
	}
	if err := p.cache.Close(); err != nil {
		slog.Warn("Failed to close cache", logfields.Error(err))
	}
}

func (p *project) dependencies() build.Dependencies {
	return build.Dependencies{
		Analysis:   p.catalog.Collaborators(),
		Serializer: p.catalog,
		Dirty:      p.catalog,
		Cache:      p.cache,
	}
}

// loadProject loads the configuration, the catalog and, when caching is
// enabled, opens the cache.
func loadProject(configPath string, withCache bool) (*project, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Load(cfg.CatalogPath(), cfg.ProjectRoot())
	if err != nil {
		return nil, err
	}
	p := &project{cfg: cfg, catalog: cat}
	if withCache && cfg.CacheEnabled() {
		if p.cache, err = openCache(cfg); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// openCache opens the configured object store and wraps it as a stage cache.
func openCache(cfg *config.Config) (*cache.Store, error) {
	objects, err := openObjectStore(cfg.Cache.Backend, cfg.CachePath())
	if err != nil {
		return nil, dberrors.CacheError("failed to open cache").
			WithCause(err).
			WithContext("backend", string(cfg.Cache.Backend)).
			WithPath(cfg.CachePath()).
			Build()
	}
	policy, err := cfg.RetryPolicy()
	if err != nil {
		_ = objects.Close()
		return nil, dberrors.ConfigError("invalid cache retry settings").WithCause(err).Build()
	}
	return cache.NewStore(objects).WithRetry(policy), nil
}

func openObjectStore(backend config.CacheBackend, path string) (storage.ObjectStore, error) {
	switch backend {
	case config.CacheBackendMemory:
		return storage.NewMemoryStore(), nil
	case config.CacheBackendSQLite:
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, config.DefaultSQLiteFile)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, err
		}
		return storage.NewSQLiteStore(path)
	default:
		return storage.NewFSStore(path)
	}
}

// signalContext is canceled on interrupt or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
