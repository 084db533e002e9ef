package config

import (
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
)

// DefaultCachePath is the cache location relative to the project root.
const DefaultCachePath = "Library/BundleCache"

// DefaultSQLiteFile is the database file name used when the sqlite backend
// is given a directory.
const DefaultSQLiteFile = "cache.db"

func applyDefaults(cfg *Config) {
	if cfg.Project.Root == "" {
		cfg.Project.Root = "."
	}
	if cfg.Project.Catalog == "" {
		cfg.Project.Catalog = "catalog.yaml"
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = bundle.DefaultOutputPath
	}
	if cfg.Output.TempDir == "" {
		cfg.Output.TempDir = bundle.DefaultTempPath
	}

	def := bundle.DefaultCompression()
	if cfg.Compression.Mode == "" {
		cfg.Compression.Mode = string(def.Mode)
	}
	if cfg.Compression.Level == "" {
		cfg.Compression.Level = string(def.Level)
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheBackendFS
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath
	}

	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
}
