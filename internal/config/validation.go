package config

import (
	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/normalization"
)

// CacheBackend selects the object store behind the stage cache.
type CacheBackend string

const (
	CacheBackendFS     CacheBackend = "fs"
	CacheBackendSQLite CacheBackend = "sqlite"
	CacheBackendMemory CacheBackend = "memory"
)

var cacheBackends = normalization.NewEnum("cache backend", CacheBackendFS,
	CacheBackendFS, CacheBackendSQLite, CacheBackendMemory).
	WithAlias("filesystem", CacheBackendFS)

// Validate checks a defaulted configuration. Enumerations are canonicalized
// in place.
func Validate(cfg *Config) error {
	if cfg.Target.Platform == "" {
		return dberrors.ValidationError("target.platform is required").Build()
	}

	if err := cfg.Input().Validate(); err != nil {
		return err
	}

	compression, err := cfg.CompressionSettings()
	if err != nil {
		return dberrors.ValidationError("invalid compression settings").
			WithCause(err).
			WithContext("mode", cfg.Compression.Mode).
			WithContext("level", cfg.Compression.Level).
			Build()
	}
	cfg.Compression = CompressionConfig{Mode: string(compression.Mode), Level: string(compression.Level)}

	backend, err := cacheBackends.Parse(string(cfg.Cache.Backend))
	if err != nil {
		return dberrors.ValidationError("invalid cache backend").
			WithCause(err).
			WithContext("backend", string(cfg.Cache.Backend)).
			Build()
	}
	cfg.Cache.Backend = backend

	if r := cfg.Cache.Retry; r.MaxRetries != nil && *r.MaxRetries < 0 {
		return dberrors.ValidationError("cache.retry.max_retries cannot be negative").
			WithContext("max_retries", *r.MaxRetries).
			Build()
	}
	if _, err := cfg.RetryPolicy(); err != nil {
		return dberrors.ValidationError("invalid cache retry settings").
			WithCause(err).
			WithContext("backoff", cfg.Cache.Retry.Backoff).
			Build()
	}

	return nil
}
