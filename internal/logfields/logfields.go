// Package logfields holds the canonical slog attribute keys used across the pipeline.
package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID     = "build_id"
	KeyStage       = "stage"
	KeyBundle      = "bundle"
	KeyAsset       = "asset"
	KeyAddress     = "address"
	KeyPath        = "path"
	KeyCode        = "code"
	KeyCacheKey    = "cache_key"
	KeyCacheResult = "cache_result"
	KeyVersion     = "version"
	KeySteps       = "steps"
	KeyBytes       = "bytes"
	KeyCompression = "compression"
	KeyDurationMS  = "duration_ms"
	KeyElapsed     = "elapsed"
	KeyError       = "error"
	KeyCount       = "count"
	KeyOp          = "op"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr       { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr       { return slog.String(KeyStage, name) }
func Bundle(name string) slog.Attr      { return slog.String(KeyBundle, name) }
func Asset(id string) slog.Attr         { return slog.String(KeyAsset, id) }
func Address(a string) slog.Attr        { return slog.String(KeyAddress, a) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func Code(c string) slog.Attr           { return slog.String(KeyCode, c) }
func CacheKey(k string) slog.Attr       { return slog.String(KeyCacheKey, k) }
func CacheResult(r string) slog.Attr    { return slog.String(KeyCacheResult, r) }
func Version(v uint32) slog.Attr        { return slog.Uint64(KeyVersion, uint64(v)) }
func Steps(n int) slog.Attr             { return slog.Int(KeySteps, n) }
func Bytes(n int64) slog.Attr           { return slog.Int64(KeyBytes, n) }
func Compression(c string) slog.Attr    { return slog.String(KeyCompression, c) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }
func Elapsed(d time.Duration) slog.Attr { return slog.Duration(KeyElapsed, d) }
func Count(n int) slog.Attr             { return slog.Int(KeyCount, n) }
func Op(op string) slog.Attr            { return slog.String(KeyOp, op) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
