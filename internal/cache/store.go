package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"

	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/logfields"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/metrics"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/retry"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/storage"
)

// Metadata keys recorded next to each entry.
const (
	metaStage    = "stage"
	metaVersion  = "version"
	metaChecksum = "sha256"
)

// Store is the stage cache. It is safe for concurrent use when the underlying
// object store is.
type Store struct {
	objects  storage.ObjectStore
	logger   *slog.Logger
	recorder metrics.Recorder
	retry    retry.Policy
}

// NewStore creates a cache over objects.
func NewStore(objects storage.ObjectStore) *Store {
	return &Store{
		objects:  objects,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		retry:    retry.None(),
	}
}

// WithLogger sets a custom logger.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	s.logger = logger
	return s
}

// WithRecorder sets the metrics recorder for hit/miss accounting.
func (s *Store) WithRecorder(r metrics.Recorder) *Store {
	if r != nil {
		s.recorder = r
	}
	return s
}

// WithRetry retries failed writes according to p.
func (s *Store) WithRetry(p retry.Policy) *Store {
	s.retry = p
	return s
}

// Get returns the blob stored under key. Missing, unreadable and corrupt
// entries are all reported as a miss; corrupt ones are removed so the next Put
// can replace them.
func (s *Store) Get(ctx context.Context, key Key) ([]byte, bool) {
	digest := key.Digest()
	obj, err := s.objects.Get(ctx, digest)
	if err != nil {
		if storage.IsNotFound(err) {
			s.logger.DebugContext(ctx, "Cache miss", logfields.Stage(key.Stage), logfields.CacheKey(key.String()))
			s.recorder.IncCacheLookup(key.Stage, metrics.CacheMiss)
			return nil, false
		}
		s.logger.WarnContext(ctx, "Cache read failed, treating as miss",
			logfields.Stage(key.Stage), logfields.CacheKey(key.String()), logfields.Error(err))
		s.recorder.IncCacheLookup(key.Stage, metrics.CacheError)
		return nil, false
	}

	if want := obj.Metadata.Custom[metaChecksum]; want != "" && want != checksum(obj.Data) {
		s.logger.WarnContext(ctx, "Cache entry corrupt, discarding",
			logfields.Stage(key.Stage), logfields.CacheKey(key.String()))
		s.recorder.IncCacheLookup(key.Stage, metrics.CacheError)
		if err := s.objects.Delete(ctx, digest); err != nil && !storage.IsNotFound(err) {
			s.logger.WarnContext(ctx, "Failed to discard corrupt cache entry", logfields.Error(err))
		}
		return nil, false
	}

	s.logger.DebugContext(ctx, "Cache hit",
		logfields.Stage(key.Stage), logfields.CacheKey(key.String()), logfields.Bytes(obj.Size))
	s.recorder.IncCacheLookup(key.Stage, metrics.CacheHit)
	return obj.Data, true
}

// Put stores blob under key. Storing the same key twice keeps the first blob;
// stage outputs are deterministic in their key.
func (s *Store) Put(ctx context.Context, key Key, blob []byte) error {
	obj := &storage.Object{
		Hash: key.Digest(),
		Type: storage.ObjectTypeStageOutput,
		Data: blob,
		Metadata: storage.Metadata{Custom: map[string]string{
			metaStage:    key.Stage,
			metaVersion:  strconv.FormatUint(uint64(key.Version), 10),
			metaChecksum: checksum(blob),
		}},
	}
	attempt := 0
	err := retry.Do(ctx, s.retry, func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return retry.Permanent(err)
		}
		_, err := s.objects.Put(ctx, obj)
		if err != nil && attempt <= s.retry.MaxRetries {
			s.logger.DebugContext(ctx, "Cache store failed, retrying",
				logfields.Stage(key.Stage), logfields.CacheKey(key.String()), slog.Int("attempt", attempt), logfields.Error(err))
		}
		return err
	})
	if err != nil {
		return dberrors.CacheError("failed to store stage output").
			WithCause(err).
			WithContext("stage", key.Stage).
			WithContext("key", key.String()).
			Build()
	}
	s.logger.DebugContext(ctx, "Cache store",
		logfields.Stage(key.Stage), logfields.CacheKey(key.String()), logfields.Bytes(int64(len(blob))))
	return nil
}

// Prune deletes entries whose stage appears in current with a different
// version. Entries of stages not listed are kept. It returns the number of
// entries removed.
func (s *Store) Prune(ctx context.Context, current map[string]uint32) (int, error) {
	return s.remove(ctx, func(obj *storage.Object) bool {
		want, ok := current[obj.Metadata.Custom[metaStage]]
		if !ok {
			return false
		}
		return obj.Metadata.Custom[metaVersion] != strconv.FormatUint(uint64(want), 10)
	})
}

// Clear deletes every stage output.
func (s *Store) Clear(ctx context.Context) (int, error) {
	return s.remove(ctx, func(*storage.Object) bool { return true })
}

func (s *Store) remove(ctx context.Context, match func(*storage.Object) bool) (int, error) {
	hashes, err := s.objects.List(ctx, storage.ObjectTypeStageOutput)
	if err != nil {
		return 0, dberrors.CacheError("failed to list cache entries").WithCause(err).Build()
	}

	removed := 0
	for _, hash := range hashes {
		if err := ctx.Err(); err != nil {
			return removed, dberrors.CanceledError("cache maintenance canceled").WithCause(err).Build()
		}
		obj, err := s.objects.Get(ctx, hash)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return removed, dberrors.CacheError("failed to read cache entry").
				WithCause(err).WithContext("hash", hash).Build()
		}
		if !match(obj) {
			continue
		}
		if err := s.objects.Delete(ctx, hash); err != nil && !storage.IsNotFound(err) {
			return removed, dberrors.CacheError("failed to delete cache entry").
				WithCause(err).WithContext("hash", hash).Build()
		}
		removed++
	}

	s.logger.InfoContext(ctx, "Cache entries removed", slog.Int("removed", removed), slog.Int("scanned", len(hashes)))
	return removed, nil
}

// Close closes the underlying object store.
func (s *Store) Close() error {
	if err := s.objects.Close(); err != nil {
		return fmt.Errorf("close cache store: %w", err)
	}
	return nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
