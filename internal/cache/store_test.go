package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/retry"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/storage"
)

func TestKeyDigestSeparatesStageAndVersion(t *testing.T) {
	base := Key{Stage: "dependency", Version: 1, Fingerprint: "abc"}

	assert.Equal(t, base.Digest(), Key{Stage: "dependency", Version: 1, Fingerprint: "abc"}.Digest())
	assert.NotEqual(t, base.Digest(), Key{Stage: "packing", Version: 1, Fingerprint: "abc"}.Digest())
	assert.NotEqual(t, base.Digest(), Key{Stage: "dependency", Version: 2, Fingerprint: "abc"}.Digest())
	assert.NotEqual(t, base.Digest(), Key{Stage: "dependency", Version: 1, Fingerprint: "abd"}.Digest())

	// The NUL separator keeps shifted boundaries apart.
	assert.NotEqual(t,
		Key{Stage: "ab", Version: 1, Fingerprint: "c"}.Digest(),
		Key{Stage: "a", Version: 1, Fingerprint: "bc"}.Digest())
}

func TestFingerprintIsDeterministic(t *testing.T) {
	a, err := Fingerprint(map[string]int{"x": 1, "y": 2}, "settings")
	require.NoError(t, err)
	b, err := Fingerprint(map[string]int{"y": 2, "x": 1}, "settings")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Fingerprint(map[string]int{"x": 1, "y": 3}, "settings")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = Fingerprint(make(chan int))
	assert.Error(t, err)
}

func TestStoreGetPut(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemoryStore())
	key := Key{Stage: "writing", Version: 1, Fingerprint: "f1"}

	_, ok := s.Get(ctx, key)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, key, []byte("blob")))
	got, ok := s.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("blob"), got)

	_, ok = s.Get(ctx, Key{Stage: "writing", Version: 2, Fingerprint: "f1"})
	assert.False(t, ok, "a version bump must miss")
}

func TestStoreReadFailureIsMiss(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewMemoryStore()
	s := NewStore(objects)
	key := Key{Stage: "packing", Version: 1, Fingerprint: "f"}
	require.NoError(t, s.Put(ctx, key, []byte("blob")))

	objects.SetGetError(assert.AnError)
	_, ok := s.Get(ctx, key)
	assert.False(t, ok)
}

func TestStoreCorruptEntryIsDiscarded(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewMemoryStore()
	s := NewStore(objects)
	key := Key{Stage: "packing", Version: 1, Fingerprint: "f"}
	require.NoError(t, s.Put(ctx, key, []byte("blob")))

	objects.Corrupt(key.Digest(), []byte("bl0b"))
	_, ok := s.Get(ctx, key)
	assert.False(t, ok)
	assert.Equal(t, 0, objects.Len())

	require.NoError(t, s.Put(ctx, key, []byte("blob")))
	got, ok := s.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("blob"), got)
}

func TestStorePutFailureIsCacheError(t *testing.T) {
	objects := storage.NewMemoryStore()
	objects.SetPutError(assert.AnError)
	err := NewStore(objects).Put(context.Background(), Key{Stage: "dependency", Version: 1}, []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestStorePruneAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemoryStore())

	stale := Key{Stage: "dependency", Version: 1, Fingerprint: "a"}
	fresh := Key{Stage: "dependency", Version: 2, Fingerprint: "a"}
	other := Key{Stage: "packing", Version: 1, Fingerprint: "a"}
	unknown := Key{Stage: "legacy", Version: 7, Fingerprint: "a"}
	for _, k := range []Key{stale, fresh, other, unknown} {
		require.NoError(t, s.Put(ctx, k, []byte(k.String())))
	}

	removed, err := s.Prune(ctx, map[string]uint32{"dependency": 2, "packing": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := s.Get(ctx, stale)
	assert.False(t, ok)
	for _, k := range []Key{fresh, other, unknown} {
		_, ok := s.Get(ctx, k)
		assert.True(t, ok, k.String())
	}

	removed, err = s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
}

func TestStoreOverFilesystemSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	key := Key{Stage: "dependency", Version: 1, Fingerprint: "persist"}

	fs, err := storage.NewFSStore(dir)
	require.NoError(t, err)
	require.NoError(t, NewStore(fs).Put(ctx, key, []byte("durable")))

	reopened, err := storage.NewFSStore(dir)
	require.NoError(t, err)
	got, ok := NewStore(reopened).Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("durable"), got)
}

type flakyStore struct {
	*storage.MemoryStore
	failures int
}

func (f *flakyStore) Put(ctx context.Context, obj *storage.Object) (string, error) {
	if f.failures > 0 {
		f.failures--
		return "", errors.New("database is locked")
	}
	return f.MemoryStore.Put(ctx, obj)
}

func TestStorePutRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	objects := &flakyStore{MemoryStore: storage.NewMemoryStore(), failures: 2}
	policy := retry.NewPolicy(retry.ModeFixed, time.Millisecond, time.Millisecond, 2)
	store := NewStore(objects).WithRetry(policy)
	key := Key{Stage: "packing", Version: 1, Fingerprint: "abc"}

	require.NoError(t, store.Put(ctx, key, []byte("commands")))
	blob, ok := store.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("commands"), blob)

	objects.failures = 3
	err := store.Put(ctx, Key{Stage: "packing", Version: 1, Fingerprint: "def"}, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, dberrors.CategoryCache, dberrors.GetCategory(err))
}
