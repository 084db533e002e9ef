// Package writing serializes packed commands into compressed bundle files and
// the build manifest.
//
// Bundles are written into a staging directory inside the output folder and
// renamed into place only after every bundle succeeded, so a failed or
// canceled write leaves no partial files behind.
package writing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/cache"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/dependency"
	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/logfields"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/metrics"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/observability"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/packing"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/progress"
)

const (
	// StageName is the cache and logging name of this stage.
	StageName        = "writing"
	Version   uint32 = 1
	StepCount        = 1

	stagingPrefix = ".staging-"
)

// ContentSerializer produces the bytes stored for a loaded asset.
type ContentSerializer interface {
	SerializeAsset(ctx context.Context, asset bundle.GUID, settings bundle.BuildSettings) ([]byte, error)
}

// Writer writes bundle files and the manifest.
type Writer struct {
	serializer ContentSerializer
	hasher     dependency.ContentHasher
	cache      *cache.Store
	version    uint32
	logger     *slog.Logger
	recorder   metrics.Recorder
	rename     func(from, to string) error
}

// NewWriter creates a writer. serializer may be nil, in which case bundles
// carry commands only.
func NewWriter(serializer ContentSerializer) *Writer {
	return &Writer{
		serializer: serializer,
		version:    Version,
		logger:     slog.Default(),
		recorder:   metrics.NoopRecorder{},
		rename:     os.Rename,
	}
}

// WithCache enables memoization through store.
func (w *Writer) WithCache(store *cache.Store) *Writer {
	w.cache = store
	return w
}

// WithContentHasher folds per-asset content digests into the cache key, so
// edits to serialized content invalidate cached bundles.
func (w *Writer) WithContentHasher(h dependency.ContentHasher) *Writer {
	w.hasher = h
	return w
}

// WithVersion overrides the cache version.
func (w *Writer) WithVersion(v uint32) *Writer {
	w.version = v
	return w
}

// WithLogger sets a custom logger.
func (w *Writer) WithLogger(logger *slog.Logger) *Writer {
	w.logger = logger
	return w
}

// WithRecorder sets the metrics recorder.
func (w *Writer) WithRecorder(r metrics.Recorder) *Writer {
	if r != nil {
		w.recorder = r
	}
	return w
}

// cachedOutput is the cache blob of this stage: the result and every file's
// exact bytes.
type cachedOutput struct {
	Result   bundle.BuildResult `json:"result"`
	Files    []cachedFile       `json:"files"`
	Manifest []byte             `json:"manifest"`
}

type cachedFile struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// manifest is the on-disk form of a BuildResult. It omits the result code so
// fresh and cached builds produce identical manifests.
type manifest struct {
	Target  string              `json:"target"`
	Bundles []bundle.BundleInfo `json:"bundles"`
}

// Write produces one file per bundle plus the manifest under outputFolder.
// The graph is consulted for the target's asset count only; everything
// written comes from commands.
func (w *Writer) Write(ctx context.Context, tracker *progress.Tracker, settings bundle.BuildSettings, compression bundle.CompressionConfig, outputFolder string, graph *bundle.DependencyGraph, commands *bundle.CommandSet) (*bundle.BuildResult, bundle.ResultCode, error) {
	ctx = observability.WithStage(ctx, StageName)
	if tracker == nil {
		tracker = progress.New(ctx, 1, nil)
	}
	if commands == nil {
		err := dberrors.InternalError("writing requires a command set").Build()
		return nil, bundle.CodeOf(err), err
	}
	if err := compression.Validate(); err != nil {
		verr := dberrors.ValidationError("invalid compression settings").WithCause(err).Build()
		return nil, bundle.CodeOf(verr), verr
	}

	key, cacheable := w.cacheKey(ctx, settings, compression, commands)
	code := bundle.Success
	var out *cachedOutput
	if cacheable {
		out = w.loadCached(ctx, key)
	}

	if !tracker.Start("Writing bundles", len(commands.Bundles)+1) {
		return nil, bundle.Canceled, canceled(ctx)
	}

	if out != nil {
		code = bundle.SuccessCached
		observability.InfoContext(ctx, "Bundles loaded from cache", logfields.CacheKey(key.String()))
	} else {
		var err error
		out, err = w.build(ctx, tracker, settings, compression, commands)
		if err != nil {
			return nil, bundle.CodeOf(err), err
		}
	}

	if err := w.publish(ctx, tracker, outputFolder, out); err != nil {
		return nil, bundle.CodeOf(err), err
	}
	if !tracker.Finish() {
		// Files are already in place; cancellation after publishing is not a failure.
		observability.DebugContext(ctx, "Cancellation requested after bundles were published")
	}

	if code == bundle.Success && cacheable {
		w.storeCached(ctx, key, out)
	}
	for _, info := range out.Result.Bundles {
		w.recorder.AddBundleBytes(info.Compression.String(), info.Size)
	}

	result := out.Result
	result.Code = code.Settled()
	if graph != nil {
		observability.InfoContext(ctx, "Bundles written",
			slog.Int("bundles", len(result.Bundles)),
			slog.Int("assets", len(graph.AssetOrder)),
			logfields.Path(outputFolder))
	}
	return &result, code, nil
}

// build serializes and compresses every bundle in memory.
func (w *Writer) build(ctx context.Context, tracker *progress.Tracker, settings bundle.BuildSettings, compression bundle.CompressionConfig, commands *bundle.CommandSet) (*cachedOutput, error) {
	out := &cachedOutput{
		Result: bundle.BuildResult{
			Target:   settings.TargetPlatform,
			Bundles:  make([]bundle.BundleInfo, 0, len(commands.Bundles)),
			Manifest: bundle.ManifestFileName,
		},
	}

	for i := range commands.Bundles {
		cmds := &commands.Bundles[i]
		if !tracker.Step(cmds.Name) {
			return nil, canceled(ctx)
		}
		bctx := observability.WithBundle(ctx, cmds.Name)

		payload := &Payload{Commands: *cmds, Contents: []Content{}}
		if w.serializer != nil {
			for _, load := range cmds.Loads {
				data, err := w.serializer.SerializeAsset(bctx, load.Asset, settings)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil, dberrors.CanceledError("content serialization canceled").WithCause(err).Build()
					}
					return nil, dberrors.ConversionError("content serialization failed").
						WithCause(err).
						WithBundle(cmds.Name).
						WithAsset(load.Asset.String()).
						Build()
				}
				payload.Contents = append(payload.Contents, Content{Asset: load.Asset, Data: data})
			}
		}

		raw, err := marshalPayload(payload)
		if err != nil {
			return nil, dberrors.InternalError("failed to serialize bundle").
				WithCause(err).WithBundle(cmds.Name).Build()
		}
		data, err := encodeContainer(raw, compression)
		if err != nil {
			return nil, dberrors.InternalError("failed to compress bundle").
				WithCause(err).WithBundle(cmds.Name).Build()
		}

		sum := sha256.Sum256(data)
		out.Result.Bundles = append(out.Result.Bundles, bundle.BundleInfo{
			Name:             cmds.Name,
			FileName:         cmds.Name,
			InternalName:     cmds.InternalName,
			Hash:             hex.EncodeToString(sum[:]),
			CRC:              crc32.ChecksumIEEE(raw),
			Size:             int64(len(data)),
			UncompressedSize: int64(len(raw)),
			Compression:      compression,
			Dependencies:     cmds.Dependencies,
		})
		out.Files = append(out.Files, cachedFile{Name: cmds.Name, Data: data})

		observability.DebugContext(bctx, "Bundle encoded",
			logfields.Bytes(int64(len(data))), logfields.Compression(compression.String()))
	}

	m, err := json.MarshalIndent(manifest{Target: out.Result.Target, Bundles: out.Result.Bundles}, "", "  ")
	if err != nil {
		return nil, dberrors.InternalError("failed to encode manifest").WithCause(err).Build()
	}
	out.Manifest = append(m, '\n')
	return out, nil
}

// publish stages every file and the manifest, then promotes them into
// outputFolder with the manifest last. Files replaced by the promotion are
// parked in staging until the manifest lands, so a failed promotion can put
// the previous output back. The staging directory is removed on every path.
func (w *Writer) publish(ctx context.Context, tracker *progress.Tracker, outputFolder string, out *cachedOutput) (err error) {
	_, statErr := os.Stat(outputFolder)
	createdOutput := os.IsNotExist(statErr)
	if err := os.MkdirAll(outputFolder, 0o750); err != nil {
		return ioFailure(err, "failed to create output folder", outputFolder)
	}

	buildID := observability.GetContext(ctx).BuildID
	if buildID == "" {
		buildID = uuid.NewString()
	}
	staging := filepath.Join(outputFolder, stagingPrefix+buildID)
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			w.logger.WarnContext(ctx, "Failed to remove staging directory", logfields.Path(staging), logfields.Error(rmErr))
		}
		if err != nil && createdOutput {
			// Only succeeds when nothing else landed in the folder.
			_ = os.Remove(outputFolder)
		}
	}()

	filesDir := filepath.Join(staging, "files")
	if err := os.MkdirAll(filesDir, 0o750); err != nil {
		return ioFailure(err, "failed to create staging directory", filesDir)
	}

	moves := make([]move, 0, len(out.Files)+1)
	for _, f := range out.Files {
		if ctx.Err() != nil {
			return canceled(ctx)
		}
		name := filepath.FromSlash(f.Name)
		from := filepath.Join(filesDir, name)
		if err := os.MkdirAll(filepath.Dir(from), 0o750); err != nil {
			return ioFailure(err, "failed to create staging directory", from)
		}
		if err := os.WriteFile(from, f.Data, 0o600); err != nil {
			return ioFailure(err, "failed to write bundle", from)
		}
		moves = append(moves, move{from: from, to: filepath.Join(outputFolder, name)})
	}
	manifestTmp := filepath.Join(staging, bundle.ManifestFileName)
	if err := os.WriteFile(manifestTmp, out.Manifest, 0o600); err != nil {
		return ioFailure(err, "failed to write manifest", manifestTmp)
	}
	moves = append(moves, move{from: manifestTmp, to: filepath.Join(outputFolder, bundle.ManifestFileName)})

	if !tracker.Step(bundle.ManifestFileName) {
		return canceled(ctx)
	}

	// A directory in the way would have to be deleted; refuse before touching
	// anything.
	for _, m := range moves {
		if info, err := os.Lstat(m.to); err == nil && info.IsDir() {
			return ioFailure(fmt.Errorf("%s is a directory", m.to), "output path is occupied", m.to)
		}
	}
	return w.promote(ctx, outputFolder, filepath.Join(staging, "replaced"), moves)
}

type move struct {
	from, to string
	backup   string
}

func (w *Writer) promote(ctx context.Context, outputFolder, replacedDir string, moves []move) error {
	if err := os.MkdirAll(replacedDir, 0o750); err != nil {
		return ioFailure(err, "failed to create staging directory", replacedDir)
	}
	done := make([]move, 0, len(moves))
	for i, m := range moves {
		if err := os.MkdirAll(filepath.Dir(m.to), 0o750); err != nil {
			w.rollback(ctx, outputFolder, done)
			return ioFailure(err, "failed to create bundle directory", m.to)
		}
		if _, err := os.Lstat(m.to); err == nil {
			m.backup = filepath.Join(replacedDir, fmt.Sprintf("%d", i))
			if err := w.rename(m.to, m.backup); err != nil {
				w.rollback(ctx, outputFolder, done)
				return ioFailure(err, "failed to set aside previous output", m.to)
			}
		}
		if err := w.rename(m.from, m.to); err != nil {
			w.rollback(ctx, outputFolder, append(done, move{to: m.to, backup: m.backup}))
			return ioFailure(err, "failed to move bundle into place", m.to)
		}
		done = append(done, m)
	}
	return nil
}

// rollback undoes promoted moves newest first: new files go, parked ones come
// back, and directories created for new files are removed once empty.
func (w *Writer) rollback(ctx context.Context, outputFolder string, done []move) {
	for i := len(done) - 1; i >= 0; i-- {
		m := done[i]
		if err := os.Remove(m.to); err != nil && !os.IsNotExist(err) {
			w.logger.WarnContext(ctx, "Failed to remove promoted file", logfields.Path(m.to), logfields.Error(err))
		}
		if m.backup != "" {
			if err := os.Rename(m.backup, m.to); err != nil {
				w.logger.ErrorContext(ctx, "Failed to restore previous output", logfields.Path(m.to), logfields.Error(err))
			}
			continue
		}
		for dir := filepath.Dir(m.to); dir != outputFolder && len(dir) > len(outputFolder); dir = filepath.Dir(dir) {
			if os.Remove(dir) != nil {
				break
			}
		}
	}
}

func (w *Writer) cacheKey(ctx context.Context, settings bundle.BuildSettings, compression bundle.CompressionConfig, commands *bundle.CommandSet) (cache.Key, bool) {
	if w.cache == nil {
		return cache.Key{}, false
	}
	commandsFP, err := packing.Fingerprint(commands)
	if err != nil {
		w.logger.WarnContext(ctx, "Failed to fingerprint commands", logfields.Error(err))
		return cache.Key{}, false
	}

	var hashes map[bundle.GUID]string
	if w.hasher != nil && w.serializer != nil {
		hashes = make(map[bundle.GUID]string)
		for _, b := range commands.Bundles {
			for _, load := range b.Loads {
				h, err := w.hasher.ContentHash(load.Asset)
				if err != nil {
					w.logger.WarnContext(ctx, "Content hash unavailable, not caching bundles",
						logfields.Asset(load.Asset.String()), logfields.Error(err))
					return cache.Key{}, false
				}
				hashes[load.Asset] = h
			}
		}
	}

	fp, err := cache.Fingerprint(commandsFP, compression, settings, w.serializer != nil, hashes)
	if err != nil {
		w.logger.WarnContext(ctx, "Failed to fingerprint writer input", logfields.Error(err))
		return cache.Key{}, false
	}
	return cache.Key{Stage: StageName, Version: w.version, Fingerprint: fp}, true
}

func (w *Writer) loadCached(ctx context.Context, key cache.Key) *cachedOutput {
	blob, ok := w.cache.Get(ctx, key)
	if !ok {
		return nil
	}
	var out cachedOutput
	dec := msgpack.NewDecoder(bytes.NewReader(blob))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&out); err != nil {
		w.logger.WarnContext(ctx, "Discarding unreadable cached bundles",
			logfields.CacheKey(key.String()), logfields.Error(err))
		return nil
	}
	if len(out.Files) != len(out.Result.Bundles) {
		w.logger.WarnContext(ctx, "Discarding inconsistent cached bundles", logfields.CacheKey(key.String()))
		return nil
	}
	return &out
}

func (w *Writer) storeCached(ctx context.Context, key cache.Key, out *cachedOutput) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	err := enc.Encode(out)
	if err == nil {
		err = w.cache.Put(ctx, key, buf.Bytes())
	}
	if err != nil {
		w.logger.WarnContext(ctx, "Failed to cache bundles",
			logfields.CacheKey(key.String()), logfields.Error(err))
	}
}

func canceled(ctx context.Context) error {
	b := dberrors.CanceledError("bundle writing canceled")
	if err := ctx.Err(); err != nil {
		b = b.WithCause(err)
	}
	return b.Build()
}

func ioFailure(err error, msg, path string) error {
	return dberrors.IOError(msg).WithCause(err).WithPath(path).Build()
}

// ReadBundle loads and decodes one bundle file.
func ReadBundle(path string) (Header, *Payload, error) {
	// #nosec G304 - path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, nil, fmt.Errorf("read bundle: %w", err)
	}
	return Decode(data)
}
