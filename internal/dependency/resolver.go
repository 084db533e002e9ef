// Package dependency resolves bundle definitions into a dependency graph:
// which assets exist, which bundle owns each one and which other bundles each
// asset needs at load time.
package dependency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/cache"
	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/logfields"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/observability"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/progress"
)

const (
	// StageName is the cache and logging name of this stage.
	StageName = "dependency"
	// Version is bumped whenever the graph layout or resolution rules change.
	Version uint32 = 1
	// StepCount is this stage's share of the build's stage budget.
	StepCount = 1

	propagationLabel = "Calculating asset to bundle dependencies"
)

// Resolver builds a DependencyGraph from a BuildInput.
type Resolver struct {
	collab  Collaborators
	cache   *cache.Store
	version uint32
	logger  *slog.Logger
}

// NewResolver creates a resolver without a cache.
func NewResolver(collab Collaborators) *Resolver {
	return &Resolver{
		collab:  collab,
		version: Version,
		logger:  slog.Default(),
	}
}

// WithCache enables memoization through store.
func (r *Resolver) WithCache(store *cache.Store) *Resolver {
	r.cache = store
	return r
}

// WithVersion overrides the cache version.
func (r *Resolver) WithVersion(v uint32) *Resolver {
	r.version = v
	return r
}

// WithLogger sets a custom logger.
func (r *Resolver) WithLogger(logger *slog.Logger) *Resolver {
	r.logger = logger
	return r
}

// Resolve analyzes every declared asset and computes bundle ownership and
// bundle-level dependencies. It returns SuccessCached when the graph came from
// the cache. On error the returned code is bundle.CodeOf(err).
func (r *Resolver) Resolve(ctx context.Context, tracker *progress.Tracker, input bundle.BuildInput, settings bundle.BuildSettings) (*bundle.DependencyGraph, bundle.ResultCode, error) {
	ctx = observability.WithStage(ctx, StageName)
	if tracker == nil {
		tracker = progress.New(ctx, 1, nil)
	}

	key, cacheable := r.cacheKey(ctx, input, settings)
	if cacheable {
		if graph, ok := r.loadCached(ctx, key); ok {
			tracker.Start("Resolving dependencies", 1)
			if !tracker.Finish() {
				return nil, bundle.Canceled, canceled(ctx)
			}
			observability.InfoContext(ctx, "Dependency graph loaded from cache",
				logfields.CacheKey(key.String()), slog.Int("assets", len(graph.AssetOrder)))
			return graph, bundle.SuccessCached, nil
		}
	}

	graph, err := r.resolve(ctx, tracker, input, settings)
	if err != nil {
		return nil, bundle.CodeOf(err), err
	}

	if cacheable {
		r.storeCached(ctx, key, graph)
	}
	return graph, bundle.Success, nil
}

func (r *Resolver) resolve(ctx context.Context, tracker *progress.Tracker, input bundle.BuildInput, settings bundle.BuildSettings) (*bundle.DependencyGraph, error) {
	graph := bundle.NewDependencyGraph()
	if !tracker.Start("Resolving dependencies", input.AssetCount()+1) {
		return nil, canceled(ctx)
	}

	for _, def := range input.Definitions {
		for _, ref := range def.Assets {
			if !tracker.Step(ref.Asset.String()) {
				return nil, canceled(ctx)
			}
			if err := r.resolveAsset(ctx, graph, def.Name, ref, settings); err != nil {
				return nil, err
			}
		}
	}

	if !tracker.Step(propagationLabel) {
		return nil, canceled(ctx)
	}
	propagate(graph)

	if err := graph.Validate(); err != nil {
		return nil, dberrors.InternalError("dependency graph is inconsistent").WithCause(err).Build()
	}
	if !tracker.Finish() {
		return nil, canceled(ctx)
	}
	return graph, nil
}

func (r *Resolver) resolveAsset(ctx context.Context, graph *bundle.DependencyGraph, bundleName string, ref bundle.AssetRef, settings bundle.BuildSettings) error {
	// Assets already claimed by an earlier bundle are listed by this bundle
	// too, but neither re-analyzed nor re-owned.
	if graph.HasAsset(ref.Asset) {
		graph.AddBundleAsset(bundleName, ref.Asset)
		observability.DebugContext(ctx, "Asset already owned by an earlier bundle",
			logfields.Asset(ref.Asset.String()), logfields.Bundle(bundleName))
		return nil
	}

	var info bundle.AssetLoadInfo
	switch {
	case r.collab.Scenes != nil && r.collab.Scenes.IsScene(ref.Asset):
		scene, err := r.collab.Scenes.AnalyzeScene(ctx, ref.Asset, settings)
		if err != nil {
			return conversionFailure(err, "scene analysis failed", ref.Asset, bundleName)
		}
		info = bundle.AssetLoadInfo{
			Asset:             ref.Asset,
			ProcessedContent:  scene.ProcessedScene,
			ReferencedObjects: scene.ReferencedObjects,
		}
		graph.AddScene(ref.Asset, scene.ResourceFiles, scene.Usage)
	case r.collab.Assets != nil && r.collab.Assets.IsAsset(ref.Asset):
		asset, err := r.collab.Assets.AnalyzeAsset(ctx, ref.Asset, settings)
		if err != nil {
			return conversionFailure(err, "asset analysis failed", ref.Asset, bundleName)
		}
		info = bundle.AssetLoadInfo{
			Asset:             ref.Asset,
			ProcessedContent:  asset.ProcessedContent,
			IncludedObjects:   asset.IncludedObjects,
			ReferencedObjects: asset.ReferencedObjects,
		}
	default:
		observability.DebugContext(ctx, "Skipping reference that is neither scene nor asset",
			logfields.Asset(ref.Asset.String()), logfields.Bundle(bundleName))
		return nil
	}

	info.Address = ref.Address
	if info.Address == "" {
		if r.collab.Paths == nil {
			return dberrors.ConversionError("no address and no path resolver").
				WithAsset(ref.Asset.String()).
				Build()
		}
		p, err := r.collab.Paths.AssetPath(ref.Asset)
		if err != nil {
			return conversionFailure(err, "asset path lookup failed", ref.Asset, bundleName)
		}
		info.Address = p
	}

	return graph.AddAsset(info, bundleName)
}

// propagate makes every asset depend on the owners of the assets it
// references. It is a single pass over AssetOrder; owners never change after
// resolution, so a second pass would add nothing.
func propagate(graph *bundle.DependencyGraph) {
	for _, asset := range graph.AssetOrder {
		for _, obj := range graph.AssetLoadInfo[asset].ReferencedObjects {
			if owner, ok := graph.Owner(obj.Asset); ok {
				graph.AddBundleDependency(asset, owner)
			}
		}
	}
}

func (r *Resolver) cacheKey(ctx context.Context, input bundle.BuildInput, settings bundle.BuildSettings) (cache.Key, bool) {
	if r.cache == nil {
		return cache.Key{}, false
	}

	var hashes map[bundle.GUID]string
	if r.collab.Hasher != nil {
		hashes = make(map[bundle.GUID]string)
		for _, def := range input.Definitions {
			for _, ref := range def.Assets {
				if _, done := hashes[ref.Asset]; done {
					continue
				}
				h, err := r.collab.Hasher.ContentHash(ref.Asset)
				if err != nil {
					r.logger.WarnContext(ctx, "Content hash unavailable, not caching dependency graph",
						logfields.Asset(ref.Asset.String()), logfields.Error(err))
					return cache.Key{}, false
				}
				hashes[ref.Asset] = h
			}
		}
	}

	fp, err := cache.Fingerprint(input, settings, hashes)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to fingerprint dependency input", logfields.Error(err))
		return cache.Key{}, false
	}
	return cache.Key{Stage: StageName, Version: r.version, Fingerprint: fp}, true
}

func (r *Resolver) loadCached(ctx context.Context, key cache.Key) (*bundle.DependencyGraph, bool) {
	blob, ok := r.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var graph bundle.DependencyGraph
	if err := json.Unmarshal(blob, &graph); err != nil {
		r.logger.WarnContext(ctx, "Discarding unreadable cached dependency graph",
			logfields.CacheKey(key.String()), logfields.Error(err))
		return nil, false
	}
	if err := graph.Validate(); err != nil {
		r.logger.WarnContext(ctx, "Discarding inconsistent cached dependency graph",
			logfields.CacheKey(key.String()), logfields.Error(err))
		return nil, false
	}
	return &graph, true
}

func (r *Resolver) storeCached(ctx context.Context, key cache.Key, graph *bundle.DependencyGraph) {
	blob, err := json.Marshal(graph)
	if err == nil {
		err = r.cache.Put(ctx, key, blob)
	}
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to cache dependency graph",
			logfields.CacheKey(key.String()), logfields.Error(err))
	}
}

// Fingerprint returns the digest of a graph, used as the packing stage's cache
// fingerprint.
func Fingerprint(graph *bundle.DependencyGraph) (string, error) {
	fp, err := cache.Fingerprint(graph)
	if err != nil {
		return "", fmt.Errorf("fingerprint dependency graph: %w", err)
	}
	return fp, nil
}

func canceled(ctx context.Context) error {
	b := dberrors.CanceledError("dependency resolution canceled")
	if err := ctx.Err(); err != nil {
		b = b.WithCause(err)
	}
	return b.Build()
}

func conversionFailure(err error, msg string, asset bundle.GUID, bundleName string) error {
	if errors.Is(err, context.Canceled) {
		return dberrors.CanceledError(msg).WithCause(err).Build()
	}
	return dberrors.ConversionError(msg).
		WithCause(err).
		WithAsset(asset.String()).
		WithBundle(bundleName).
		Build()
}
