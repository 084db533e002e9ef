// Package packing turns a dependency graph into per-bundle command lists:
// what each bundle loads itself and where every other object it touches lives.
package packing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/cache"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/dependency"
	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/logfields"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/observability"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/progress"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/util/sets"
)

const (
	// StageName is the cache and logging name of this stage.
	StageName        = "packing"
	Version   uint32 = 1
	StepCount        = 1
)

// Packer builds a CommandSet from a DependencyGraph without modifying it.
type Packer struct {
	cache   *cache.Store
	version uint32
	logger  *slog.Logger
}

// NewPacker creates a packer without a cache.
func NewPacker() *Packer {
	return &Packer{version: Version, logger: slog.Default()}
}

// WithCache enables memoization through store.
func (p *Packer) WithCache(store *cache.Store) *Packer {
	p.cache = store
	return p
}

// WithVersion overrides the cache version.
func (p *Packer) WithVersion(v uint32) *Packer {
	p.version = v
	return p
}

// WithLogger sets a custom logger.
func (p *Packer) WithLogger(logger *slog.Logger) *Packer {
	p.logger = logger
	return p
}

// Pack emits one BundleCommands per bundle in graph.BundleOrder. It returns
// SuccessCached when the commands came from the cache.
func (p *Packer) Pack(ctx context.Context, tracker *progress.Tracker, graph *bundle.DependencyGraph) (*bundle.CommandSet, bundle.ResultCode, error) {
	ctx = observability.WithStage(ctx, StageName)
	if tracker == nil {
		tracker = progress.New(ctx, 1, nil)
	}
	if graph == nil {
		err := dberrors.InternalError("packing requires a dependency graph").Build()
		return nil, bundle.CodeOf(err), err
	}

	var key cache.Key
	cacheable := false
	if p.cache != nil {
		if fp, err := dependency.Fingerprint(graph); err != nil {
			p.logger.WarnContext(ctx, "Failed to fingerprint dependency graph", logfields.Error(err))
		} else {
			key, cacheable = cache.Key{Stage: StageName, Version: p.version, Fingerprint: fp}, true
		}
	}

	if cacheable {
		if commands, ok := p.loadCached(ctx, key); ok {
			tracker.Start("Packing commands", 1)
			if !tracker.Finish() {
				return nil, bundle.Canceled, canceled(ctx)
			}
			observability.InfoContext(ctx, "Commands loaded from cache",
				logfields.CacheKey(key.String()), slog.Int("bundles", len(commands.Bundles)))
			return commands, bundle.SuccessCached, nil
		}
	}

	if !tracker.Start("Packing commands", len(graph.BundleOrder)) {
		return nil, bundle.Canceled, canceled(ctx)
	}
	commands := &bundle.CommandSet{Bundles: make([]bundle.BundleCommands, 0, len(graph.BundleOrder))}
	for _, name := range graph.BundleOrder {
		if !tracker.Step(name) {
			return nil, bundle.Canceled, canceled(ctx)
		}
		commands.Bundles = append(commands.Bundles, packBundle(graph, name))
	}
	if !tracker.Finish() {
		return nil, bundle.Canceled, canceled(ctx)
	}

	if cacheable {
		p.storeCached(ctx, key, commands)
	}
	return commands, bundle.Success, nil
}

func packBundle(graph *bundle.DependencyGraph, name string) bundle.BundleCommands {
	cmds := bundle.BundleCommands{
		Name:         name,
		InternalName: InternalName(name),
		Loads:        []bundle.AssetLoadCommand{},
		References:   []bundle.AssetReference{},
	}
	deps := sets.NewOrdered(name)

	var shared []bundle.AssetReference
	for _, asset := range graph.BundleToAssets[name] {
		info := graph.AssetLoadInfo[asset]
		owner, _ := graph.Owner(asset)
		if owner != name {
			shared = append(shared, bundle.AssetReference{Asset: asset, Address: info.Address, OwningBundle: owner})
			continue
		}

		_, isScene := graph.SceneUsageTags[asset]
		load := bundle.AssetLoadCommand{
			Asset:            asset,
			Address:          info.Address,
			ProcessedContent: info.ProcessedContent,
			Scene:            isScene,
			IncludedObjects:  slices.Clone(info.IncludedObjects),
			References:       make([]bundle.ObjectReference, 0, len(info.ReferencedObjects)),
		}
		for _, obj := range info.ReferencedObjects {
			load.References = append(load.References, resolveReference(graph, name, obj))
		}
		cmds.Loads = append(cmds.Loads, load)

		if bundles := graph.AssetToBundles[asset]; len(bundles) > 1 {
			for _, b := range bundles[1:] {
				deps.Add(b)
			}
		}
		if isScene {
			cmds.SceneResources = append(cmds.SceneResources, graph.SceneResourceFiles[asset]...)
		}
	}

	for _, ref := range shared {
		cmds.References = append(cmds.References, ref)
		deps.Add(ref.OwningBundle)
	}
	cmds.Dependencies = deps.Items()
	if cmds.SceneResources == nil {
		cmds.SceneResources = []string{}
	}
	return cmds
}

func resolveReference(graph *bundle.DependencyGraph, current string, obj bundle.ObjectID) bundle.ObjectReference {
	owner, ok := graph.Owner(obj.Asset)
	switch {
	case !ok:
		return bundle.ObjectReference{Object: obj, Resolution: bundle.ResolutionImplicit, Bundle: current}
	case owner == current:
		return bundle.ObjectReference{Object: obj, Resolution: bundle.ResolutionIntra, Bundle: current}
	default:
		return bundle.ObjectReference{Object: obj, Resolution: bundle.ResolutionCross, Bundle: owner}
	}
}

// InternalName returns the stable archive name of a bundle.
func InternalName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return "CAB-" + hex.EncodeToString(sum[:])[:32]
}

// Fingerprint returns the digest of a command set, used by the writer's cache key.
func Fingerprint(commands *bundle.CommandSet) (string, error) {
	return cache.Fingerprint(commands)
}

func (p *Packer) loadCached(ctx context.Context, key cache.Key) (*bundle.CommandSet, bool) {
	blob, ok := p.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var commands bundle.CommandSet
	if err := json.Unmarshal(blob, &commands); err != nil {
		p.logger.WarnContext(ctx, "Discarding unreadable cached commands",
			logfields.CacheKey(key.String()), logfields.Error(err))
		return nil, false
	}
	return &commands, true
}

func (p *Packer) storeCached(ctx context.Context, key cache.Key, commands *bundle.CommandSet) {
	blob, err := json.Marshal(commands)
	if err == nil {
		err = p.cache.Put(ctx, key, blob)
	}
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to cache commands",
			logfields.CacheKey(key.String()), logfields.Error(err))
	}
}

func canceled(ctx context.Context) error {
	b := dberrors.CanceledError("command packing canceled")
	if err := ctx.Err(); err != nil {
		b = b.WithCause(err)
	}
	return b.Build()
}
