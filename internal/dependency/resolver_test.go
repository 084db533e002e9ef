package dependency

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/cache"
	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/progress"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/storage"
)

const (
	guidX bundle.GUID = "0000000000000000000000000000000a"
	guidY bundle.GUID = "0000000000000000000000000000000b"
	guidZ bundle.GUID = "0000000000000000000000000000000c"
	guidS bundle.GUID = "0000000000000000000000000000000d"
	guidU bundle.GUID = "0000000000000000000000000000000e"
)

// fakeProject is a counting stand-in for the project asset database.
type fakeProject struct {
	assets map[bundle.GUID]AssetInfo
	scenes map[bundle.GUID]SceneInfo
	hashes map[bundle.GUID]string
	fail   map[bundle.GUID]error

	analyzed []bundle.GUID
}

func newFakeProject() *fakeProject {
	return &fakeProject{
		assets: map[bundle.GUID]AssetInfo{},
		scenes: map[bundle.GUID]SceneInfo{},
		hashes: map[bundle.GUID]string{},
		fail:   map[bundle.GUID]error{},
	}
}

func (p *fakeProject) IsScene(id bundle.GUID) bool { _, ok := p.scenes[id]; return ok }
func (p *fakeProject) IsAsset(id bundle.GUID) bool { _, ok := p.assets[id]; return ok }

func (p *fakeProject) AnalyzeScene(_ context.Context, id bundle.GUID, _ bundle.BuildSettings) (SceneInfo, error) {
	p.analyzed = append(p.analyzed, id)
	if err := p.fail[id]; err != nil {
		return SceneInfo{}, err
	}
	return p.scenes[id], nil
}

func (p *fakeProject) AnalyzeAsset(_ context.Context, id bundle.GUID, _ bundle.BuildSettings) (AssetInfo, error) {
	p.analyzed = append(p.analyzed, id)
	if err := p.fail[id]; err != nil {
		return AssetInfo{}, err
	}
	return p.assets[id], nil
}

func (p *fakeProject) AssetPath(id bundle.GUID) (string, error) {
	return "Assets/" + id.String()[28:] + ".asset", nil
}

func (p *fakeProject) ContentHash(id bundle.GUID) (string, error) {
	return p.hashes[id], nil
}

func (p *fakeProject) collaborators() Collaborators {
	return Collaborators{Scenes: p, Assets: p, Paths: p, Hasher: p}
}

func objects(asset bundle.GUID, ids ...int64) []bundle.ObjectID {
	out := make([]bundle.ObjectID, 0, len(ids))
	for _, id := range ids {
		out = append(out, bundle.ObjectID{Asset: asset, LocalID: id})
	}
	return out
}

func input(defs ...bundle.Definition) bundle.BuildInput {
	return bundle.BuildInput{Definitions: defs}
}

func def(name string, assets ...bundle.GUID) bundle.Definition {
	d := bundle.Definition{Name: name}
	for _, a := range assets {
		d.Assets = append(d.Assets, bundle.AssetRef{Asset: a})
	}
	return d
}

var settings = bundle.NewSettings("", "StandaloneLinux64", "")

func TestResolveSingleBundleOwnership(t *testing.T) {
	p := newFakeProject()
	p.assets[guidX] = AssetInfo{ProcessedContent: "x", IncludedObjects: objects(guidX, 1)}

	graph, code, err := NewResolver(p.collaborators()).Resolve(context.Background(), nil, input(def("A", guidX)), settings)
	require.NoError(t, err)
	assert.Equal(t, bundle.Success, code)

	assert.Equal(t, []string{"A"}, graph.AssetToBundles[guidX])
	assert.Equal(t, []bundle.GUID{guidX}, graph.BundleToAssets["A"])
	assert.Equal(t, "Assets/000a.asset", graph.AssetLoadInfo[guidX].Address)
	require.NoError(t, graph.Validate())
}

func TestResolveSharedAssetFirstBundleOwns(t *testing.T) {
	p := newFakeProject()
	p.assets[guidX] = AssetInfo{IncludedObjects: objects(guidX, 1)}
	p.assets[guidY] = AssetInfo{IncludedObjects: objects(guidY, 1)}
	p.assets[guidZ] = AssetInfo{IncludedObjects: objects(guidZ, 1)}

	graph, _, err := NewResolver(p.collaborators()).Resolve(context.Background(), nil,
		input(def("A", guidX, guidY), def("B", guidY, guidZ)), settings)
	require.NoError(t, err)

	assert.Equal(t, []bundle.GUID{guidX, guidY, guidZ}, p.analyzed, "y is analyzed once")
	assert.Equal(t, []string{"A"}, graph.AssetToBundles[guidX])
	assert.Equal(t, []string{"A"}, graph.AssetToBundles[guidY])
	assert.Equal(t, []string{"B"}, graph.AssetToBundles[guidZ])
	assert.Equal(t, []bundle.GUID{guidX, guidY}, graph.BundleToAssets["A"])
	assert.Equal(t, []bundle.GUID{guidY, guidZ}, graph.BundleToAssets["B"])
	assert.Equal(t, []string{"A", "B"}, graph.BundleOrder)
}

func TestResolvePropagatesReferencedOwners(t *testing.T) {
	p := newFakeProject()
	p.assets[guidX] = AssetInfo{IncludedObjects: objects(guidX, 1)}
	p.assets[guidY] = AssetInfo{IncludedObjects: objects(guidY, 1)}
	p.assets[guidZ] = AssetInfo{IncludedObjects: objects(guidZ, 1), ReferencedObjects: objects(guidX, 1)}

	graph, _, err := NewResolver(p.collaborators()).Resolve(context.Background(), nil,
		input(def("A", guidX, guidY), def("B", guidY, guidZ)), settings)
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "A"}, graph.AssetToBundles[guidZ])
}

func TestResolveReferenceToUndeclaredAssetAddsNothing(t *testing.T) {
	p := newFakeProject()
	p.assets[guidX] = AssetInfo{ReferencedObjects: objects(guidU, 5)}

	graph, _, err := NewResolver(p.collaborators()).Resolve(context.Background(), nil, input(def("A", guidX)), settings)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, graph.AssetToBundles[guidX])
	assert.False(t, graph.HasAsset(guidU))
}

func TestResolveScene(t *testing.T) {
	p := newFakeProject()
	usage := bundle.UsageTags{FogModes: 3, DynamicLightmaps: true}
	p.scenes[guidS] = SceneInfo{
		ProcessedScene:    "Temp/scene-processed",
		ReferencedObjects: objects(guidX, 2),
		ResourceFiles:     []string{"scene.resS", "scene.sharedAssets"},
		Usage:             usage,
	}
	p.assets[guidX] = AssetInfo{IncludedObjects: objects(guidX, 2)}

	in := bundle.BuildInput{Definitions: []bundle.Definition{
		{Name: "levels", Assets: []bundle.AssetRef{{Asset: guidS, Address: "Level1"}}},
		def("shared", guidX),
	}}
	graph, _, err := NewResolver(p.collaborators()).Resolve(context.Background(), nil, in, settings)
	require.NoError(t, err)

	info := graph.AssetLoadInfo[guidS]
	assert.Equal(t, "Level1", info.Address)
	assert.Equal(t, "Temp/scene-processed", info.ProcessedContent)
	assert.Empty(t, info.IncludedObjects)
	assert.Equal(t, []string{"scene.resS", "scene.sharedAssets"}, graph.SceneResourceFiles[guidS])
	assert.Equal(t, usage, graph.SceneUsageTags[guidS])
	assert.Equal(t, []string{"levels", "shared"}, graph.AssetToBundles[guidS])
}

func TestResolveSkipsUnknownReferencesButCountsSteps(t *testing.T) {
	p := newFakeProject()
	p.assets[guidX] = AssetInfo{}

	var steps []string
	tracker := progress.New(context.Background(), 1, progress.ReporterFunc(func(u progress.Update) bool {
		if u.Label != "" {
			steps = append(steps, u.Label)
		}
		return true
	}))

	graph, code, err := NewResolver(p.collaborators()).Resolve(context.Background(), tracker,
		input(def("A", guidU, guidX), def("empty", guidU)), settings)
	require.NoError(t, err)
	assert.Equal(t, bundle.Success, code)

	assert.Equal(t, []string{guidU.String(), guidX.String(), guidU.String(), propagationLabel}, steps)
	assert.False(t, graph.HasAsset(guidU))
	assert.Equal(t, []string{"A"}, graph.BundleOrder, "a bundle with no resolvable assets is absent")
}

func TestResolveCollaboratorFailureIsConversionError(t *testing.T) {
	p := newFakeProject()
	p.assets[guidX] = AssetInfo{}
	p.assets[guidY] = AssetInfo{}
	p.assets[guidZ] = AssetInfo{}
	cause := fmt.Errorf("broken import")
	p.fail[guidY] = cause

	graph, code, err := NewResolver(p.collaborators()).Resolve(context.Background(), nil,
		input(def("A", guidX, guidY, guidZ)), settings)
	require.Error(t, err)
	assert.Nil(t, graph)
	assert.Equal(t, bundle.ConversionError, code)
	assert.ErrorIs(t, err, cause)
	assert.True(t, dberrors.HasCategory(err, dberrors.CategoryConversion))
	assert.Equal(t, []bundle.GUID{guidX, guidY}, p.analyzed, "aborts immediately")
}

func TestResolveCancellationAtAssetK(t *testing.T) {
	p := newFakeProject()
	for _, id := range []bundle.GUID{guidX, guidY, guidZ} {
		p.assets[id] = AssetInfo{}
	}

	// Stop on the second asset step: only the first asset may be analyzed.
	seen := 0
	tracker := progress.New(context.Background(), 1, progress.ReporterFunc(func(u progress.Update) bool {
		if u.Label == "" {
			return true
		}
		seen++
		return seen < 2
	}))

	graph, code, err := NewResolver(p.collaborators()).Resolve(context.Background(), tracker,
		input(def("A", guidX, guidY, guidZ)), settings)
	require.Error(t, err)
	assert.Nil(t, graph)
	assert.Equal(t, bundle.Canceled, code)
	assert.Equal(t, []bundle.GUID{guidX}, p.analyzed)
}

func TestResolveContextCanceledBeforeStart(t *testing.T) {
	p := newFakeProject()
	p.assets[guidX] = AssetInfo{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, code, err := NewResolver(p.collaborators()).Resolve(ctx, progress.New(ctx, 1, nil), input(def("A", guidX)), settings)
	require.Error(t, err)
	assert.Equal(t, bundle.Canceled, code)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.analyzed)
}

func TestResolveCacheHit(t *testing.T) {
	p := newFakeProject()
	p.scenes[guidS] = SceneInfo{ResourceFiles: []string{"a.resS"}, ReferencedObjects: objects(guidX, 1)}
	p.assets[guidX] = AssetInfo{ProcessedContent: "x", IncludedObjects: objects(guidX, 1, 2)}
	p.assets[guidY] = AssetInfo{ReferencedObjects: objects(guidX, 2)}
	p.hashes[guidX] = "hx"

	store := cache.NewStore(storage.NewMemoryStore())
	in := input(def("scenes", guidS), def("A", guidX, guidY))

	first, code, err := NewResolver(p.collaborators()).WithCache(store).Resolve(context.Background(), nil, in, settings)
	require.NoError(t, err)
	assert.Equal(t, bundle.Success, code)
	calls := len(p.analyzed)

	second, code, err := NewResolver(p.collaborators()).WithCache(store).Resolve(context.Background(), nil, in, settings)
	require.NoError(t, err)
	assert.Equal(t, bundle.SuccessCached, code)
	assert.Len(t, p.analyzed, calls, "a hit calls no analyzer")
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("cached graph differs (-fresh +cached):\n%s", diff)
	}
}

func TestResolveCacheInvalidation(t *testing.T) {
	p := newFakeProject()
	p.assets[guidX] = AssetInfo{}
	p.hashes[guidX] = "v1"
	store := cache.NewStore(storage.NewMemoryStore())
	in := input(def("A", guidX))

	run := func(r *Resolver) bundle.ResultCode {
		t.Helper()
		_, code, err := r.Resolve(context.Background(), nil, in, settings)
		require.NoError(t, err)
		return code
	}

	assert.Equal(t, bundle.Success, run(NewResolver(p.collaborators()).WithCache(store)))
	assert.Equal(t, bundle.SuccessCached, run(NewResolver(p.collaborators()).WithCache(store)))
	assert.Equal(t, bundle.Success, run(NewResolver(p.collaborators()).WithCache(store).WithVersion(2)), "version bump")

	p.hashes[guidX] = "v2"
	assert.Equal(t, bundle.Success, run(NewResolver(p.collaborators()).WithCache(store)), "content change")

	other := bundle.NewSettings("", "Android", "")
	_, code, err := NewResolver(p.collaborators()).WithCache(store).Resolve(context.Background(), nil, in, other)
	require.NoError(t, err)
	assert.Equal(t, bundle.Success, code, "settings change")
}

func TestGraphFingerprint(t *testing.T) {
	g := bundle.NewDependencyGraph()
	a, err := Fingerprint(g)
	require.NoError(t, err)
	require.NoError(t, g.AddAsset(bundle.AssetLoadInfo{Asset: guidX}, "A"))
	b, err := Fingerprint(g)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
