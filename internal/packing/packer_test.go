package packing

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/cache"
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

func obj(asset bundle.GUID, id int64) bundle.ObjectID {
	return bundle.ObjectID{Asset: asset, LocalID: id}
}

// sampleGraph is A{x,y}, B{y,z}, scenes{s} where z references x and u (undeclared),
// and s references y.
func sampleGraph(t *testing.T) *bundle.DependencyGraph {
	t.Helper()
	g := bundle.NewDependencyGraph()
	require.NoError(t, g.AddAsset(bundle.AssetLoadInfo{Asset: guidX, Address: "x", IncludedObjects: []bundle.ObjectID{obj(guidX, 1)}}, "A"))
	require.NoError(t, g.AddAsset(bundle.AssetLoadInfo{Asset: guidY, Address: "y", IncludedObjects: []bundle.ObjectID{obj(guidY, 1)},
		ReferencedObjects: []bundle.ObjectID{obj(guidX, 1)}}, "A"))
	g.AddBundleAsset("B", guidY)
	require.NoError(t, g.AddAsset(bundle.AssetLoadInfo{Asset: guidZ, Address: "z", IncludedObjects: []bundle.ObjectID{obj(guidZ, 1)},
		ReferencedObjects: []bundle.ObjectID{obj(guidX, 1), obj(guidU, 9), obj(guidZ, 2)}}, "B"))
	require.NoError(t, g.AddAsset(bundle.AssetLoadInfo{Asset: guidS, Address: "Level", ProcessedContent: "scene.processed",
		ReferencedObjects: []bundle.ObjectID{obj(guidY, 1)}}, "scenes"))
	g.AddScene(guidS, []string{"level.resS"}, bundle.UsageTags{FogModes: 1})
	g.AddBundleDependency(guidZ, "A")
	g.AddBundleDependency(guidS, "A")
	require.NoError(t, g.Validate())
	return g
}

func TestPackCommands(t *testing.T) {
	g := sampleGraph(t)
	snapshot := cloneGraph(t, g)
	commands, code, err := NewPacker().Pack(context.Background(), nil, g)
	require.NoError(t, err)
	assert.Equal(t, bundle.Success, code)
	if diff := cmp.Diff(snapshot, g); diff != "" {
		t.Fatalf("packing mutated the graph:\n%s", diff)
	}

	require.Len(t, commands.Bundles, 3)
	a, ok := commands.Bundle("A")
	require.True(t, ok)
	assert.Equal(t, []bundle.GUID{guidX, guidY}, loadedAssets(a))
	assert.Empty(t, a.References)
	assert.Empty(t, a.Dependencies)
	assert.Equal(t, bundle.ResolutionIntra, a.Loads[1].References[0].Resolution)

	b, ok := commands.Bundle("B")
	require.True(t, ok)
	assert.Equal(t, []bundle.GUID{guidZ}, loadedAssets(b))
	assert.Equal(t, []bundle.AssetReference{{Asset: guidY, Address: "y", OwningBundle: "A"}}, b.References)
	assert.Equal(t, []string{"A"}, b.Dependencies)
	assert.Equal(t, []bundle.ObjectReference{
		{Object: obj(guidX, 1), Resolution: bundle.ResolutionCross, Bundle: "A"},
		{Object: obj(guidU, 9), Resolution: bundle.ResolutionImplicit, Bundle: "B"},
		{Object: obj(guidZ, 2), Resolution: bundle.ResolutionIntra, Bundle: "B"},
	}, b.Loads[0].References)

	s, ok := commands.Bundle("scenes")
	require.True(t, ok)
	assert.True(t, s.Loads[0].Scene)
	assert.Equal(t, []string{"level.resS"}, s.SceneResources)
	assert.Equal(t, []string{"A"}, s.Dependencies)
}

func TestPackCommandsDoNotAliasGraph(t *testing.T) {
	g := sampleGraph(t)
	snapshot := cloneGraph(t, g)
	commands, _, err := NewPacker().Pack(context.Background(), nil, g)
	require.NoError(t, err)

	// What a PostPacking hook editing commands in place would do.
	for i := range commands.Bundles {
		for j := range commands.Bundles[i].Loads {
			load := &commands.Bundles[i].Loads[j]
			for k := range load.IncludedObjects {
				load.IncludedObjects[k].LocalID = -1
			}
		}
		for k := range commands.Bundles[i].SceneResources {
			commands.Bundles[i].SceneResources[k] = "edited"
		}
	}
	if diff := cmp.Diff(snapshot, g); diff != "" {
		t.Fatalf("editing commands changed the graph:\n%s", diff)
	}
}

func TestPackDependencyDiscoveryOrder(t *testing.T) {
	g := bundle.NewDependencyGraph()
	require.NoError(t, g.AddAsset(bundle.AssetLoadInfo{Asset: guidX}, "C"))
	require.NoError(t, g.AddAsset(bundle.AssetLoadInfo{Asset: guidY}, "B"))
	require.NoError(t, g.AddAsset(bundle.AssetLoadInfo{Asset: guidZ,
		ReferencedObjects: []bundle.ObjectID{obj(guidY, 1), obj(guidX, 1)}}, "A"))
	g.AddBundleDependency(guidZ, "B")
	g.AddBundleDependency(guidZ, "C")
	g.AddBundleAsset("A", guidX)

	commands, _, err := NewPacker().Pack(context.Background(), nil, g)
	require.NoError(t, err)
	a, _ := commands.Bundle("A")
	assert.Equal(t, []string{"B", "C"}, a.Dependencies, "propagated owners first, then shared asset owners, deduplicated")
}

func TestInternalNameIsStable(t *testing.T) {
	name := InternalName("characters/hero")
	assert.True(t, strings.HasPrefix(name, "CAB-"))
	assert.Len(t, name, 36)
	assert.Equal(t, name, InternalName("characters/hero"))
	assert.NotEqual(t, name, InternalName("characters/villain"))
}

func TestPackCancellationPerBundle(t *testing.T) {
	g := sampleGraph(t)
	var packed []string
	tracker := progress.New(context.Background(), 1, progress.ReporterFunc(func(u progress.Update) bool {
		if u.Label != "" {
			packed = append(packed, u.Label)
		}
		return len(packed) < 2
	}))

	commands, code, err := NewPacker().Pack(context.Background(), tracker, g)
	require.Error(t, err)
	assert.Nil(t, commands)
	assert.Equal(t, bundle.Canceled, code)
	assert.Equal(t, []string{"A", "B"}, packed)
}

func TestPackCache(t *testing.T) {
	store := cache.NewStore(storage.NewMemoryStore())
	g := sampleGraph(t)

	first, code, err := NewPacker().WithCache(store).Pack(context.Background(), nil, g)
	require.NoError(t, err)
	assert.Equal(t, bundle.Success, code)

	second, code, err := NewPacker().WithCache(store).Pack(context.Background(), nil, g)
	require.NoError(t, err)
	assert.Equal(t, bundle.SuccessCached, code)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("cached commands differ:\n%s", diff)
	}

	_, code, err = NewPacker().WithCache(store).WithVersion(2).Pack(context.Background(), nil, g)
	require.NoError(t, err)
	assert.Equal(t, bundle.Success, code, "version bump misses")
}

func TestPackNilGraph(t *testing.T) {
	_, code, err := NewPacker().Pack(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, bundle.Error, code)
}

func loadedAssets(b *bundle.BundleCommands) []bundle.GUID {
	var out []bundle.GUID
	for _, l := range b.Loads {
		out = append(out, l.Asset)
	}
	return out
}

func cloneGraph(t *testing.T, g *bundle.DependencyGraph) *bundle.DependencyGraph {
	t.Helper()
	c := bundle.NewDependencyGraph()
	for k, v := range g.AssetLoadInfo {
		v.IncludedObjects = append([]bundle.ObjectID(nil), v.IncludedObjects...)
		v.ReferencedObjects = append([]bundle.ObjectID(nil), v.ReferencedObjects...)
		c.AssetLoadInfo[k] = v
	}
	for k, v := range g.AssetToBundles {
		c.AssetToBundles[k] = append([]string(nil), v...)
	}
	for k, v := range g.BundleToAssets {
		c.BundleToAssets[k] = append([]bundle.GUID(nil), v...)
	}
	for k, v := range g.SceneResourceFiles {
		c.SceneResourceFiles[k] = append([]string(nil), v...)
	}
	for k, v := range g.SceneUsageTags {
		c.SceneUsageTags[k] = v
	}
	c.AssetOrder = append([]bundle.GUID(nil), g.AssetOrder...)
	c.BundleOrder = append([]string(nil), g.BundleOrder...)
	return c
}
