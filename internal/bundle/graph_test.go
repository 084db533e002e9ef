package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	guidX GUID = "00000000000000000000000000000001"
	guidY GUID = "00000000000000000000000000000002"
)

func TestDependencyGraph_AddAsset(t *testing.T) {
	g := NewDependencyGraph()
	require.NoError(t, g.AddAsset(AssetLoadInfo{Asset: guidX}, "A"))

	owner, ok := g.Owner(guidX)
	require.True(t, ok)
	assert.Equal(t, "A", owner)
	assert.Equal(t, []GUID{guidX}, g.BundleToAssets["A"])
	assert.Equal(t, []string{"A"}, g.BundleOrder)
	assert.Equal(t, []GUID{guidX}, g.AssetOrder)

	require.Error(t, g.AddAsset(AssetLoadInfo{Asset: guidX}, "B"), "re-resolving an asset must fail")
	require.NoError(t, g.Validate())
}

func TestDependencyGraph_AddBundleAssetIsIdempotent(t *testing.T) {
	g := NewDependencyGraph()
	g.AddBundleAsset("B", guidY)
	g.AddBundleAsset("B", guidY)
	g.AddBundleAsset("A", guidX)

	assert.Equal(t, []GUID{guidY}, g.BundleToAssets["B"])
	assert.Equal(t, []string{"B", "A"}, g.BundleOrder)
}

func TestDependencyGraph_AddBundleDependencyKeepsOwner(t *testing.T) {
	g := NewDependencyGraph()
	require.NoError(t, g.AddAsset(AssetLoadInfo{Asset: guidY}, "B"))

	assert.True(t, g.AddBundleDependency(guidY, "A"))
	assert.False(t, g.AddBundleDependency(guidY, "A"), "duplicates are skipped")
	assert.False(t, g.AddBundleDependency(guidX, "A"), "unknown assets are ignored")
	assert.Equal(t, []string{"B", "A"}, g.AssetToBundles[guidY])
}

func TestDependencyGraph_ValidateDetectsBrokenInvariants(t *testing.T) {
	g := NewDependencyGraph()
	g.AssetToBundles[guidX] = []string{"A"}
	require.Error(t, g.Validate(), "bundles without load info")

	g = NewDependencyGraph()
	require.NoError(t, g.AddAsset(AssetLoadInfo{Asset: guidX}, "A"))
	g.BundleToAssets["A"] = nil
	require.Error(t, g.Validate(), "owner must list the asset")
}

func TestCommandSet_BundleReturnsEditableSlot(t *testing.T) {
	set := &CommandSet{Bundles: []BundleCommands{{Name: "A"}, {Name: "B"}}}

	b, ok := set.Bundle("B")
	require.True(t, ok)
	b.Dependencies = append(b.Dependencies, "A")

	assert.Equal(t, []string{"A"}, set.Bundles[1].Dependencies)
	_, ok = set.Bundle("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, set.StepCount())
}
