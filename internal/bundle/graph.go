package bundle

import (
	"fmt"
	"slices"
)

// UsageTags is the global usage descriptor a scene contributes to shader and
// lighting variant stripping.
type UsageTags struct {
	LightmapModes        uint32 `json:"lightmap_modes" yaml:"lightmap_modes"`
	LegacyLightmapModes  uint32 `json:"legacy_lightmap_modes" yaml:"legacy_lightmap_modes"`
	DynamicLightmaps     bool   `json:"dynamic_lightmaps" yaml:"dynamic_lightmaps"`
	FogModes             uint32 `json:"fog_modes" yaml:"fog_modes"`
	ForceInstancingStrip bool   `json:"force_instancing_strip" yaml:"force_instancing_strip"`
}

// AssetLoadInfo is the load information resolved once per asset.
type AssetLoadInfo struct {
	Asset             GUID       `json:"asset"`
	Address           string     `json:"address"`
	ProcessedContent  string     `json:"processed_content,omitempty"`
	IncludedObjects   []ObjectID `json:"included_objects"`
	ReferencedObjects []ObjectID `json:"referenced_objects"`
}

// DependencyGraph is the output of dependency resolution.
//
// AssetToBundles lists, per asset, the bundles that must be loaded for it;
// index 0 is the owning bundle, the rest own assets it references. BundleToAssets lists, per bundle, the assets assigned to it in
// declaration order without duplicates. AssetOrder and BundleOrder record
// declaration order so iteration is deterministic.
type DependencyGraph struct {
	AssetLoadInfo      map[GUID]AssetLoadInfo `json:"asset_load_info"`
	AssetToBundles     map[GUID][]string      `json:"asset_to_bundles"`
	BundleToAssets     map[string][]GUID      `json:"bundle_to_assets"`
	SceneResourceFiles map[GUID][]string      `json:"scene_resource_files"`
	SceneUsageTags     map[GUID]UsageTags     `json:"scene_usage_tags"`
	AssetOrder         []GUID                 `json:"asset_order"`
	BundleOrder        []string               `json:"bundle_order"`
}

// NewDependencyGraph returns an empty graph with all tables allocated.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		AssetLoadInfo:      make(map[GUID]AssetLoadInfo),
		AssetToBundles:     make(map[GUID][]string),
		BundleToAssets:     make(map[string][]GUID),
		SceneResourceFiles: make(map[GUID][]string),
		SceneUsageTags:     make(map[GUID]UsageTags),
	}
}

// appendUnique appends v unless already present and reports whether it did.
func appendUnique[T comparable](s []T, v T) ([]T, bool) {
	if slices.Contains(s, v) {
		return s, false
	}
	return append(s, v), true
}

// Owner returns the owning bundle of asset.
func (g *DependencyGraph) Owner(asset GUID) (string, bool) {
	bundles := g.AssetToBundles[asset]
	if len(bundles) == 0 {
		return "", false
	}
	return bundles[0], true
}

// HasAsset reports whether asset was resolved.
func (g *DependencyGraph) HasAsset(asset GUID) bool {
	_, ok := g.AssetLoadInfo[asset]
	return ok
}

// AddAsset records freshly resolved load information with bundle as its owner.
// It fails if the asset is already known.
func (g *DependencyGraph) AddAsset(info AssetLoadInfo, owner string) error {
	if _, exists := g.AssetLoadInfo[info.Asset]; exists {
		return fmt.Errorf("asset %s already resolved", info.Asset)
	}
	g.AssetLoadInfo[info.Asset] = info
	g.AssetOrder = append(g.AssetOrder, info.Asset)
	g.AssetToBundles[info.Asset] = []string{owner}
	g.AddBundleAsset(owner, info.Asset)
	return nil
}

// AddScene records the scene side tables for asset.
func (g *DependencyGraph) AddScene(asset GUID, resourceFiles []string, usage UsageTags) {
	g.SceneResourceFiles[asset] = slices.Clone(resourceFiles)
	g.SceneUsageTags[asset] = usage
}

// AddBundleAsset inserts the bundle slot if absent, then appends asset to it
// unless already listed.
func (g *DependencyGraph) AddBundleAsset(bundle string, asset GUID) {
	assets, known := g.BundleToAssets[bundle]
	if !known {
		g.BundleOrder = append(g.BundleOrder, bundle)
	}
	g.BundleToAssets[bundle], _ = appendUnique(assets, asset)
}

// AddBundleDependency appends bundle to asset's bundle list unless present.
// It never changes the owner.
func (g *DependencyGraph) AddBundleDependency(asset GUID, bundle string) bool {
	bundles, ok := g.AssetToBundles[asset]
	if !ok {
		return false
	}
	var added bool
	g.AssetToBundles[asset], added = appendUnique(bundles, bundle)
	return added
}

// Validate checks the graph invariants.
func (g *DependencyGraph) Validate() error {
	for asset, bundles := range g.AssetToBundles {
		if _, ok := g.AssetLoadInfo[asset]; !ok {
			return fmt.Errorf("asset %s has bundles but no load info", asset)
		}
		if len(bundles) == 0 {
			return fmt.Errorf("asset %s has an empty bundle list", asset)
		}
		if !slices.Contains(g.BundleToAssets[bundles[0]], asset) {
			return fmt.Errorf("asset %s is not listed by its owning bundle %s", asset, bundles[0])
		}
	}
	if len(g.AssetOrder) != len(g.AssetLoadInfo) {
		return fmt.Errorf("asset order has %d entries for %d assets", len(g.AssetOrder), len(g.AssetLoadInfo))
	}
	if len(g.BundleOrder) != len(g.BundleToAssets) {
		return fmt.Errorf("bundle order has %d entries for %d bundles", len(g.BundleOrder), len(g.BundleToAssets))
	}
	return nil
}
