package dependency

import (
	"context"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
)

// SceneInfo is what a SceneAnalyzer reports for one scene.
type SceneInfo struct {
	ProcessedScene    string
	ReferencedObjects []bundle.ObjectID
	ResourceFiles     []string
	Usage             bundle.UsageTags
}

// AssetInfo is what an AssetAnalyzer reports for one content asset.
type AssetInfo struct {
	ProcessedContent  string
	IncludedObjects   []bundle.ObjectID
	ReferencedObjects []bundle.ObjectID
}

// SceneAnalyzer recognizes and analyzes scenes.
type SceneAnalyzer interface {
	IsScene(asset bundle.GUID) bool
	AnalyzeScene(ctx context.Context, asset bundle.GUID, settings bundle.BuildSettings) (SceneInfo, error)
}

// AssetAnalyzer recognizes and analyzes content assets.
type AssetAnalyzer interface {
	IsAsset(asset bundle.GUID) bool
	AnalyzeAsset(ctx context.Context, asset bundle.GUID, settings bundle.BuildSettings) (AssetInfo, error)
}

// PathResolver maps an asset to its project path, used as the default address.
type PathResolver interface {
	AssetPath(asset bundle.GUID) (string, error)
}

// ContentHasher reports a digest of an asset's current content. When present
// its digests are folded into the cache fingerprint, so editing an asset
// invalidates cached graphs.
type ContentHasher interface {
	ContentHash(asset bundle.GUID) (string, error)
}

// Collaborators groups the project services the resolver consults.
// Hasher is optional.
type Collaborators struct {
	Scenes SceneAnalyzer
	Assets AssetAnalyzer
	Paths  PathResolver
	Hasher ContentHasher
}
