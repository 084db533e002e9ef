package bundle

// Resolution says where a referenced object is loaded from at runtime.
type Resolution string

const (
	// ResolutionIntra: the object's asset is owned by the same bundle.
	ResolutionIntra Resolution = "intra"
	// ResolutionCross: the object's asset is owned by another bundle.
	ResolutionCross Resolution = "cross"
	// ResolutionImplicit: the object's asset is not declared by any bundle and
	// is serialized into the referencing bundle.
	ResolutionImplicit Resolution = "implicit"
)

// ObjectReference is one referenced object and where it resolves.
type ObjectReference struct {
	Object     ObjectID   `json:"object"`
	Resolution Resolution `json:"resolution"`
	Bundle     string     `json:"bundle"`
}

// AssetLoadCommand loads an asset owned by the bundle.
type AssetLoadCommand struct {
	Asset            GUID              `json:"asset"`
	Address          string            `json:"address"`
	ProcessedContent string            `json:"processed_content,omitempty"`
	Scene            bool              `json:"scene,omitempty"`
	IncludedObjects  []ObjectID        `json:"included_objects"`
	References       []ObjectReference `json:"references"`
}

// AssetReference records an asset a bundle needs but does not own.
type AssetReference struct {
	Asset        GUID   `json:"asset"`
	Address      string `json:"address"`
	OwningBundle string `json:"owning_bundle"`
}

// BundleCommands is the ordered command list for one bundle.
type BundleCommands struct {
	Name           string             `json:"name"`
	InternalName   string             `json:"internal_name"`
	Loads          []AssetLoadCommand `json:"loads"`
	References     []AssetReference   `json:"references"`
	Dependencies   []string           `json:"dependencies"`
	SceneResources []string           `json:"scene_resources"`
}

// CommandSet is the packed output for every bundle, in bundle declaration order.
type CommandSet struct {
	Bundles []BundleCommands `json:"bundles"`
}

// Bundle returns a pointer to the named bundle's commands so callers holding
// the set (such as a post-packing hook) can edit it in place.
func (c *CommandSet) Bundle(name string) (*BundleCommands, bool) {
	for i := range c.Bundles {
		if c.Bundles[i].Name == name {
			return &c.Bundles[i], true
		}
	}
	return nil, false
}

// StepCount is the number of progress steps writing this set takes.
func (c *CommandSet) StepCount() int {
	return len(c.Bundles)
}
