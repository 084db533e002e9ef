package bundle

import (
	"fmt"
	"path"
	"strings"

	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
)

// ManifestFileName is the name of the build manifest written next to the bundles.
const ManifestFileName = "bundles.manifest.json"

// AssetRef is an explicit asset reference inside a bundle definition.
// Address is optional; the resolver substitutes the asset's project path when empty.
type AssetRef struct {
	Asset   GUID   `json:"asset" yaml:"guid"`
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
}

// Definition declares one bundle and the assets it explicitly contains.
type Definition struct {
	Name   string     `json:"name" yaml:"name"`
	Assets []AssetRef `json:"assets" yaml:"assets"`
}

// BuildInput is the ordered list of bundle definitions for one build.
type BuildInput struct {
	Definitions []Definition `json:"definitions" yaml:"bundles"`
}

// AssetCount returns the number of explicit asset references across all definitions.
func (in BuildInput) AssetCount() int {
	n := 0
	for _, def := range in.Definitions {
		n += len(def.Assets)
	}
	return n
}

// Validate checks bundle names: non-empty, unique, relative, slash separated
// and not colliding with the manifest file.
func (in BuildInput) Validate() error {
	seen := make(map[string]struct{}, len(in.Definitions))
	for i, def := range in.Definitions {
		if err := validateBundleName(def.Name); err != nil {
			return dberrors.ValidationError("invalid bundle name").
				WithCause(err).
				WithContext("index", i).
				WithBundle(def.Name).
				Build()
		}
		if _, dup := seen[def.Name]; dup {
			return dberrors.ValidationError("duplicate bundle name").
				WithBundle(def.Name).
				Build()
		}
		seen[def.Name] = struct{}{}
		for _, other := range in.Definitions {
			if strings.HasPrefix(other.Name, def.Name+"/") {
				return dberrors.ValidationError("bundle name is used as a directory by another bundle").
					WithBundle(def.Name).
					WithContext("other", other.Name).
					Build()
			}
		}
		for j, ref := range def.Assets {
			if ref.Asset.IsZero() {
				return dberrors.ValidationError("asset reference without guid").
					WithBundle(def.Name).
					WithContext("index", j).
					Build()
			}
		}
	}
	return nil
}

func validateBundleName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name")
	case strings.ContainsRune(name, '\\'):
		return fmt.Errorf("backslash in %q, use forward slashes", name)
	case path.IsAbs(name):
		return fmt.Errorf("absolute path %q", name)
	case path.Clean(name) != name:
		return fmt.Errorf("%q is not a clean relative path", name)
	case name == ".." || strings.HasPrefix(name, "../"):
		return fmt.Errorf("%q escapes the output folder", name)
	case name == ManifestFileName:
		return fmt.Errorf("%q is reserved for the build manifest", name)
	}
	return nil
}
