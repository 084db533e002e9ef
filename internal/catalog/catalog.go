// Package catalog reads a YAML description of a project's assets and serves it
// to the build pipeline as analyzer, path resolver, content hasher, content
// serializer and dirty checker.
package catalog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/dependency"
	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
)

// Kind distinguishes scenes from content assets.
type Kind string

const (
	KindAsset Kind = "asset"
	KindScene Kind = "scene"
)

// MainObjectID is the local id assumed when an asset lists no objects.
const MainObjectID int64 = 1

// Entry describes one asset.
type Entry struct {
	GUID          bundle.GUID       `yaml:"guid"`
	Path          string            `yaml:"path"`
	Kind          Kind              `yaml:"kind,omitempty"`
	Processed     string            `yaml:"processed,omitempty"`
	Objects       []int64           `yaml:"objects,omitempty"`
	References    []bundle.ObjectID `yaml:"references,omitempty"`
	ResourceFiles []string          `yaml:"resource_files,omitempty"`
	Usage         bundle.UsageTags  `yaml:"usage,omitempty"`
}

// File is the on-disk catalog document.
type File struct {
	Assets      []Entry       `yaml:"assets"`
	DirtyScenes []bundle.GUID `yaml:"dirty_scenes,omitempty"`
}

// Catalog is a loaded, validated asset catalog. It is read-only after Load.
type Catalog struct {
	root    string
	entries map[bundle.GUID]Entry
	order   []bundle.GUID
	dirty   []bundle.GUID
}

var (
	_ dependency.SceneAnalyzer = (*Catalog)(nil)
	_ dependency.AssetAnalyzer = (*Catalog)(nil)
	_ dependency.PathResolver  = (*Catalog)(nil)
	_ dependency.ContentHasher = (*Catalog)(nil)
)

// Load reads the catalog at path. Asset paths resolve against root.
func Load(path, root string) (*Catalog, error) {
	// #nosec G304 - the path comes from the project configuration
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, dberrors.ConfigError("asset catalog not found").WithPath(path).Build()
		}
		return nil, dberrors.IOError("failed to read asset catalog").WithCause(err).WithPath(path).Build()
	}
	c, err := Parse(data, root)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes and validates catalog content.
func Parse(data []byte, root string) (*Catalog, error) {
	var doc File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, dberrors.ConfigError("failed to parse asset catalog").WithCause(err).Build()
	}
	return New(doc, root)
}

// New validates doc and builds a catalog from it. GUIDs are normalized to
// lowercase.
func New(doc File, root string) (*Catalog, error) {
	c := &Catalog{root: root, entries: make(map[bundle.GUID]Entry, len(doc.Assets))}

	for i, e := range doc.Assets {
		id, err := bundle.ParseGUID(string(e.GUID))
		if err != nil {
			return nil, invalidEntry(err, "invalid asset guid", i, e)
		}
		e.GUID = id
		if _, dup := c.entries[id]; dup {
			return nil, dberrors.ValidationError("duplicate asset guid in catalog").WithContext("guid", id.String()).Build()
		}
		switch e.Kind {
		case "":
			e.Kind = KindAsset
		case KindAsset, KindScene:
		default:
			return nil, invalidEntry(fmt.Errorf("unknown kind %q", e.Kind), "invalid asset kind", i, e)
		}
		if e.Path == "" || !filepath.IsLocal(filepath.FromSlash(e.Path)) {
			return nil, invalidEntry(fmt.Errorf("path %q must be relative to the project root", e.Path), "invalid asset path", i, e)
		}
		for j, ref := range e.References {
			if ref.Asset, err = bundle.ParseGUID(string(ref.Asset)); err != nil {
				return nil, invalidEntry(err, "invalid referenced guid", i, e)
			}
			e.References[j] = ref
		}
		c.entries[id] = e
		c.order = append(c.order, id)
	}

	for _, g := range doc.DirtyScenes {
		id, err := bundle.ParseGUID(string(g))
		if err != nil {
			return nil, dberrors.ValidationError("invalid dirty scene guid").WithCause(err).Build()
		}
		c.dirty = append(c.dirty, id)
	}
	return c, nil
}

func invalidEntry(err error, msg string, index int, e Entry) error {
	return dberrors.ValidationError(msg).
		WithCause(err).
		WithContext("index", index).
		WithContext("guid", e.GUID.String()).
		Build()
}

// Len returns the number of assets.
func (c *Catalog) Len() int { return len(c.order) }

// Entry returns the entry for id.
func (c *Catalog) Entry(id bundle.GUID) (Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// Collaborators returns the catalog wired as every analysis collaborator.
func (c *Catalog) Collaborators() dependency.Collaborators {
	return dependency.Collaborators{Scenes: c, Assets: c, Paths: c, Hasher: c}
}

func (c *Catalog) IsScene(id bundle.GUID) bool {
	e, ok := c.entries[id]
	return ok && e.Kind == KindScene
}

func (c *Catalog) IsAsset(id bundle.GUID) bool {
	e, ok := c.entries[id]
	return ok && e.Kind == KindAsset
}

// AnalyzeScene reports the scene's references, resource files and usage.
// Processed defaults to the scene's path.
func (c *Catalog) AnalyzeScene(ctx context.Context, id bundle.GUID, _ bundle.BuildSettings) (dependency.SceneInfo, error) {
	if err := ctx.Err(); err != nil {
		return dependency.SceneInfo{}, err
	}
	e, ok := c.entries[id]
	if !ok || e.Kind != KindScene {
		return dependency.SceneInfo{}, fmt.Errorf("scene %s is not in the catalog", id)
	}
	processed := e.Processed
	if processed == "" {
		processed = e.Path
	}
	return dependency.SceneInfo{
		ProcessedScene:    processed,
		ReferencedObjects: e.References,
		ResourceFiles:     e.ResourceFiles,
		Usage:             e.Usage,
	}, nil
}

// AnalyzeAsset reports the objects an asset contains and references.
func (c *Catalog) AnalyzeAsset(ctx context.Context, id bundle.GUID, _ bundle.BuildSettings) (dependency.AssetInfo, error) {
	if err := ctx.Err(); err != nil {
		return dependency.AssetInfo{}, err
	}
	e, ok := c.entries[id]
	if !ok || e.Kind != KindAsset {
		return dependency.AssetInfo{}, fmt.Errorf("asset %s is not in the catalog", id)
	}
	locals := e.Objects
	if len(locals) == 0 {
		locals = []int64{MainObjectID}
	}
	included := make([]bundle.ObjectID, 0, len(locals))
	for _, local := range locals {
		included = append(included, bundle.ObjectID{Asset: id, LocalID: local})
	}
	return dependency.AssetInfo{
		ProcessedContent:  e.Processed,
		IncludedObjects:   included,
		ReferencedObjects: e.References,
	}, nil
}

// AssetPath returns the project path of id.
func (c *Catalog) AssetPath(id bundle.GUID) (string, error) {
	e, ok := c.entries[id]
	if !ok {
		return "", fmt.Errorf("asset %s is not in the catalog", id)
	}
	return e.Path, nil
}

// absentHash stands in for assets missing from the catalog. It is not hex,
// so it never collides with a real digest, and it changes to one as soon as
// the asset is added.
const absentHash = "absent"

// ContentHash digests the catalog entry and, when it exists, the asset file.
// Unknown assets hash to a fixed marker; the resolver skips them, and reruns
// over the same input must still hit the cache.
func (c *Catalog) ContentHash(id bundle.GUID) (string, error) {
	e, ok := c.entries[id]
	if !ok {
		return absentHash, nil
	}
	desc, err := yaml.Marshal(&e)
	if err != nil {
		return "", fmt.Errorf("encode catalog entry: %w", err)
	}
	h := sha256.New()
	h.Write(desc)
	h.Write([]byte{0})

	content, err := c.readAsset(e)
	switch {
	case err == nil:
		h.Write(content)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SerializeAsset returns the asset file's bytes, or the encoded catalog entry
// when the file does not exist.
func (c *Catalog) SerializeAsset(ctx context.Context, id bundle.GUID, _ bundle.BuildSettings) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := c.entries[id]
	if !ok {
		return nil, fmt.Errorf("asset %s is not in the catalog", id)
	}
	content, err := c.readAsset(e)
	if err == nil {
		return content, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return yaml.Marshal(&e)
}

// HasUnsavedChanges reports whether the catalog lists dirty scenes.
func (c *Catalog) HasUnsavedChanges(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return len(c.dirty) > 0, nil
}

// DirtyScenes returns the scenes marked as having unsaved changes.
func (c *Catalog) DirtyScenes() []bundle.GUID {
	return append([]bundle.GUID(nil), c.dirty...)
}

func (c *Catalog) readAsset(e Entry) ([]byte, error) {
	if c.root == "" {
		return nil, fs.ErrNotExist
	}
	path := filepath.Join(c.root, filepath.FromSlash(e.Path))
	// #nosec G304 - entry paths are validated to stay inside the project root
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", e.Path, err)
	}
	return data, nil
}
