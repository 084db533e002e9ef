package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	metaSuffix    = ".meta.json"
	tmpSuffix     = ".tmp"
	typeMetaField = "object_type"
)

// FSStore keeps each object as a file under a two-character fan-out directory,
// with its metadata in a JSON sidecar:
//
//	<root>/objects/3f/a9c1...            data
//	<root>/objects/3f/a9c1....meta.json  metadata
type FSStore struct {
	root string
	mu   sync.RWMutex
}

type entryPaths struct {
	data string
	meta string
}

// NewFSStore opens a store rooted at root, creating the objects directory.
func NewFSStore(root string) (*FSStore, error) {
	dir := filepath.Join(root, "objects")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) objectsDir() string {
	return filepath.Join(s.root, "objects")
}

func (s *FSStore) paths(hash string) entryPaths {
	data := filepath.Join(s.objectsDir(), hash[:2], hash[2:])
	return entryPaths{data: data, meta: data + metaSuffix}
}

func (s *FSStore) Put(ctx context.Context, obj *Object) (string, error) {
	hash, err := objectHash(obj)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.paths(hash)
	if _, err := os.Stat(p.data); err == nil {
		meta, err := readMeta(p.meta)
		if err != nil {
			// Unreadable sidecar: the data is still good, leave it alone.
			return hash, nil
		}
		meta.RefCount++
		if err := writeMeta(p.meta, meta); err != nil {
			return hash, fmt.Errorf("update metadata: %w", err)
		}
		return hash, nil
	}

	// The sidecar lands before the data so a listed object always has a type.
	meta := Metadata{CreatedAt: time.Now().UTC(), RefCount: 1, Custom: copyCustom(obj.Metadata.Custom)}
	meta.Custom[typeMetaField] = string(obj.Type)
	if err := writeMeta(p.meta, meta); err != nil {
		return "", err
	}
	if err := writeFileAtomic(p.data, obj.Data); err != nil {
		return "", fmt.Errorf("write object %s: %w", hash, err)
	}
	return hash, nil
}

func (s *FSStore) Get(ctx context.Context, hash string) (*Object, error) {
	if err := validHash(hash); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.paths(hash)
	data, err := os.ReadFile(p.data) // #nosec G304 -- path built from a validated hash
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound{Hash: hash}
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", hash, err)
	}

	meta, err := readMeta(p.meta)
	if err != nil {
		meta = Metadata{RefCount: 1, Custom: map[string]string{}}
	}
	return &Object{
		Hash:     hash,
		Type:     ObjectType(meta.Custom[typeMetaField]),
		Size:     int64(len(data)),
		Data:     data,
		Metadata: meta,
	}, nil
}

func (s *FSStore) Exists(ctx context.Context, hash string) (bool, error) {
	if err := validHash(hash); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch _, err := os.Stat(s.paths(hash).data); {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat object %s: %w", hash, err)
	}
}

func (s *FSStore) Delete(ctx context.Context, hash string) error {
	if err := validHash(hash); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.paths(hash)
	if err := os.Remove(p.data); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound{Hash: hash}
		}
		return fmt.Errorf("delete object %s: %w", hash, err)
	}
	_ = os.Remove(p.meta)
	// Succeeds only once the fan-out directory is empty.
	_ = os.Remove(filepath.Dir(p.data))
	return nil
}

// List walks the fan-out tree. Sidecars and in-flight temp files are skipped;
// objects whose sidecar cannot be read match every type filter.
func (s *FSStore) List(ctx context.Context, objectType ObjectType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := s.objectsDir()
	var hashes []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, metaSuffix) || strings.HasSuffix(name, tmpSuffix) {
			return nil
		}
		hash := filepath.Base(filepath.Dir(path)) + name
		if objectType != "" {
			if meta, err := readMeta(path + metaSuffix); err == nil && ObjectType(meta.Custom[typeMetaField]) != objectType {
				return nil
			}
		}
		hashes = append(hashes, hash)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(hashes)
	return hashes, nil
}

func (s *FSStore) Close() error { return nil }

func readMeta(path string) (Metadata, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- sidecar of a validated hash
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if meta.Custom == nil {
		meta.Custom = map[string]string{}
	}
	return meta, nil
}

func writeMeta(path string, meta Metadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeFileAtomic(path, raw); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// writeFileAtomic renames a fully written temp file over path.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*"+tmpSuffix)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
