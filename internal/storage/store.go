// Package storage holds the content-addressed object stores behind the stage
// cache: a fan-out directory tree, a single SQLite file, and an in-memory map.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"time"
)

// ObjectStore is implemented by every cache backend. Hashes are lowercase hex
// strings; a Put with an empty Hash addresses the object by the SHA-256 of its
// data. Put on an existing hash keeps the stored bytes and bumps RefCount.
// Get and Delete on a missing hash return ErrNotFound. List with an empty type
// returns every hash.
type ObjectStore interface {
	Put(ctx context.Context, obj *Object) (hash string, err error)
	Get(ctx context.Context, hash string) (*Object, error)
	Exists(ctx context.Context, hash string) (bool, error)
	Delete(ctx context.Context, hash string) error
	List(ctx context.Context, objectType ObjectType) ([]string, error)
	Close() error
}

// Object is one stored blob.
type Object struct {
	Hash     string
	Type     ObjectType
	Size     int64
	Data     []byte
	Metadata Metadata
}

type Metadata struct {
	CreatedAt time.Time `json:"created_at"`
	RefCount  int       `json:"ref_count"`

	// Custom is opaque to the stores. The cache keeps stage name, stage
	// version and a checksum here.
	Custom map[string]string `json:"custom"`
}

type ObjectType string

// ObjectTypeStageOutput marks a serialized stage result.
const ObjectTypeStageOutput ObjectType = "stage_output"

// ErrNotFound reports a hash with no stored object.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("object %s not found", e.Hash)
}

func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// objectHash returns the address obj will be stored under.
func objectHash(obj *Object) (string, error) {
	if obj.Hash == "" {
		sum := sha256.Sum256(obj.Data)
		return hex.EncodeToString(sum[:]), nil
	}
	return obj.Hash, validHash(obj.Hash)
}

// validHash accepts lowercase hex of at least three characters. The FS store
// builds paths from hashes, so nothing else may pass.
func validHash(hash string) error {
	if len(hash) < 3 {
		return fmt.Errorf("invalid object hash %q", hash)
	}
	for _, r := range hash {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return fmt.Errorf("invalid object hash %q", hash)
		}
	}
	return nil
}

func copyCustom(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src)+1)
	maps.Copy(dst, src)
	return dst
}
