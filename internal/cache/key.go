package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// Key identifies one cached stage output.
type Key struct {
	Stage       string
	Version     uint32
	Fingerprint string
}

// Digest returns the hex sha256 of stage, version and fingerprint separated by
// NUL bytes. Keys differing in stage or version never share a digest.
func (k Key) Digest() string {
	h := sha256.New()
	h.Write([]byte(k.Stage))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatUint(uint64(k.Version), 10)))
	h.Write([]byte{0})
	h.Write([]byte(k.Fingerprint))
	return hex.EncodeToString(h.Sum(nil))
}

func (k Key) String() string {
	return fmt.Sprintf("%s@v%d/%.12s", k.Stage, k.Version, k.Fingerprint)
}

// Fingerprint hashes the JSON encoding of parts. Maps are encoded with sorted
// keys, so equal values always give equal fingerprints.
func Fingerprint(parts ...any) (string, error) {
	data, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fingerprint input: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
