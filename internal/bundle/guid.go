package bundle

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// GUID is an opaque, stable content identifier for an asset.
// It is the 32 character lowercase hex form used by the project asset database.
type GUID string

// ParseGUID normalizes s and checks that it is a 32 character hex string.
func ParseGUID(s string) (GUID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 32 {
		return "", fmt.Errorf("guid %q: expected 32 hex characters, got %d", s, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("guid %q: %w", s, err)
	}
	return GUID(s), nil
}

func (g GUID) String() string { return string(g) }

// IsZero reports whether g is empty.
func (g GUID) IsZero() bool { return g == "" }

// ObjectID identifies a single object inside an asset.
type ObjectID struct {
	Asset   GUID  `json:"asset" yaml:"guid"`
	LocalID int64 `json:"local_id" yaml:"local_id"`
}

func (o ObjectID) String() string {
	return fmt.Sprintf("%s:%d", o.Asset, o.LocalID)
}
