package bundle

import (
	"fmt"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/normalization"
)

// CompressionMode selects how a bundle container is compressed.
type CompressionMode string

const (
	CompressionNone      CompressionMode = "none"
	CompressionPerBundle CompressionMode = "per_bundle" // one LZMA stream for the whole payload
	CompressionPerChunk  CompressionMode = "per_chunk"  // independently decodable blocks
)

// CompressionLevel trades speed for ratio.
type CompressionLevel string

const (
	LevelFast     CompressionLevel = "fast"
	LevelBalanced CompressionLevel = "balanced"
	LevelMax      CompressionLevel = "max"
)

// CompressionConfig is the compression applied to every bundle of a build.
type CompressionConfig struct {
	Mode  CompressionMode  `json:"mode" yaml:"mode"`
	Level CompressionLevel `json:"level" yaml:"level"`
}

// DefaultCompression is chunked, balanced compression.
func DefaultCompression() CompressionConfig {
	return CompressionConfig{Mode: CompressionPerChunk, Level: LevelBalanced}
}

func (c CompressionConfig) String() string {
	return string(c.Mode) + "/" + string(c.Level)
}

// Validate reports unknown modes or levels.
func (c CompressionConfig) Validate() error {
	switch c.Mode {
	case CompressionNone, CompressionPerBundle, CompressionPerChunk:
	default:
		return fmt.Errorf("unknown compression mode %q", c.Mode)
	}
	switch c.Level {
	case LevelFast, LevelBalanced, LevelMax:
	default:
		return fmt.Errorf("unknown compression level %q", c.Level)
	}
	return nil
}

var (
	compressionModes = normalization.NewEnum("compression mode", CompressionPerChunk,
		CompressionNone, CompressionPerBundle, CompressionPerChunk).
		WithAlias("lzma", CompressionPerBundle).
		WithAlias("chunked", CompressionPerChunk)
	compressionLevels = normalization.NewEnum("compression level", LevelBalanced,
		LevelFast, LevelBalanced, LevelMax)
)

// ParseCompression parses mode and level, accepting '-' for '_' and any case.
// Empty values fall back to the defaults.
func ParseCompression(mode, level string) (CompressionConfig, error) {
	m, err := compressionModes.Parse(mode)
	if err != nil {
		return DefaultCompression(), err
	}
	l, err := compressionLevels.Parse(level)
	if err != nil {
		return DefaultCompression(), err
	}
	return CompressionConfig{Mode: m, Level: l}, nil
}
