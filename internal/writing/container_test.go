package writing

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
)

func samplePayload(size int) *Payload {
	data := bytes.Repeat([]byte("mesh vertices and more mesh vertices "), size/37+1)[:size]
	return &Payload{
		Commands: bundle.BundleCommands{
			Name:         "characters",
			InternalName: "CAB-0123",
			Loads:        []bundle.AssetLoadCommand{{Asset: "0000000000000000000000000000000a", Address: "hero"}},
			References:   []bundle.AssetReference{},
			Dependencies: []string{"shared"},
		},
		Contents: []Content{{Asset: "0000000000000000000000000000000a", Data: data}},
	}
}

func TestContainerRoundTripAllModes(t *testing.T) {
	raw, err := marshalPayload(samplePayload(3*ChunkSize + 17))
	require.NoError(t, err)

	for _, mode := range []bundle.CompressionMode{bundle.CompressionNone, bundle.CompressionPerBundle, bundle.CompressionPerChunk} {
		for _, level := range []bundle.CompressionLevel{bundle.LevelFast, bundle.LevelBalanced, bundle.LevelMax} {
			cfg := bundle.CompressionConfig{Mode: mode, Level: level}
			t.Run(cfg.String(), func(t *testing.T) {
				data, err := encodeContainer(raw, cfg)
				require.NoError(t, err)

				h, p, err := Decode(data)
				require.NoError(t, err)
				assert.Equal(t, cfg, h.Compression)
				assert.Equal(t, uint64(len(raw)), h.UncompressedSize)
				assert.Equal(t, "characters", p.Commands.Name)
				assert.Equal(t, samplePayload(3*ChunkSize+17).Contents[0].Data, p.Contents[0].Data)
				if mode != bundle.CompressionNone {
					assert.Less(t, len(data), len(raw), "repetitive payload must shrink")
				}

				again, err := encodeContainer(raw, cfg)
				require.NoError(t, err)
				assert.Equal(t, data, again, "encoding is deterministic")
			})
		}
	}
}

func TestContainerMaxLevelStaysFast(t *testing.T) {
	raw, err := marshalPayload(samplePayload(400 << 10))
	require.NoError(t, err)

	for _, mode := range []bundle.CompressionMode{bundle.CompressionPerBundle, bundle.CompressionPerChunk} {
		cfg := bundle.CompressionConfig{Mode: mode, Level: bundle.LevelMax}
		start := time.Now()
		_, err := encodeContainer(raw, cfg)
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 10*time.Second, cfg.String())
	}
}

func TestContainerChunkTable(t *testing.T) {
	raw := bytes.Repeat([]byte{7}, 2*ChunkSize+1)
	data, err := encodeContainer(raw, bundle.CompressionConfig{Mode: bundle.CompressionPerChunk, Level: bundle.LevelFast})
	require.NoError(t, err)

	body := data[headerSize:]
	assert.Equal(t, []byte{0, 0, 0, 3}, body[:4], "three chunks")

	decoded, err := decodeChunks(body)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestContainerDetectsCorruption(t *testing.T) {
	raw, err := marshalPayload(samplePayload(1024))
	require.NoError(t, err)
	data, err := encodeContainer(raw, bundle.CompressionConfig{Mode: bundle.CompressionNone, Level: bundle.LevelFast})
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-1] ^= 0xff
	_, _, err = Decode(flipped)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, _, err = Decode([]byte("nope"))
	assert.ErrorIs(t, err, ErrCorrupt)

	badVersion := append([]byte(nil), data...)
	badVersion[5] = 9
	_, err = ReadHeader(badVersion)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestEncodeContainerRejectsUnknownMode(t *testing.T) {
	_, err := encodeContainer([]byte("x"), bundle.CompressionConfig{Mode: "zip", Level: bundle.LevelFast})
	assert.Error(t, err)
}
