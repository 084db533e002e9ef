package writing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/ulikunitz/xz/lzma"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
)

// Container layout, all integers big endian:
//
//	magic            [4]byte "UBND"
//	format version   uint16
//	mode             uint8
//	level            uint8
//	uncompressed     uint64  payload size before compression
//	crc              uint32  IEEE CRC-32 of the uncompressed payload
//	body
//
// The body is the raw payload for mode none and a single LZMA stream for
// per_bundle. For per_chunk it is a chunk count (uint32), one
// (compressed, raw) uint32 pair per chunk, then the S2 blocks back to back.
const (
	formatVersion uint16 = 1
	headerSize           = 4 + 2 + 1 + 1 + 8 + 4

	// ChunkSize is the raw size of one per_chunk block.
	ChunkSize = 128 << 10
)

var magic = [4]byte{'U', 'B', 'N', 'D'}

var modeCodes = map[bundle.CompressionMode]uint8{
	bundle.CompressionNone:      0,
	bundle.CompressionPerBundle: 1,
	bundle.CompressionPerChunk:  2,
}

var levelCodes = map[bundle.CompressionLevel]uint8{
	bundle.LevelFast:     0,
	bundle.LevelBalanced: 1,
	bundle.LevelMax:      2,
}

// ErrCorrupt is returned when a container fails structural or CRC checks.
var ErrCorrupt = errors.New("corrupt bundle container")

// Payload is the uncompressed content of one bundle file.
type Payload struct {
	Commands bundle.BundleCommands `json:"commands"`
	Contents []Content             `json:"contents"`
}

// Content is the serialized body of one loaded asset.
type Content struct {
	Asset bundle.GUID `json:"asset"`
	Data  []byte      `json:"data"`
}

// Header is the decoded fixed-size container header.
type Header struct {
	Version          uint16
	Compression      bundle.CompressionConfig
	UncompressedSize uint64
	CRC              uint32
}

func marshalPayload(p *Payload) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetSortMapKeys(true)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

func unmarshalPayload(data []byte) (*Payload, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &p, nil
}

// encodeContainer compresses payload according to cfg and frames it.
func encodeContainer(payload []byte, cfg bundle.CompressionConfig) ([]byte, error) {
	mode, ok := modeCodes[cfg.Mode]
	if !ok {
		return nil, fmt.Errorf("unknown compression mode %q", cfg.Mode)
	}
	level, ok := levelCodes[cfg.Level]
	if !ok {
		return nil, fmt.Errorf("unknown compression level %q", cfg.Level)
	}

	var out bytes.Buffer
	out.Grow(headerSize + len(payload))
	out.Write(magic[:])
	_ = binary.Write(&out, binary.BigEndian, formatVersion)
	out.WriteByte(mode)
	out.WriteByte(level)
	_ = binary.Write(&out, binary.BigEndian, uint64(len(payload)))
	_ = binary.Write(&out, binary.BigEndian, crc32.ChecksumIEEE(payload))

	switch cfg.Mode {
	case bundle.CompressionNone:
		out.Write(payload)
	case bundle.CompressionPerBundle:
		if err := compressLZMA(&out, payload, cfg.Level); err != nil {
			return nil, err
		}
	case bundle.CompressionPerChunk:
		compressChunks(&out, payload, cfg.Level)
	}
	return out.Bytes(), nil
}

// compressLZMA scales only the dictionary with the level. The binary-tree
// matcher degrades to quadratic time on repetitive bundle payloads, so every
// level uses the hash-chain matcher.
func compressLZMA(w io.Writer, payload []byte, level bundle.CompressionLevel) error {
	cfg := lzma.WriterConfig{DictCap: 1 << 20, Matcher: lzma.HashTable4}
	switch level {
	case bundle.LevelFast:
		cfg.DictCap = 64 << 10
	case bundle.LevelMax:
		cfg.DictCap = 8 << 20
	}
	lw, err := cfg.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create lzma writer: %w", err)
	}
	if _, err := lw.Write(payload); err != nil {
		return fmt.Errorf("lzma compress: %w", err)
	}
	if err := lw.Close(); err != nil {
		return fmt.Errorf("lzma compress: %w", err)
	}
	return nil
}

func compressChunks(out *bytes.Buffer, payload []byte, level bundle.CompressionLevel) {
	encode := s2.EncodeBetter
	switch level {
	case bundle.LevelFast:
		encode = s2.Encode
	case bundle.LevelMax:
		encode = s2.EncodeBest
	}

	var blocks [][]byte
	var raw []int
	for off := 0; off < len(payload); off += ChunkSize {
		end := min(off+ChunkSize, len(payload))
		blocks = append(blocks, encode(nil, payload[off:end]))
		raw = append(raw, end-off)
	}

	_ = binary.Write(out, binary.BigEndian, uint32(len(blocks)))
	for i, b := range blocks {
		_ = binary.Write(out, binary.BigEndian, uint32(len(b)))
		_ = binary.Write(out, binary.BigEndian, uint32(raw[i]))
	}
	for _, b := range blocks {
		out.Write(b)
	}
}

// ReadHeader decodes the fixed-size header of a container.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < headerSize || !bytes.Equal(data[:4], magic[:]) {
		return Header{}, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	h := Header{
		Version:          binary.BigEndian.Uint16(data[4:6]),
		UncompressedSize: binary.BigEndian.Uint64(data[8:16]),
		CRC:              binary.BigEndian.Uint32(data[16:20]),
	}
	if h.Version != formatVersion {
		return Header{}, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, h.Version)
	}
	for m, code := range modeCodes {
		if code == data[6] {
			h.Compression.Mode = m
		}
	}
	for l, code := range levelCodes {
		if code == data[7] {
			h.Compression.Level = l
		}
	}
	if err := h.Compression.Validate(); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return h, nil
}

// Decode verifies and decompresses a container and decodes its payload.
func Decode(data []byte) (Header, *Payload, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return Header{}, nil, err
	}
	body := data[headerSize:]

	var raw []byte
	switch h.Compression.Mode {
	case bundle.CompressionNone:
		raw = body
	case bundle.CompressionPerBundle:
		lr, err := lzma.NewReader(bytes.NewReader(body))
		if err != nil {
			return Header{}, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if raw, err = io.ReadAll(lr); err != nil {
			return Header{}, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	case bundle.CompressionPerChunk:
		if raw, err = decodeChunks(body); err != nil {
			return Header{}, nil, err
		}
	}

	if uint64(len(raw)) != h.UncompressedSize || crc32.ChecksumIEEE(raw) != h.CRC {
		return Header{}, nil, fmt.Errorf("%w: size or crc mismatch", ErrCorrupt)
	}
	p, err := unmarshalPayload(raw)
	if err != nil {
		return Header{}, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return h, p, nil
}

func decodeChunks(body []byte) ([]byte, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("%w: truncated chunk table", ErrCorrupt)
	}
	n := int(binary.BigEndian.Uint32(body[:4]))
	table := body[4:]
	if len(table) < n*8 {
		return nil, fmt.Errorf("%w: truncated chunk table", ErrCorrupt)
	}
	blocks := table[n*8:]

	var raw []byte
	for i := 0; i < n; i++ {
		clen := int(binary.BigEndian.Uint32(table[i*8:]))
		rlen := int(binary.BigEndian.Uint32(table[i*8+4:]))
		if clen > len(blocks) {
			return nil, fmt.Errorf("%w: chunk %d overruns body", ErrCorrupt, i)
		}
		block, err := s2.Decode(nil, blocks[:clen])
		if err != nil || len(block) != rlen {
			return nil, fmt.Errorf("%w: chunk %d", ErrCorrupt, i)
		}
		raw = append(raw, block...)
		blocks = blocks[clen:]
	}
	return raw, nil
}
