package bundle

// BundleInfo describes one written bundle file.
type BundleInfo struct {
	Name             string            `json:"name"`
	FileName         string            `json:"file_name"`
	InternalName     string            `json:"internal_name"`
	Hash             string            `json:"hash"`
	CRC              uint32            `json:"crc"`
	Size             int64             `json:"size"`
	UncompressedSize int64             `json:"uncompressed_size"`
	Compression      CompressionConfig `json:"compression"`
	Dependencies     []string          `json:"dependencies"`
}

// BuildResult is the manifest of a build. File names are relative to the
// output folder and Code is settled, so identical inputs produce identical
// results whether or not they came from the cache.
type BuildResult struct {
	Code     ResultCode   `json:"code"`
	Target   string       `json:"target"`
	Bundles  []BundleInfo `json:"bundles"`
	Manifest string       `json:"manifest"`
}

// Bundle returns the descriptor for name.
func (r *BuildResult) Bundle(name string) (BundleInfo, bool) {
	for _, info := range r.Bundles {
		if info.Name == name {
			return info, true
		}
	}
	return BundleInfo{}, false
}
