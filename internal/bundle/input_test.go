package bundle

import (
	"context"
	"fmt"
	"testing"

	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGUID(t *testing.T) {
	g, err := ParseGUID(" 0123456789ABCDEF0123456789abcdef ")
	require.NoError(t, err)
	assert.Equal(t, GUID("0123456789abcdef0123456789abcdef"), g)

	_, err = ParseGUID("short")
	require.Error(t, err)
	_, err = ParseGUID("zz23456789abcdef0123456789abcdef")
	require.Error(t, err)
}

func TestBuildInput_Validate(t *testing.T) {
	ref := []AssetRef{{Asset: guidX}}
	tests := []struct {
		name    string
		defs    []Definition
		wantErr bool
	}{
		{"valid", []Definition{{Name: "ui", Assets: ref}, {Name: "levels/forest", Assets: ref}}, false},
		{"empty name", []Definition{{Name: ""}}, true},
		{"duplicate", []Definition{{Name: "ui"}, {Name: "ui"}}, true},
		{"absolute", []Definition{{Name: "/etc/ui"}}, true},
		{"escape", []Definition{{Name: "../ui"}}, true},
		{"unclean", []Definition{{Name: "a//b"}}, true},
		{"backslash", []Definition{{Name: `a\b`}}, true},
		{"manifest", []Definition{{Name: ManifestFileName}}, true},
		{"file and directory", []Definition{{Name: "levels"}, {Name: "levels/forest"}}, true},
		{"missing guid", []Definition{{Name: "ui", Assets: []AssetRef{{}}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := BuildInput{Definitions: tt.defs}.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dberrors.HasCategory(err, dberrors.CategoryValidation))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestBuildInput_AssetCount(t *testing.T) {
	in := BuildInput{Definitions: []Definition{
		{Name: "A", Assets: []AssetRef{{Asset: guidX}, {Asset: guidY}}},
		{Name: "B", Assets: []AssetRef{{Asset: guidY}}},
	}}
	assert.Equal(t, 3, in.AssetCount())
}

func TestCompression(t *testing.T) {
	cfg, err := ParseCompression("Per-Bundle", "MAX")
	require.NoError(t, err)
	assert.Equal(t, CompressionConfig{Mode: CompressionPerBundle, Level: LevelMax}, cfg)
	assert.Equal(t, "per_bundle/max", cfg.String())

	cfg, err = ParseCompression("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultCompression(), cfg)

	_, err = ParseCompression("lz5", "")
	require.Error(t, err)
	_, err = ParseCompression("none", "ultra")
	require.Error(t, err)
}

func TestNewSettings(t *testing.T) {
	s := NewSettings("types.db", "Android", "")
	assert.Equal(t, "Android", s.TargetGroup)
	assert.Equal(t, "types.db", s.TypeDatabase)

	s = NewSettings("", "StandaloneLinux64", "Server")
	assert.Equal(t, "Server", s.TargetGroup)
	assert.Equal(t, "Unknown", GroupForTarget("Dreamcast"))
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ResultCode
	}{
		{nil, Success},
		{dberrors.CanceledError("stop").Build(), Canceled},
		{context.Canceled, Canceled},
		{fmt.Errorf("wrapped: %w", context.Canceled), Canceled},
		{dberrors.UnsavedChangesError("dirty").Build(), UnsavedChanges},
		{dberrors.ConversionError("bad").Build(), ConversionError},
		{dberrors.IOError("disk").Build(), IOError},
		{dberrors.InternalError("bug").Build(), Error},
		{fmt.Errorf("plain"), Error},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeOf(tt.err), "%v", tt.err)
	}

	assert.True(t, SuccessCached.Succeeded())
	assert.True(t, Success.Succeeded())
	assert.False(t, Canceled.Succeeded())
	assert.Less(t, int(UnsavedChanges), int(Success))
	assert.Equal(t, "ConversionError", ConversionError.String())
}
