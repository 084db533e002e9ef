package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/writing"
)

// InspectCmd implements the 'inspect' command.
type InspectCmd struct {
	Path string `arg:"" help:"Bundle file to inspect" type:"existingfile"`
	JSON bool   `help:"Print the decoded commands as JSON"`
}

func (i *InspectCmd) Run(_ *Global, _ *CLI) error {
	return runInspect(i.Path, i.JSON, os.Stdout)
}

func runInspect(path string, asJSON bool, out io.Writer) error {
	header, payload, err := writing.ReadBundle(path)
	if err != nil {
		if errors.Is(err, writing.ErrCorrupt) {
			return dberrors.ConversionError("bundle file is corrupt").WithCause(err).WithPath(path).Build()
		}
		return dberrors.IOError("failed to read bundle file").WithCause(err).WithPath(path).Build()
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload.Commands)
	}

	cmds := payload.Commands
	fmt.Fprintf(out, "bundle:        %s\n", cmds.Name)
	fmt.Fprintf(out, "internal name: %s\n", cmds.InternalName)
	fmt.Fprintf(out, "format:        v%d %s\n", header.Version, header.Compression)
	fmt.Fprintf(out, "uncompressed:  %d bytes (crc32 %08x)\n", header.UncompressedSize, header.CRC)
	fmt.Fprintf(out, "dependencies:  %v\n", cmds.Dependencies)
	fmt.Fprintf(out, "loads:         %d\n", len(cmds.Loads))
	for _, load := range cmds.Loads {
		kind := "asset"
		if load.Scene {
			kind = "scene"
		}
		fmt.Fprintf(out, "  %s %s %s (%d objects, %d references)\n",
			kind, load.Asset, load.Address, len(load.IncludedObjects), len(load.References))
	}
	fmt.Fprintf(out, "references:    %d\n", len(cmds.References))
	for _, ref := range cmds.References {
		fmt.Fprintf(out, "  %s %s -> %s\n", ref.Asset, ref.Address, ref.OwningBundle)
	}
	if len(cmds.SceneResources) > 0 {
		fmt.Fprintf(out, "scene resources: %v\n", cmds.SceneResources)
	}
	fmt.Fprintf(out, "contents:      %d\n", len(payload.Contents))
	return nil
}
