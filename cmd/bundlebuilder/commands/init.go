package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/config"
)

// InitCmd writes a starter bundlebuilder.yaml.
type InitCmd struct {
	Force bool   `help:"Replace an existing configuration file"`
	Dir   string `short:"o" name:"output" help:"Write the file into this directory instead of the --config path" type:"path"`
}

func (i *InitCmd) Run(_ *Global, root *CLI) error {
	path := root.Config
	if i.Dir != "" {
		path = filepath.Join(i.Dir, config.DefaultFileName)
	}
	return writeStarterConfig(os.Stdout, path, i.Force)
}

func writeStarterConfig(out io.Writer, path string, force bool) error {
	if err := config.Init(path, force); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", path)
	fmt.Fprintln(out, "Point project.catalog at your asset catalog, list bundles, then run 'bundlebuilder build'.")
	return nil
}
