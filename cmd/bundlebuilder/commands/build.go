package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/build"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/logfields"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/metrics"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/progress"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	NoCache         bool   `name:"no-cache" help:"Ignore and do not update the stage cache"`
	Output          string `short:"o" help:"Output folder (overrides output.dir)" type:"path"`
	Compression     string `help:"Compression mode: none|per_bundle|per_chunk (overrides compression.mode)"`
	Level           string `help:"Compression level: fast|balanced|max (overrides compression.level)"`
	MetricsTextfile string `name:"metrics-textfile" help:"Write Prometheus metrics to this file after the build" type:"path"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, err := runBuild(ctx, g, root, b.options(), os.Stdout)
	return err
}

func (b *BuildCmd) options() buildOptions {
	return buildOptions{
		noCache:         b.NoCache,
		output:          b.Output,
		compression:     b.Compression,
		level:           b.Level,
		metricsTextfile: b.MetricsTextfile,
	}
}

type buildOptions struct {
	noCache         bool
	output          string
	compression     string
	level           string
	metricsTextfile string
}

// runBuild loads the project and runs one build. The returned error is
// classified, so its category decides the exit code.
func runBuild(ctx context.Context, g *Global, root *CLI, opts buildOptions, out io.Writer) (*build.Outcome, error) {
	p, err := loadProject(root.Config, !opts.noCache)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	applyConfigLogging(g, root, p.cfg)

	mode, level := p.cfg.Compression.Mode, p.cfg.Compression.Level
	if opts.compression != "" {
		mode = opts.compression
	}
	if opts.level != "" {
		level = opts.level
	}
	compression, err := bundle.ParseCompression(mode, level)
	if err != nil {
		return nil, usageError("invalid compression flags", err)
	}

	output := p.cfg.OutputPath()
	if opts.output != "" {
		output = opts.output
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var prom *metrics.PrometheusRecorder
	textfile := opts.metricsTextfile
	if textfile == "" && p.cfg.Metrics.Textfile != "" {
		textfile = p.cfg.ResolvePath(p.cfg.Metrics.Textfile)
	}
	if textfile != "" {
		prom = metrics.NewPrometheusRecorder(nil)
		recorder = prom
	}
	if p.cache != nil {
		p.cache.WithLogger(g.Logger).WithRecorder(recorder)
	}

	svc := build.NewService(p.dependencies()).WithRecorder(recorder).WithLogger(g.Logger)
	req := build.Request{
		Input:        p.cfg.Input(),
		Settings:     p.cfg.Settings(),
		Compression:  compression,
		OutputFolder: output,
		TempFolder:   p.cfg.TempPath(),
		UseCache:     p.cache != nil,
		Reporter:     progress.LogReporter{Logger: g.Logger},
	}

	outcome, runErr := svc.Run(ctx, req)

	if prom != nil {
		if err := prom.WriteTextfile(textfile); err != nil {
			g.Logger.Warn("Failed to write metrics textfile", logfields.Path(textfile), logfields.Error(err))
		}
	}
	if runErr != nil {
		return outcome, runErr
	}

	printOutcome(out, outcome, output)
	return outcome, nil
}

func printOutcome(out io.Writer, outcome *build.Outcome, output string) {
	switch {
	case outcome.Code == bundle.SuccessNotRun:
		fmt.Fprintln(out, "No bundles defined, nothing built")
		return
	case outcome.Result == nil:
		return
	}
	suffix := ""
	if outcome.Code == bundle.SuccessCached {
		suffix = " (cached)"
	}
	fmt.Fprintf(out, "Built %d bundles into %s in %s%s\n",
		len(outcome.Result.Bundles), output, outcome.Duration.Round(time.Millisecond), suffix)
	for _, info := range outcome.Result.Bundles {
		fmt.Fprintf(out, "  %-32s %10d bytes  %s\n", info.Name, info.Size, info.Hash[:12])
	}
}

func usageError(msg string, err error) error {
	return dberrors.ValidationError(msg).WithCause(err).Build()
}
