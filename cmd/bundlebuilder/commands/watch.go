package commands

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/config"
	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/logfields"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Debounce time.Duration `help:"Quiet period before a rebuild" default:"500ms"`
	NoCache  bool          `name:"no-cache" help:"Ignore and do not update the stage cache"`
	Output   string        `short:"o" help:"Output folder (overrides output.dir)" type:"path"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	opts := buildOptions{noCache: w.NoCache, output: w.Output}
	return runWatch(ctx, g, root, w.Debounce, opts, os.Stdout)
}

// runWatch builds once, then again after every debounced change to the
// configuration, the catalog or the .env files. Builds run on the watch
// loop, so they never overlap; a failed build is logged and watching goes on.
func runWatch(ctx context.Context, g *Global, root *CLI, debounce time.Duration, opts buildOptions, out io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return dberrors.IOError("failed to create file watcher").WithCause(err).Build()
	}
	defer watcher.Close()

	if g.Logger == nil {
		g.Logger = newLogger(parseLogLevel(root.Verbose), config.LogFormatText)
	}

	watched := make(map[string]struct{})
	targets := map[string]struct{}{}
	refresh := func() {
		targets = watchTargets(root.Config)
		for path := range targets {
			dir := filepath.Dir(path)
			if _, ok := watched[dir]; ok {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				g.Logger.Warn("Failed to watch directory", logfields.Path(dir), logfields.Error(err))
				continue
			}
			watched[dir] = struct{}{}
		}
	}
	rebuild := func() {
		if _, err := runBuild(ctx, g, root, opts, out); err != nil && ctx.Err() == nil {
			g.Logger.Error("Build failed, waiting for changes", logfields.Error(err))
		}
		refresh()
	}

	refresh()
	rebuild()
	if len(watched) == 0 {
		return dberrors.IOError("nothing to watch").WithContext("config", root.Config).Build()
	}
	g.Logger.Info("Watching for changes", logfields.Path(root.Config), logfields.Count(len(targets)))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if _, hit := targets[filepath.Clean(event.Name)]; !hit {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				if event.Has(fsnotify.Remove) {
					g.Logger.Warn("Watched file removed", logfields.Path(event.Name))
				}
				continue
			}
			g.Logger.Debug("Change detected", logfields.Path(event.Name), logfields.Op(event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			g.Logger.Error("File watcher error", logfields.Error(err))
		case <-fire:
			fire = nil
			g.Logger.Info("Rebuilding after changes")
			rebuild()
		}
	}
}

// watchTargets returns the absolute files whose changes trigger a rebuild.
// The catalog is included when the configuration currently loads.
func watchTargets(configPath string) map[string]struct{} {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		abs = configPath
	}
	dir := filepath.Dir(abs)
	targets := map[string]struct{}{abs: {}}
	for _, name := range []string{".env", ".env.local"} {
		targets[filepath.Join(dir, name)] = struct{}{}
	}
	if cfg, err := config.Load(abs); err == nil {
		targets[cfg.CatalogPath()] = struct{}{}
	}
	return targets
}
