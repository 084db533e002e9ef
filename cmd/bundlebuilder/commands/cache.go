package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/build"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/cache"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/config"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/logfields"
)

// CacheCmd groups cache maintenance commands.
type CacheCmd struct {
	Prune CachePruneCmd `cmd:"" help:"Remove entries written by other stage versions"`
	Clear CacheClearCmd `cmd:"" help:"Remove every cache entry"`
}

// CachePruneCmd implements 'cache prune'.
type CachePruneCmd struct{}

func (c *CachePruneCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()
	return runCacheMaintenance(ctx, g, root, os.Stdout, "pruned", pruneCurrent)
}

// CacheClearCmd implements 'cache clear'.
type CacheClearCmd struct{}

func (c *CacheClearCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()
	return runCacheMaintenance(ctx, g, root, os.Stdout, "cleared", clearAll)
}

// pruneCurrent keeps only entries written by this binary's stage versions.
func pruneCurrent(ctx context.Context, s *cache.Store) (int, error) {
	return s.Prune(ctx, build.DefaultStageVersions().Map())
}

func clearAll(ctx context.Context, s *cache.Store) (int, error) {
	return s.Clear(ctx)
}

func runCacheMaintenance(ctx context.Context, g *Global, root *CLI, out io.Writer, verb string, op func(context.Context, *cache.Store) (int, error)) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	applyConfigLogging(g, root, cfg)

	store, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			g.Logger.Warn("Failed to close cache", logfields.Error(err))
		}
	}()
	store.WithLogger(g.Logger)

	removed, err := op(ctx, store)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Cache %s: %d entries removed from %s\n", verb, removed, cfg.CachePath())
	return nil
}
