package build

import (
	"context"
	"time"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/progress"
)

// Service is the canonical interface for executing bundle builds.
// The CLI and tests are thin wrappers over it.
type Service interface {
	Run(ctx context.Context, req Request) (*Outcome, error)
}

// Request contains all inputs of one build.
type Request struct {
	Input        bundle.BuildInput
	Settings     bundle.BuildSettings
	Compression  bundle.CompressionConfig
	OutputFolder string

	// TempFolder is the working directory owned by this run. Defaults to
	// bundle.DefaultTempPath.
	TempFolder string

	// UseCache enables stage memoization when the service has a cache.
	UseCache bool

	Hooks Hooks

	// UserData is passed through to every hook untouched.
	UserData any

	// Reporter receives progress updates and may request cancellation.
	Reporter progress.Reporter
}

// Hooks run between stages. Each may stop the build by returning a code
// below bundle.Success. A nil hook is skipped.
type Hooks struct {
	PostDependency func(ctx context.Context, settings bundle.BuildSettings, graph *bundle.DependencyGraph, userData any) bundle.ResultCode

	// PostPacking may return a replacement command set; nil keeps the packed one.
	PostPacking func(ctx context.Context, settings bundle.BuildSettings, graph *bundle.DependencyGraph, commands *bundle.CommandSet, userData any) (*bundle.CommandSet, bundle.ResultCode)

	PostWriting func(ctx context.Context, settings bundle.BuildSettings, graph *bundle.DependencyGraph, commands *bundle.CommandSet, result *bundle.BuildResult, userData any) bundle.ResultCode
}

// Outcome is the result of a Run.
type Outcome struct {
	BuildID string
	Code    bundle.ResultCode

	// Result is set once the writing stage succeeded.
	Result *bundle.BuildResult

	Graph    *bundle.DependencyGraph
	Commands *bundle.CommandSet

	// Stages lists every stage that ran, in order.
	Stages []StageOutcome

	Duration time.Duration
}

// StageOutcome records how one stage ended.
type StageOutcome struct {
	Name     string
	Code     bundle.ResultCode
	Duration time.Duration
}

// DirtyChecker reports unsaved editor state that would make a build stale.
type DirtyChecker interface {
	HasUnsavedChanges(ctx context.Context) (bool, error)
}

// AssetSaver flushes pending asset changes before the build reads them.
type AssetSaver interface {
	SaveAssets(ctx context.Context) error
}

// TargetSwitcher makes the project current for the requested target.
type TargetSwitcher interface {
	SwitchTarget(ctx context.Context, settings bundle.BuildSettings) error
}
