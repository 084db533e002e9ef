package build

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/bundle"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/cache"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/dependency"
	dberrors "github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/errors"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/logfields"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/metrics"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/observability"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/packing"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/progress"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/workspace"
	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/writing"
)

// TotalStages is the stage budget handed to the progress tracker.
const TotalStages = dependency.StepCount + packing.StepCount + writing.StepCount

// Dependencies are the project services a build consults. Only the analyzers
// are required.
type Dependencies struct {
	Analysis   dependency.Collaborators
	Serializer writing.ContentSerializer
	Dirty      DirtyChecker
	Saver      AssetSaver
	Switcher   TargetSwitcher
	Cache      *cache.Store
}

// StageVersions are the cache versions of each stage.
type StageVersions struct {
	Dependency uint32
	Packing    uint32
	Writing    uint32
}

// DefaultStageVersions returns the versions built into this binary.
func DefaultStageVersions() StageVersions {
	return StageVersions{Dependency: dependency.Version, Packing: packing.Version, Writing: writing.Version}
}

// Map returns the versions keyed by stage name, as cache.Store.Prune expects.
func (v StageVersions) Map() map[string]uint32 {
	return map[string]uint32{
		dependency.StageName: v.Dependency,
		packing.StageName:    v.Packing,
		writing.StageName:    v.Writing,
	}
}

// DefaultService is the standard implementation of Service.
type DefaultService struct {
	deps     Dependencies
	versions StageVersions
	recorder metrics.Recorder
	logger   *slog.Logger
	newID    func() string
}

// NewService creates a DefaultService.
func NewService(deps Dependencies) *DefaultService {
	return &DefaultService{
		deps:     deps,
		versions: DefaultStageVersions(),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		newID:    uuid.NewString,
	}
}

// WithRecorder sets the metrics recorder.
func (s *DefaultService) WithRecorder(r metrics.Recorder) *DefaultService {
	if r != nil {
		s.recorder = r
	}
	return s
}

// WithLogger sets a custom logger.
func (s *DefaultService) WithLogger(logger *slog.Logger) *DefaultService {
	s.logger = logger
	return s
}

// WithStageVersions overrides the per-stage cache versions.
func (s *DefaultService) WithStageVersions(v StageVersions) *DefaultService {
	s.versions = v
	return s
}

// Run executes the complete build pipeline. The returned error is non-nil
// exactly when Outcome.Code is below bundle.Success.
func (s *DefaultService) Run(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	outcome := &Outcome{BuildID: s.newID()}

	ctx = observability.WithBuildID(ctx, outcome.BuildID)
	ctx = observability.WithTarget(ctx, req.Settings.TargetPlatform)

	code, err := s.run(ctx, req, outcome)
	if err == nil && code < bundle.Success {
		err = dberrors.InternalError("build stopped").WithContext("code", code.String()).Build()
	}
	outcome.Code = code
	outcome.Duration = time.Since(start)

	s.recorder.ObserveBuildDuration(outcome.Duration)
	s.recorder.IncBuildOutcome(code.String())
	s.logOutcome(ctx, outcome, err)
	return outcome, err
}

// run holds every deferred cleanup, so it has finished by the time Run logs.
func (s *DefaultService) run(ctx context.Context, req Request, outcome *Outcome) (bundle.ResultCode, error) {
	logger := observability.Logger(ctx, s.logger)
	if err := validateRequest(req); err != nil {
		return bundle.CodeOf(err), err
	}

	// Nothing may be touched before this check, not even the cache.
	if s.deps.Dirty != nil {
		dirty, err := s.deps.Dirty.HasUnsavedChanges(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				err = dberrors.CanceledError("build canceled").WithCause(err).Build()
			} else {
				err = dberrors.IOError("failed to check for unsaved changes").WithCause(err).Build()
			}
			return bundle.CodeOf(err), err
		}
		if dirty {
			err := dberrors.UnsavedChangesError("unsaved changes must be saved before building bundles").Build()
			return bundle.UnsavedChanges, err
		}
	}

	if len(req.Input.Definitions) == 0 {
		observability.WarnContext(ctx, "No bundles defined, nothing to build")
		return bundle.SuccessNotRun, nil
	}

	if s.deps.Saver != nil {
		if err := s.deps.Saver.SaveAssets(ctx); err != nil {
			err = dberrors.IOError("failed to save assets").WithCause(err).Build()
			return bundle.CodeOf(err), err
		}
	}
	if s.deps.Switcher != nil {
		if err := s.deps.Switcher.SwitchTarget(ctx, req.Settings); err != nil {
			err = dberrors.ConfigError("failed to switch build target").
				WithCause(err).
				WithContext("target", req.Settings.TargetPlatform).
				Build()
			return bundle.CodeOf(err), err
		}
	}

	tracker := progress.New(ctx, TotalStages, req.Reporter)
	defer tracker.Close()

	tempFolder := req.TempFolder
	if tempFolder == "" {
		tempFolder = bundle.DefaultTempPath
	}
	scope, err := workspace.Acquire(tempFolder)
	if err != nil {
		err = dberrors.IOError("failed to create temporary build folder").WithCause(err).Build()
		return bundle.CodeOf(err), err
	}
	defer func() {
		if err := scope.Release(); err != nil {
			observability.WarnContext(ctx, "Failed to remove temporary build folder", logfields.Error(err))
		}
	}()

	var store *cache.Store
	if req.UseCache {
		store = s.deps.Cache
	}

	// Stage 1: dependency resolution
	resolver := dependency.NewResolver(s.deps.Analysis).WithVersion(s.versions.Dependency).WithLogger(logger)
	if store != nil {
		resolver = resolver.WithCache(store)
	}
	var graph *bundle.DependencyGraph
	code, err := s.stage(ctx, outcome, dependency.StageName, func(ctx context.Context) (bundle.ResultCode, error) {
		var code bundle.ResultCode
		var err error
		graph, code, err = resolver.Resolve(ctx, tracker, req.Input, req.Settings)
		return code, err
	})
	if code < bundle.Success {
		return code, err
	}
	outcome.Graph = graph
	if req.Hooks.PostDependency != nil {
		if err := stopBeforeHook(ctx, tracker, "PostDependency"); err != nil {
			return bundle.Canceled, err
		}
		if code := req.Hooks.PostDependency(ctx, req.Settings, graph, req.UserData); code < bundle.Success {
			return code, hookStopped("PostDependency", code)
		}
	}

	// Stage 2: command packing
	packer := packing.NewPacker().WithVersion(s.versions.Packing).WithLogger(logger)
	if store != nil {
		packer = packer.WithCache(store)
	}
	var commands *bundle.CommandSet
	code, err = s.stage(ctx, outcome, packing.StageName, func(ctx context.Context) (bundle.ResultCode, error) {
		var code bundle.ResultCode
		var err error
		commands, code, err = packer.Pack(ctx, tracker, graph)
		return code, err
	})
	if code < bundle.Success {
		return code, err
	}
	if req.Hooks.PostPacking != nil {
		if err := stopBeforeHook(ctx, tracker, "PostPacking"); err != nil {
			return bundle.Canceled, err
		}
		replaced, code := req.Hooks.PostPacking(ctx, req.Settings, graph, commands, req.UserData)
		if code < bundle.Success {
			return code, hookStopped("PostPacking", code)
		}
		if replaced != nil {
			commands = replaced
		}
	}
	outcome.Commands = commands

	// Stage 3: bundle writing
	writer := writing.NewWriter(s.deps.Serializer).
		WithVersion(s.versions.Writing).
		WithLogger(logger).
		WithRecorder(s.recorder).
		WithContentHasher(s.deps.Analysis.Hasher)
	if store != nil {
		writer = writer.WithCache(store)
	}
	var result *bundle.BuildResult
	code, err = s.stage(ctx, outcome, writing.StageName, func(ctx context.Context) (bundle.ResultCode, error) {
		var code bundle.ResultCode
		var err error
		result, code, err = writer.Write(ctx, tracker, req.Settings, req.Compression, req.OutputFolder, graph, commands)
		return code, err
	})
	if code < bundle.Success {
		return code, err
	}
	outcome.Result = result
	if req.Hooks.PostWriting != nil {
		if code := req.Hooks.PostWriting(ctx, req.Settings, graph, commands, result, req.UserData); code < bundle.Success {
			return code, hookStopped("PostWriting", code)
		}
	}

	final := bundle.SuccessCached
	for _, st := range outcome.Stages {
		if st.Code != bundle.SuccessCached {
			final = bundle.Success
		}
	}
	result.Code = final.Settled()
	return final, nil
}

// stage runs one pipeline stage and records its duration and result.
func (s *DefaultService) stage(ctx context.Context, outcome *Outcome, name string, fn func(context.Context) (bundle.ResultCode, error)) (bundle.ResultCode, error) {
	start := time.Now()
	ctx = observability.WithStage(ctx, name)
	observability.DebugContext(ctx, "Stage started")

	code, err := fn(ctx)
	if err != nil && code >= bundle.Success {
		code = bundle.CodeOf(err)
	}
	d := time.Since(start)
	outcome.Stages = append(outcome.Stages, StageOutcome{Name: name, Code: code, Duration: d})
	s.recorder.ObserveStageDuration(name, d)
	s.recorder.IncStageResult(name, resultLabel(code))
	observability.DebugContext(ctx, "Stage finished", logfields.Code(code.String()), logfields.DurationMS(float64(d.Microseconds())/1000))
	return code, err
}

func (s *DefaultService) logOutcome(ctx context.Context, outcome *Outcome, err error) {
	attrs := []slog.Attr{logfields.Code(outcome.Code.String()), logfields.Elapsed(outcome.Duration)}
	switch {
	case outcome.Code.Succeeded():
		if outcome.Result != nil {
			attrs = append(attrs, slog.Int("bundles", len(outcome.Result.Bundles)))
		}
		observability.InfoContext(ctx, "Build completed", attrs...)
	case outcome.Code == bundle.Canceled:
		observability.WarnContext(ctx, "Build canceled", attrs...)
	default:
		attrs = append(attrs, logfields.Error(err))
		observability.ErrorContext(ctx, "Build failed", attrs...)
	}
}

func validateRequest(req Request) error {
	if err := req.Input.Validate(); err != nil {
		return err
	}
	if err := req.Compression.Validate(); err != nil {
		return dberrors.ValidationError("invalid compression settings").WithCause(err).Build()
	}
	if strings.TrimSpace(req.OutputFolder) == "" {
		return dberrors.ValidationError("output folder is required").Build()
	}
	if req.Settings.TargetPlatform == "" {
		return dberrors.ValidationError("target platform is required").Build()
	}
	return nil
}

// stopBeforeHook catches a stop that arrived after a stage finished. Hooks
// whose output feeds a later stage are not run then. PostWriting still runs:
// its output is already published.
func stopBeforeHook(ctx context.Context, tracker *progress.Tracker, hook string) error {
	if !tracker.Canceled() {
		return nil
	}
	b := dberrors.CanceledError("build canceled before " + hook + " hook").WithContext("hook", hook)
	if err := ctx.Err(); err != nil {
		b = b.WithCause(err)
	}
	return b.Build()
}

func hookStopped(hook string, code bundle.ResultCode) error {
	b := dberrors.HookError(hook + " hook stopped the build").
		WithContext("hook", hook).
		WithContext("code", code.String())
	if code == bundle.Canceled {
		b = b.WithCause(context.Canceled)
	}
	return b.Build()
}

func resultLabel(code bundle.ResultCode) metrics.ResultLabel {
	switch {
	case code == bundle.SuccessCached:
		return metrics.ResultCached
	case code.Succeeded():
		return metrics.ResultSuccess
	case code == bundle.Canceled:
		return metrics.ResultCanceled
	default:
		return metrics.ResultFailed
	}
}

// IsCanceled reports whether err ended a build by cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, dberrors.ErrCanceled)
}
