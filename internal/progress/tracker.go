// Package progress reports stage and step progress of a build and carries its
// cooperative cancellation.
package progress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/logfields"
)

// Update describes the tracker state after a Start or Step.
type Update struct {
	Stage       string  // label passed to Start
	Label       string  // label passed to Step, empty on Start
	Step        int     // steps completed in the current stage
	Steps       int     // step budget of the current stage
	StageIndex  int     // 1-based index of the current stage
	TotalStages int     // stage budget of the build
	Fraction    float64 // overall completion in [0, 1]
}

// Reporter receives progress updates. Returning false asks the build to stop.
type Reporter interface {
	Report(Update) bool
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Update) bool

func (f ReporterFunc) Report(u Update) bool { return f(u) }

// LogReporter logs every update at debug level and never stops the build.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) Report(u Update) bool {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("Progress",
		logfields.Stage(u.Stage),
		slog.String("label", u.Label),
		slog.Int("step", u.Step),
		logfields.Steps(u.Steps),
		slog.Float64("fraction", u.Fraction))
	return true
}

// Tracker counts stages and steps against a budget known up front. It is safe
// for concurrent use, though the pipeline drives it from one goroutine.
type Tracker struct {
	ctx      context.Context
	reporter Reporter

	mu          sync.Mutex
	totalStages int
	stageIndex  int
	stage       string
	step        int
	steps       int
	stopped     bool
	closed      bool
}

// New creates a tracker for totalStages stages. A nil reporter disables reporting.
func New(ctx context.Context, totalStages int, reporter Reporter) *Tracker {
	if totalStages < 1 {
		totalStages = 1
	}
	return &Tracker{ctx: ctx, reporter: reporter, totalStages: totalStages}
}

// Start begins the next stage with a budget of steps. It returns false if the
// build should stop.
func (t *Tracker) Start(label string, steps int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	if t.stageIndex < t.totalStages {
		t.stageIndex++
	}
	t.stage = label
	t.step = 0
	t.steps = max(steps, 0)
	return t.report("")
}

// Step advances the current stage by one step. It returns false when the
// context is canceled or the reporter asked to stop; callers must then stop.
func (t *Tracker) Step(label string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.canceled() {
		return false
	}
	if t.step < t.steps {
		t.step++
	}
	return t.report(label)
}

// Finish completes the current stage. It returns false if the build should stop.
func (t *Tracker) Finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.canceled() {
		return false
	}
	t.step = t.steps
	return t.report("")
}

// Canceled reports whether the context was canceled or the reporter asked to stop.
func (t *Tracker) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled()
}

// Close ends tracking. Later calls to Start, Step and Finish return false.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *Tracker) canceled() bool {
	return t.stopped || t.ctx.Err() != nil
}

func (t *Tracker) report(label string) bool {
	if t.canceled() {
		return false
	}
	if t.reporter == nil {
		return true
	}
	if !t.reporter.Report(t.snapshot(label)) {
		t.stopped = true
		return false
	}
	return true
}

func (t *Tracker) snapshot(label string) Update {
	done := float64(t.stageIndex - 1)
	if t.steps > 0 {
		done += float64(t.step) / float64(t.steps)
	}
	fraction := max(done, 0) / float64(t.totalStages)
	return Update{
		Stage:       t.stage,
		Label:       label,
		Step:        t.step,
		Steps:       t.steps,
		StageIndex:  t.stageIndex,
		TotalStages: t.totalStages,
		Fraction:    min(fraction, 1),
	}
}
