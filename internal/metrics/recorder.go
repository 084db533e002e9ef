package metrics

import "time"

// ResultLabel is the outcome label of a finished stage.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultCached   ResultLabel = "cached"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// CacheOutcome is the label of one stage-cache lookup. Corrupt and unreadable
// entries both count as CacheError.
type CacheOutcome string

const (
	CacheHit   CacheOutcome = "hit"
	CacheMiss  CacheOutcome = "miss"
	CacheError CacheOutcome = "error"
)

// Recorder receives pipeline measurements. The build service reports stage
// and build timings, the stage cache reports lookups and the writer reports
// bytes written per compression mode. Implementations must tolerate
// concurrent calls.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)

	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(code string)

	IncCacheLookup(stage string, outcome CacheOutcome)

	AddBundleBytes(compression string, n int64)
}

// NoopRecorder drops everything. Components default to it.
type NoopRecorder struct{}

var _ Recorder = NoopRecorder{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) IncCacheLookup(string, CacheOutcome)        {}
func (NoopRecorder) AddBundleBytes(string, int64)               {}
