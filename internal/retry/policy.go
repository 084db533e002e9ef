// Package retry spaces out repeated attempts at an operation that can fail
// transiently, such as a cache write racing another build on a shared disk.
package retry

import (
	"time"

	"github.com/gaoking123/AssetBundles-BuildPipeline/internal/foundation/normalization"
)

// Mode selects how the delay grows between attempts.
type Mode string

const (
	ModeFixed       Mode = "fixed"
	ModeLinear      Mode = "linear"
	ModeExponential Mode = "exponential"
)

var modes = normalization.NewEnum("backoff mode", ModeLinear, ModeFixed, ModeLinear, ModeExponential).
	WithAlias("constant", ModeFixed).
	WithAlias("exp", ModeExponential)

// ParseMode reads a configured backoff name. Empty means linear.
func ParseMode(raw string) (Mode, error) {
	return modes.Parse(raw)
}

// Policy is a value type; copies never share state.
type Policy struct {
	Mode       Mode
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int // attempts after the first failure
}

// DefaultPolicy backs off linearly from 50ms up to 1s and retries twice.
func DefaultPolicy() Policy {
	return Policy{Mode: ModeLinear, Initial: 50 * time.Millisecond, Max: time.Second, MaxRetries: 2}
}

// None gives up after the first failure.
func None() Policy {
	p := DefaultPolicy()
	p.MaxRetries = 0
	return p
}

// NewPolicy starts from DefaultPolicy and applies each argument that is in
// range. Initial never exceeds Max in the result.
func NewPolicy(mode Mode, initial, maxDelay time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if _, err := modes.Parse(string(mode)); err == nil && mode != "" {
		p.Mode = mode
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	p.Initial = min(p.Initial, p.Max)
	return p
}

// Delay is the wait before retry n, counting from 1.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case ModeFixed:
		d = p.Initial
	case ModeExponential:
		// Past 2^30 the shift overflows; the cap has long been reached.
		if n > 31 {
			return p.Max
		}
		d = p.Initial << (n - 1)
		if d <= 0 {
			return p.Max
		}
	default:
		d = p.Initial * time.Duration(n)
	}
	return min(d, p.Max)
}
