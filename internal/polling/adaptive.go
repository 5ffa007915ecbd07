// Package polling decides refresh intervals from observed data changes.
package polling

import "time"

const (
	DefaultUnchangedThreshold = 3
	DefaultMaxInterval        = 300 * time.Second
)

// Adaptive backs the refresh interval off after several unchanged cycles.
// The zero value uses the default threshold and ceiling.
type Adaptive struct {
	Threshold   int
	MaxInterval time.Duration

	unchanged int
}

func NewAdaptive(threshold int, maxInterval time.Duration) *Adaptive {
	return &Adaptive{Threshold: threshold, MaxInterval: maxInterval}
}

// Evaluate records whether the last cycle changed anything and returns the
// interval to wait before the next one.
func (a *Adaptive) Evaluate(changed bool, base time.Duration) time.Duration {
	if changed {
		a.unchanged = 0
		return base
	}
	a.unchanged++

	threshold := a.Threshold
	if threshold <= 0 {
		threshold = DefaultUnchangedThreshold
	}
	if a.unchanged < threshold {
		return base
	}

	ceiling := a.MaxInterval
	if ceiling <= 0 {
		ceiling = DefaultMaxInterval
	}
	return min(base*2, ceiling)
}

// Unchanged reports the current run of unchanged cycles.
func (a *Adaptive) Unchanged() int { return a.unchanged }

func (a *Adaptive) Reset() { a.unchanged = 0 }
