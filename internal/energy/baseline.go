package energy

import "sync"

// Baselines are the learned idle power draws of each domain, in watts.
type Baselines struct {
	GPUW float64
	CPUW float64
}

// NetPower returns the workload-attributable power: the non-negative excess
// of each reading over its baseline, summed across domains.
func NetPower(cpuW, gpuW float64, b Baselines) float64 {
	return max(gpuW-b.GPUW, 0) + max(cpuW-b.CPUW, 0)
}

// Estimator tracks idle baselines with a threshold-gated EMA. Baselines only
// move on ticks where the net power against the current baselines is below
// the learn threshold, so a sustained workload is never absorbed into idle.
type Estimator struct {
	alpha     float64
	threshold float64

	mu   sync.Mutex
	base Baselines
}

// NewEstimator creates an estimator seeded with the given baselines.
func NewEstimator(alpha, thresholdW float64, seed Baselines) *Estimator {
	return &Estimator{
		alpha:     alpha,
		threshold: thresholdW,
		base:      seed,
	}
}

// Observe feeds one pair of readings and returns the baselines after any
// update. The learn decision uses the baselines from before this update.
func (e *Estimator) Observe(cpuW, gpuW float64) Baselines {
	e.mu.Lock()
	defer e.mu.Unlock()

	if NetPower(cpuW, gpuW, e.base) < e.threshold {
		e.base.GPUW = ema(e.alpha, gpuW, e.base.GPUW)
		e.base.CPUW = ema(e.alpha, cpuW, e.base.CPUW)
	}
	return e.base
}

// Current returns the baselines without updating them.
func (e *Estimator) Current() Baselines {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base
}

func ema(alpha, sample, old float64) float64 {
	return alpha*sample + (1-alpha)*old
}
