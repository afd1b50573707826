package energy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benaskins/joule/internal/config"
	"github.com/benaskins/joule/internal/power"
)

// minSampleHz bounds the sampling period from above.
const minSampleHz = 0.1

// staleAfter is the number of missed periods before the sampler is reported
// as stale.
const staleAfter = 3

// Health states reported by Sampler.Status.
const (
	StatusStarting = "starting"
	StatusOK       = "ok"
	StatusStale    = "stale"
)

// Source produces one power reading per tick. A non-nil error means some
// domain was substituted; the reading is still used.
type Source interface {
	Read(ctx context.Context) (power.Reading, error)
}

// Sampler drives the accounting loop: read power, learn idle baselines,
// integrate net power into the ledger and publish a snapshot.
type Sampler struct {
	src      Source
	ledger   *Ledger
	baseline *Estimator
	period   time.Duration
	dt       float64
	logger   *slog.Logger
	now      func() time.Time

	onSample  []func(Sample)
	onOverrun []func(time.Duration)

	mu        sync.RWMutex
	latest    Sample
	published time.Time
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithClock sets the wall clock used for sample timestamps.
func WithClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) {
		s.now = now
	}
}

// OnSample registers a callback invoked with every published sample.
// Callbacks run on the sampler goroutine and must not block.
func OnSample(fn func(Sample)) SamplerOption {
	return func(s *Sampler) {
		s.onSample = append(s.onSample, fn)
	}
}

// OnOverrun registers a callback invoked when a tick takes longer than the
// sampling period.
func OnOverrun(fn func(elapsed time.Duration)) SamplerOption {
	return func(s *Sampler) {
		s.onOverrun = append(s.onOverrun, fn)
	}
}

// NewSampler creates a sampler that credits ledger from src.
func NewSampler(src Source, ledger *Ledger, cfg config.Config, opts ...SamplerOption) *Sampler {
	period := Period(cfg.SampleHz)
	s := &Sampler{
		src:    src,
		ledger: ledger,
		baseline: NewEstimator(cfg.SmoothingAlpha, cfg.IdleLearnW, Baselines{
			GPUW: cfg.IdleGPUSeedW,
			CPUW: cfg.IdleCPUSeedW,
		}),
		period: period,
		dt:     period.Seconds(),
		logger: slog.With("component", "sampler"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Period returns the sampling period for hz, floored at minSampleHz.
func Period(hz float64) time.Duration {
	return time.Duration(float64(time.Second) / max(hz, minSampleHz))
}

// Period returns the nominal sampling period.
func (s *Sampler) Period() time.Duration {
	return s.period
}

// Run samples until ctx is cancelled. Each tick sleeps until the next
// deadline; a tick that overruns its period starts the next one immediately.
func (s *Sampler) Run(ctx context.Context) error {
	s.logger.Info("sampler started", "period", s.period)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		start := time.Now()
		s.Tick(ctx)

		deadline := start.Add(s.period)
		wait := time.Until(deadline)
		if wait < 0 {
			elapsed := time.Since(start)
			s.logger.Debug("tick overran period", "elapsed", elapsed, "period", s.period)
			for _, fn := range s.onOverrun {
				fn(elapsed)
			}
			wait = 0
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			s.logger.Info("sampler stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tick runs one accounting step and returns the published sample.
func (s *Sampler) Tick(ctx context.Context) Sample {
	r := s.read(ctx)

	base := s.baseline.Observe(r.CPUW, r.GPUW)
	net := NetPower(r.CPUW, r.GPUW, base)
	bucket := s.ledger.Credit(net * s.dt)

	now := s.now()
	sample := Sample{
		TS:       unixSeconds(now),
		GPUW:     r.GPUW,
		CPUW:     r.CPUW,
		IdleGPUW: base.GPUW,
		IdleCPUW: base.CPUW,
		NetW:     net,
		BucketJ:  bucket,
	}

	s.mu.Lock()
	s.latest = sample
	s.published = now
	s.mu.Unlock()

	s.logger.Debug("tick", "cpu_w", r.CPUW, "gpu_w", r.GPUW, "net_w", net, "bucket_j", bucket)
	for _, fn := range s.onSample {
		fn(sample)
	}
	return sample
}

// Latest returns the most recently published sample.
func (s *Sampler) Latest() Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Status reports whether the sampler has published recently.
func (s *Sampler) Status(now time.Time) string {
	s.mu.RLock()
	published := s.published
	s.mu.RUnlock()

	switch {
	case published.IsZero():
		return StatusStarting
	case now.Sub(published) > staleAfter*s.period:
		return StatusStale
	default:
		return StatusOK
	}
}

// read never fails. Adapter errors are already substituted by the adapter;
// a panic yields a zero reading for this tick only.
func (s *Sampler) read(ctx context.Context) (r power.Reading) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("power source panicked", "error", fmt.Sprint(p))
			r = power.Reading{}
		}
	}()

	r, err := s.src.Read(ctx)
	if err != nil {
		s.logger.Debug("power reading substituted", "error", err)
	}
	return r
}
