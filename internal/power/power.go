// Package power estimates instantaneous CPU and GPU power draw.
//
// CPU power is derived from the average per-core utilization scaled by a
// thermal design power. GPU power is read from NVML for device 0 where the
// library is present. Neither domain ever fails a read: errors are reported
// alongside a substituted reading so that callers can keep sampling.
package power

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultCPUUtilization is substituted when the host reports no cores or the
// utilization query fails.
const DefaultCPUUtilization = 20.0

// gpuRetryInterval is how long the adapter waits before re-probing a GPU
// that could not be opened.
const gpuRetryInterval = time.Minute

// ErrNoGPU is returned when no GPU power sensor can be opened.
var ErrNoGPU = errors.New("gpu power sensor unavailable")

// Reading is a point-in-time power estimate for both domains.
type Reading struct {
	CPUUtilization float64 `json:"cpu_utilization"` // percent, 0-100
	CPUW           float64 `json:"cpu_w"`
	GPUW           float64 `json:"gpu_w"`
	GPUAvailable   bool    `json:"gpu_available"`
}

// CPUSource reports per-core utilization percentages (0-100).
type CPUSource interface {
	Percentages(ctx context.Context) ([]float64, error)
}

// GPUSource reports instantaneous power draw in milliwatts.
type GPUSource interface {
	PowerMilliwatts() (uint32, error)
	Close() error
}

// Adapter combines a CPU and a GPU source into a single Reading.
type Adapter struct {
	cpu     CPUSource
	openGPU func() (GPUSource, error)
	tdpW    float64
	logger  *slog.Logger
	now     func() time.Time

	// mu serializes access to the GPU sensor and its probe state.
	mu        sync.Mutex
	gpu       GPUSource
	lastProbe time.Time
	probed    bool
	gpuState  gpuState
}

type gpuState int

const (
	gpuUnknown gpuState = iota
	gpuAvailable
	gpuUnavailable
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithCPU replaces the CPU utilization source.
func WithCPU(src CPUSource) Option {
	return func(a *Adapter) {
		a.cpu = src
	}
}

// WithGPUOpener replaces the function used to open the GPU sensor.
func WithGPUOpener(open func() (GPUSource, error)) Option {
	return func(a *Adapter) {
		a.openGPU = open
	}
}

// WithClock sets the time source used for GPU re-probing.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

// NewAdapter creates an adapter that scales CPU utilization by tdpW.
// By default it reads CPU utilization through gopsutil and GPU power
// through NVML.
func NewAdapter(tdpW float64, opts ...Option) *Adapter {
	a := &Adapter{
		cpu:     NewHostCPU(),
		openGPU: OpenGPU,
		tdpW:    tdpW,
		logger:  slog.With("component", "power"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Read returns the current reading. The returned error, if any, describes
// the domains whose values were substituted; the Reading is always usable.
func (a *Adapter) Read(ctx context.Context) (Reading, error) {
	var r Reading
	var errs []error

	util, err := a.cpuUtilization(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	r.CPUUtilization = util
	r.CPUW = util / 100 * a.tdpW

	gpuW, err := a.gpuWatts()
	if err != nil {
		errs = append(errs, err)
	} else {
		r.GPUAvailable = true
	}
	r.GPUW = gpuW

	return r, errors.Join(errs...)
}

// Close releases the GPU sensor if one is open.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gpu == nil {
		return nil
	}
	err := a.gpu.Close()
	a.gpu = nil
	return err
}

func (a *Adapter) cpuUtilization(ctx context.Context) (util float64, err error) {
	defer func() {
		if p := recover(); p != nil {
			util, err = DefaultCPUUtilization, fmt.Errorf("cpu utilization panic: %v", p)
		}
	}()

	pcts, err := a.cpu.Percentages(ctx)
	if err != nil {
		return DefaultCPUUtilization, fmt.Errorf("reading cpu utilization: %w", err)
	}
	if len(pcts) == 0 {
		return DefaultCPUUtilization, nil
	}
	return Average(pcts), nil
}

func (a *Adapter) gpuWatts() (w float64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			w, err = 0, fmt.Errorf("gpu power panic: %v", p)
		}
		a.setGPUAvailable(err == nil)
	}()

	if a.gpu == nil {
		now := a.now()
		if a.probed && now.Sub(a.lastProbe) < gpuRetryInterval {
			return 0, ErrNoGPU
		}
		a.probed = true
		a.lastProbe = now
		gpu, err := a.openGPU()
		if errors.Is(err, ErrNoGPU) {
			return 0, err
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrNoGPU, err)
		}
		a.gpu = gpu
	}

	mw, err := a.gpu.PowerMilliwatts()
	if err != nil {
		return 0, fmt.Errorf("reading gpu power: %w", err)
	}
	return float64(mw) / 1000, nil
}

// setGPUAvailable records the sensor state and logs transitions only, so a
// missing GPU is reported once rather than every tick. Caller must hold a.mu.
func (a *Adapter) setGPUAvailable(ok bool) {
	next := gpuUnavailable
	if ok {
		next = gpuAvailable
	}
	if next == a.gpuState {
		return
	}
	if ok {
		a.logger.Info("gpu power sensor available")
	} else {
		a.logger.Warn("gpu power sensor unavailable, reporting 0 W")
	}
	a.gpuState = next
}
