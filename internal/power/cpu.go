package power

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
)

// HostCPU reads per-core utilization from the operating system.
type HostCPU struct{}

// NewHostCPU returns a CPUSource backed by gopsutil.
func NewHostCPU() HostCPU {
	return HostCPU{}
}

// Percentages returns per-core utilization since the previous call. The
// first call measures since the counters gopsutil captured at process start.
func (HostCPU) Percentages(ctx context.Context) ([]float64, error) {
	return cpu.PercentWithContext(ctx, 0, true)
}

// Average returns the arithmetic mean of per-core percentages, or 0 for an
// empty slice.
func Average(pcts []float64) float64 {
	if len(pcts) == 0 {
		return 0
	}
	var total float64
	for _, p := range pcts {
		total += p
	}
	return total / float64(len(pcts))
}
