package energy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetPower(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		cpuW, gpuW float64
		base       Baselines
		want       float64
	}{
		{"both above", 40, 120, Baselines{GPUW: 20, CPUW: 15}, 125},
		{"both below", 10, 5, Baselines{GPUW: 20, CPUW: 15}, 0},
		{"gpu only", 10, 50, Baselines{GPUW: 20, CPUW: 15}, 30},
		{"cpu only", 25, 0, Baselines{GPUW: 20, CPUW: 15}, 10},
		{"exact baseline", 15, 20, Baselines{GPUW: 20, CPUW: 15}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NetPower(tt.cpuW, tt.gpuW, tt.base), 1e-12)
		})
	}
}

func TestEstimatorConvergesToIdleReading(t *testing.T) {
	t.Parallel()
	const alpha = 0.2
	seed := Baselines{GPUW: 20, CPUW: 15}
	e := NewEstimator(alpha, 50, seed)

	cpu, gpu := 12.0, 9.0
	var b Baselines
	for n := 1; n <= 200; n++ {
		b = e.Observe(cpu, gpu)
		decay := math.Pow(1-alpha, float64(n))
		require.InDelta(t, gpu+(seed.GPUW-gpu)*decay, b.GPUW, 1e-9, "gpu tick %d", n)
		require.InDelta(t, cpu+(seed.CPUW-cpu)*decay, b.CPUW, 1e-9, "cpu tick %d", n)
	}
	assert.InDelta(t, gpu, b.GPUW, 1e-9)
	assert.InDelta(t, cpu, b.CPUW, 1e-9)
	assert.Equal(t, b, e.Current())
}

func TestEstimatorIgnoresSustainedWorkload(t *testing.T) {
	t.Parallel()
	seed := Baselines{GPUW: 20, CPUW: 15}
	e := NewEstimator(0.2, 5, seed)

	for i := 0; i < 10_000; i++ {
		// net = (80-20) + (15-15) = 60 >= 5
		require.Equal(t, seed, e.Observe(15, 80))
	}
}

func TestEstimatorThresholdIsStrict(t *testing.T) {
	t.Parallel()
	seed := Baselines{GPUW: 0, CPUW: 0}
	e := NewEstimator(0.5, 5, seed)

	assert.Equal(t, seed, e.Observe(5, 0), "net equal to threshold must not learn")

	b := e.Observe(4.9, 0)
	assert.InDelta(t, 2.45, b.CPUW, 1e-12)
}

func TestEstimatorDecidesOnPreUpdateBaselines(t *testing.T) {
	t.Parallel()
	e := NewEstimator(0.2, 5, Baselines{GPUW: 20, CPUW: 10})

	// Pre-update net is 4 (< 5), so the baselines move toward the reading.
	b := e.Observe(14, 20)
	assert.InDelta(t, 10.8, b.CPUW, 1e-12)
	assert.InDelta(t, 20, b.GPUW, 1e-12)
	assert.InDelta(t, 3.2, NetPower(14, 20, b), 1e-12)
}

func TestEstimatorDegradedGPUConvergesToZero(t *testing.T) {
	t.Parallel()
	e := NewEstimator(0.2, 5, Baselines{GPUW: 20, CPUW: 15})

	var b Baselines
	for i := 0; i < 300; i++ {
		b = e.Observe(15, 0)
	}
	assert.InDelta(t, 0, b.GPUW, 1e-9)
	assert.InDelta(t, 15, b.CPUW, 1e-9)
}
