// Package metrics exposes the agent's power and ledger state to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benaskins/joule/internal/energy"
)

// Debit results used as the "result" label.
const (
	ResultOK           = "ok"
	ResultInsufficient = "insufficient"
	ResultInvalid      = "invalid"
)

// Recorder holds the agent's collectors and the registry they live in.
type Recorder struct {
	registry *prometheus.Registry

	power         *prometheus.GaugeVec
	idle          *prometheus.GaugeVec
	bucket        prometheus.GaugeFunc
	ticks         prometheus.Counter
	overruns      prometheus.Counter
	debits        *prometheus.CounterVec
	debitedJoules prometheus.Counter
}

// New creates a Recorder with its own registry. balance is read on every
// scrape to report the ledger.
func New(balance func() float64) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		power: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "joule_power_watts",
				Help: "Instantaneous power draw in watts",
			},
			[]string{"domain"},
		),
		idle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "joule_idle_watts",
				Help: "Learned idle baseline power in watts",
			},
			[]string{"domain"},
		),
		bucket: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "joule_bucket_joules",
			Help: "Joules currently available in the ledger",
		}, balance),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "joule_ticks_total",
			Help: "Sampler ticks completed",
		}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "joule_tick_overruns_total",
			Help: "Sampler ticks that took longer than the sampling period",
		}),
		debits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joule_debits_total",
				Help: "Debit requests by result",
			},
			[]string{"result"},
		),
		debitedJoules: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "joule_debited_joules_total",
			Help: "Joules granted to debit requests",
		}),
	}

	r.registry.MustRegister(r.power)
	r.registry.MustRegister(r.idle)
	r.registry.MustRegister(r.bucket)
	r.registry.MustRegister(r.ticks)
	r.registry.MustRegister(r.overruns)
	r.registry.MustRegister(r.debits)
	r.registry.MustRegister(r.debitedJoules)

	return r
}

// ObserveSample updates the gauges from a published sample.
func (r *Recorder) ObserveSample(s energy.Sample) {
	r.power.With(prometheus.Labels{"domain": "cpu"}).Set(s.CPUW)
	r.power.With(prometheus.Labels{"domain": "gpu"}).Set(s.GPUW)
	r.power.With(prometheus.Labels{"domain": "net"}).Set(s.NetW)
	r.idle.With(prometheus.Labels{"domain": "cpu"}).Set(s.IdleCPUW)
	r.idle.With(prometheus.Labels{"domain": "gpu"}).Set(s.IdleGPUW)
	r.ticks.Inc()
}

// ObserveOverrun counts a tick that exceeded its period.
func (r *Recorder) ObserveOverrun(time.Duration) {
	r.overruns.Inc()
}

// ObserveDebit records the outcome of a debit request.
func (r *Recorder) ObserveDebit(joules float64, res energy.TakeResult, err error) {
	switch {
	case err != nil:
		r.debits.With(prometheus.Labels{"result": ResultInvalid}).Inc()
	case res.OK:
		r.debits.With(prometheus.Labels{"result": ResultOK}).Inc()
		r.debitedJoules.Add(joules)
	default:
		r.debits.With(prometheus.Labels{"result": ResultInsufficient}).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
