// Package metrics exports player lifecycle events as prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zeusync/behave/internal/core/bt"
)

var _ bt.Observer = (*Collector)(nil)

// Collector is a bt.Observer safe to share between any number of players. Labels are
// bounded: no per-agent or per-node values.
type Collector struct {
	activations   *prometheus.CounterVec
	deactivations prometheus.Counter
	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	violations    *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bt_node_activations_total",
			Help: "Node activation attempts by result",
		}, []string{"result"}),
		deactivations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bt_node_deactivations_total",
			Help: "Nodes deactivated",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bt_sweeps_total",
			Help: "Completed tree updates by resulting status",
		}, []string{"status"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bt_sweep_duration_seconds",
			Help:    "Time spent in one tree update",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bt_invariant_violations_total",
			Help: "Aborted updates by violated invariant",
		}, []string{"kind"}),
	}
	for _, col := range []prometheus.Collector{c.activations, c.deactivations, c.sweeps, c.sweepDuration, c.violations} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNewCollector is NewCollector that panics on registration errors.
func MustNewCollector(reg prometheus.Registerer) *Collector {
	c, err := NewCollector(reg)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Collector) OnActivate(_ bt.NodeIndex, ok bool) {
	if ok {
		c.activations.WithLabelValues("ok").Inc()
		return
	}
	c.activations.WithLabelValues("rejected").Inc()
}

func (c *Collector) OnDeactivate(bt.NodeIndex) { c.deactivations.Inc() }

func (c *Collector) OnSweep(status bt.Status, elapsed time.Duration) {
	c.sweeps.WithLabelValues(status.String()).Inc()
	c.sweepDuration.Observe(elapsed.Seconds())
}

func (c *Collector) OnViolation(err error) {
	c.violations.WithLabelValues(violationKind(err)).Inc()
}

func violationKind(err error) string {
	switch {
	case errors.Is(err, bt.ErrTraversalBounds):
		return "traversal_bounds"
	case errors.Is(err, bt.ErrDepthExceeded):
		return "depth_exceeded"
	case errors.Is(err, bt.ErrArenaOverflow):
		return "arena_overflow"
	case errors.Is(err, bt.ErrStackMismatch):
		return "stack_mismatch"
	case errors.Is(err, bt.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "other"
	}
}

// StatsFunc reports the gauges of an agent host.
type StatsFunc func() (agents, trees int)

// RegisterHost exposes the agent and tree counts of a host as gauges.
func RegisterHost(reg prometheus.Registerer, stats StatsFunc) error {
	agents := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "bt_agents",
		Help: "Agents currently hosted",
	}, func() float64 {
		n, _ := stats()
		return float64(n)
	})
	trees := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "bt_trees",
		Help: "Trees currently loaded",
	}, func() float64 {
		_, n := stats()
		return float64(n)
	})
	if err := reg.Register(agents); err != nil {
		return err
	}
	return reg.Register(trees)
}
