package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/regbench/internal/benchmark"
	"github.com/joseph-ayodele/regbench/internal/llm"
)

const namespace = "regbench"

// Metrics holds run-level counters. Each instance owns its registry so tests
// and repeated runs never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	OracleCalls       *prometheus.CounterVec
	OracleDuration    *prometheus.HistogramVec
	Iterations        prometheus.Counter
	Assigned          prometheus.Counter
	DimensionsCreated prometheus.Counter
	Rekeyed           prometheus.Counter
	Unmapped          prometheus.Gauge
	ClosureOutcomes   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		OracleCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "oracle",
				Name:      "calls_total",
				Help:      "Oracle calls by pipeline stage and status",
			},
			[]string{"stage", "status"},
		),
		OracleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "oracle",
				Name:      "duration_seconds",
				Help:      "Oracle call latency in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
			},
			[]string{"stage"},
		),
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "closure",
			Name:      "iterations_total",
			Help:      "Closure loop Mapping rounds",
		}),
		Assigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "closure",
			Name:      "assignments_total",
			Help:      "Unit-to-dimension assignments merged by the closure loop",
		}),
		DimensionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "closure",
			Name:      "dimensions_created_total",
			Help:      "Dimensions minted by the closure loop",
		}),
		Rekeyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "closure",
			Name:      "rekeyed_total",
			Help:      "Minted keys re-keyed after a same-round collision",
		}),
		Unmapped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "closure",
			Name:      "unmapped_units",
			Help:      "Units unmapped at the start of the latest round",
		}),
		ClosureOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "closure",
				Name:      "outcomes_total",
				Help:      "Closure runs by terminal outcome",
			},
			[]string{"outcome"},
		),
	}
	m.registry.MustRegister(
		m.OracleCalls,
		m.OracleDuration,
		m.Iterations,
		m.Assigned,
		m.DimensionsCreated,
		m.Rekeyed,
		m.Unmapped,
		m.ClosureOutcomes,
	)
	return m
}

// Registry exposes the gatherer for tests and exporters.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// InstrumentOracle counts and times every call made through o.
func (m *Metrics) InstrumentOracle(o llm.Oracle) llm.Oracle {
	return llm.OracleFunc(func(ctx context.Context, req llm.Request) (string, error) {
		start := time.Now()
		out, err := o.Ask(ctx, req)
		stage := string(req.Purpose)
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.OracleCalls.WithLabelValues(stage, status).Inc()
		m.OracleDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		return out, err
	})
}

// ObserveIteration is a closure loop observer.
func (m *Metrics) ObserveIteration(s benchmark.IterationStats) {
	m.Iterations.Inc()
	m.Unmapped.Set(float64(s.Unmapped))
	m.Assigned.Add(float64(s.Merge.Assigned))
	m.DimensionsCreated.Add(float64(len(s.Merge.Created)))
	m.Rekeyed.Add(float64(len(s.Merge.Rekeyed)))
}

// ObserveClosure records the terminal outcome of a closure run.
func (m *Metrics) ObserveClosure(r benchmark.Result) {
	m.ClosureOutcomes.WithLabelValues(string(r.Outcome)).Inc()
	m.Unmapped.Set(float64(len(r.Unconverged)))
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
