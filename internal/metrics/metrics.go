// Package metrics exposes engine activity as Prometheus collectors fed
// from engine hooks.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rendis/callgraph/internal/engine"
	"github.com/rendis/callgraph/pkg/schema"
)

const namespace = "callgraph"

// Collector holds the engine metrics. Register it once per registry.
type Collector struct {
	nodeStarts     *prometheus.CounterVec
	nodeReturns    *prometheus.CounterVec
	nodeFailures   *prometheus.CounterVec
	queuedTriggers *prometheus.CounterVec
	transfers      *prometheus.CounterVec
	running        *prometheus.GaugeVec
	tasks          *prometheus.GaugeVec
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		nodeStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_starts_total",
			Help:      "Component executions started, by component kind.",
		}, []string{"kind"}),
		nodeReturns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_returns_total",
			Help:      "Result ports fired, by component kind and result.",
		}, []string{"kind", "result"}),
		nodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_failures_total",
			Help:      "Component executions that failed, by component kind.",
		}, []string{"kind"}),
		queuedTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queued_triggers_total",
			Help:      "Triggers queued because a node was busy or frozen by a breakpoint.",
		}, []string{"kind", "state"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parameter_transfers_total",
			Help:      "Parameter transfers, by assignation and whether the value was written.",
		}, []string{"assignation", "written"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_components",
			Help:      "Nodes currently in the started state, by component kind.",
		}, []string{"kind"}),
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks",
			Help:      "Tasks that left idle, by current status.",
		}, []string{"status"}),
	}

	for _, col := range []prometheus.Collector{
		c.nodeStarts, c.nodeReturns, c.nodeFailures, c.queuedTriggers, c.transfers, c.running, c.tasks,
	} {
		if err := reg.Register(col); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				return nil, schema.NewError(schema.ErrCodeConflict, "metrics already registered").WithCause(err)
			}
			return nil, err
		}
	}
	return c, nil
}

// Hooks returns the engine hooks that feed the node metrics.
func (c *Collector) Hooks() engine.Hooks {
	return engine.Hooks{
		OnStateChange: func(_ context.Context, e *engine.NodeEvent) {
			switch e.To {
			case schema.NodeStateStarted:
				c.nodeStarts.WithLabelValues(e.Kind).Inc()
				c.running.WithLabelValues(e.Kind).Inc()
			case schema.NodeStateWaitingForStart, schema.NodeStateFreezeByBreak:
				c.queuedTriggers.WithLabelValues(e.Kind, string(e.To)).Inc()
			}
			if e.From == schema.NodeStateStarted {
				c.running.WithLabelValues(e.Kind).Dec()
			}
		},
		OnReturned: func(_ context.Context, e *engine.NodeEvent) {
			c.nodeReturns.WithLabelValues(e.Kind, e.Result).Inc()
		},
		OnFailed: func(_ context.Context, e *engine.NodeEvent) {
			c.nodeFailures.WithLabelValues(e.Kind).Inc()
		},
		OnTransfer: func(_ context.Context, e *engine.TransferEvent) {
			written := "false"
			if e.Written {
				written = "true"
			}
			c.transfers.WithLabelValues(e.Mode.String(), written).Inc()
		},
	}
}

// StatusHook tracks task status transitions.
func (c *Collector) StatusHook() engine.StatusHook {
	return func(_ context.Context, _ string, from, to schema.TaskStatus) {
		if from != schema.TaskStatusIdle {
			c.tasks.WithLabelValues(string(from)).Dec()
		}
		c.tasks.WithLabelValues(string(to)).Inc()
	}
}

// RegisterPool exposes the worker pool counters of a manager.
func RegisterPool(reg prometheus.Registerer, m *engine.Manager) error {
	gauge := func(name, help string, value func(engine.PoolMetrics) int64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(m.PoolMetrics())) })
	}
	for _, col := range []prometheus.Collector{
		gauge("active", "Asynchronous jobs running.", func(p engine.PoolMetrics) int64 { return p.Active }),
		gauge("completed", "Asynchronous jobs finished.", func(p engine.PoolMetrics) int64 { return p.Completed }),
		gauge("failed", "Asynchronous jobs that returned an error.", func(p engine.PoolMetrics) int64 { return p.Failed }),
		gauge("panics", "Asynchronous jobs that panicked.", func(p engine.PoolMetrics) int64 { return p.Panics }),
	} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}
