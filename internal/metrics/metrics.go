// Package metrics records run statistics as Prometheus metrics and writes
// them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/engine"
	"github.com/pablasso/phasegate/internal/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements engine.Events. Each collector owns its registry, so
// several can coexist in one process.
//
// Metrics:
//   - phasegate_tasks_total{phase,status} - tasks that reached a terminal status
//   - phasegate_task_duration_seconds{phase} - task execution time
//   - phasegate_phases_total{status} - phases that reached a terminal status
//   - phasegate_task_metric{phase,task,metric} - last value reported by validation
//   - phasegate_run_duration_seconds - duration of the last run
//   - phasegate_run_success - 1 if the last run completed, else 0
//   - phasegate_persistence_errors - failed status writes in the last run
//   - phasegate_tasks_reset - tasks restarted from a previous run
type Collector struct {
	registry *prometheus.Registry

	TasksTotal        *prometheus.CounterVec
	TaskDuration      *prometheus.HistogramVec
	PhasesTotal       *prometheus.CounterVec
	TaskMetric        *prometheus.GaugeVec
	RunDuration       prometheus.Gauge
	RunSuccess        prometheus.Gauge
	PersistenceErrors prometheus.Gauge
	TasksReset        prometheus.Gauge
}

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		TasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "phasegate_tasks_total",
			Help: "Tasks that reached a terminal status.",
		}, []string{"phase", "status"}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "phasegate_task_duration_seconds",
			Help:    "Task execution time, blockers and validation included.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"phase"}),
		PhasesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "phasegate_phases_total",
			Help: "Phases that reached a terminal status.",
		}, []string{"status"}),
		TaskMetric: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "phasegate_task_metric",
			Help: "Last value of each metric reported by task validation.",
		}, []string{"phase", "task", "metric"}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "phasegate_run_duration_seconds",
			Help: "Duration of the last run.",
		}),
		RunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "phasegate_run_success",
			Help: "1 if the last run completed, 0 otherwise.",
		}),
		PersistenceErrors: f.NewGauge(prometheus.GaugeOpts{
			Name: "phasegate_persistence_errors",
			Help: "Status writes that failed during the last run.",
		}),
		TasksReset: f.NewGauge(prometheus.GaugeOpts{
			Name: "phasegate_tasks_reset",
			Help: "Tasks restarted because a previous run left them unfinished.",
		}),
	}
}

// Registry exposes the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) OnRunStart(_ *checklist.Checklist, _ status.Document, reset []string) {
	c.TasksReset.Set(float64(len(reset)))
}

func (c *Collector) OnPhaseStart(string, int, int) {}

func (c *Collector) OnTaskStart(string, string, int, int) {}

func (c *Collector) OnTaskFinished(r engine.TaskReport) {
	c.TasksTotal.WithLabelValues(r.Phase, string(r.Status)).Inc()
	c.TaskDuration.WithLabelValues(r.Phase).Observe(r.Duration.Seconds())
	for name, v := range r.Metrics {
		c.TaskMetric.WithLabelValues(r.Phase, r.Task, name).Set(v)
	}
}

func (c *Collector) OnPhaseFinished(_ string, st status.Status, _ string) {
	c.PhasesTotal.WithLabelValues(string(st)).Inc()
}

func (c *Collector) OnRunFinished(o engine.Outcome, d time.Duration) {
	c.RunDuration.Set(d.Seconds())
	c.PersistenceErrors.Set(float64(o.PersistenceErrors))
	if o.Result == engine.ResultCompleted {
		c.RunSuccess.Set(1)
	} else {
		c.RunSuccess.Set(0)
	}
}

// WriteTextfile writes every metric to path in the text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
