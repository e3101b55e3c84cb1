package engine

import (
	"fmt"

	"github.com/pablasso/phasegate/internal/checklist"
)

// Aggregate combines the values several tasks reported for one metric.
// values must not be empty.
func Aggregate(rule string, values []float64) float64 {
	switch rule {
	case checklist.AggregateMax:
		out := values[0]
		for _, v := range values[1:] {
			out = max(out, v)
		}
		return out
	case checklist.AggregateSum, checklist.AggregateMean:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		if rule == checklist.AggregateMean {
			return sum / float64(len(values))
		}
		return sum
	case checklist.AggregateLast:
		return values[len(values)-1]
	default:
		out := values[0]
		for _, v := range values[1:] {
			out = min(out, v)
		}
		return out
	}
}

// evaluateGate checks a phase's success gate against the metrics its tasks
// recorded, in task order. It returns an empty string when the gate passes.
func (e *Engine) evaluateGate(phase *checklist.Phase) string {
	gate := phase.SuccessGate
	if gate == nil {
		return ""
	}

	var values []float64
	for _, t := range phase.Tasks {
		if v, ok := e.doc.TaskMetrics(phase.Name, t.Description)[gate.Metric]; ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return fmt.Sprintf("success gate: metric %q was not reported by any task", gate.Metric)
	}

	rule := gate.Aggregate
	if rule == "" {
		rule = checklist.AggregateMin
	}
	value := Aggregate(rule, values)
	if value < gate.MinValue {
		return fmt.Sprintf("success gate: %s(%s) = %g is below %g", rule, gate.Metric, value, gate.MinValue)
	}
	return ""
}
