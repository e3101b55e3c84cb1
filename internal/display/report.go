package display

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/status"
	"github.com/pablasso/phasegate/internal/tui/styles"
)

// RenderStatus formats the persisted status of a checklist, phase by phase.
// Phases and tasks follow checklist order; metrics recorded for a task are
// listed after it.
func RenderStatus(cl *checklist.Checklist, doc status.Document) string {
	var b strings.Builder

	name := cl.Name
	if name == "" {
		name = cl.ID
	}
	b.WriteString(styles.TitleStyle.Render(name))
	b.WriteString("\n")

	done, total := 0, 0
	for _, phase := range cl.Phases {
		ps := doc.PhaseStatus(phase.Name)
		b.WriteString(styles.PhaseStyle.Render(phase.Name))
		b.WriteString("  ")
		b.WriteString(styles.Render(ps))
		b.WriteString("\n")

		for _, task := range phase.Tasks {
			total++
			ts := doc.TaskStatus(phase.Name, task.Description)
			if ts == status.Completed {
				done++
			}
			fmt.Fprintf(&b, "  %s %s\n", styles.ForStatus(ts).Render(styles.Indicator(ts)), task.Description)

			if m := doc.TaskMetrics(phase.Name, task.Description); len(m) > 0 {
				b.WriteString(styles.SubtleStyle.Render("      " + formatMetrics(m)))
				b.WriteString("\n")
			}
		}

		if g := phase.SuccessGate; g != nil {
			agg := g.Aggregate
			if agg == "" {
				agg = checklist.AggregateMin
			}
			b.WriteString(styles.SubtleStyle.Render(fmt.Sprintf("  gate: %s(%s) >= %g", agg, g.Metric, g.MinValue)))
			b.WriteString("\n")
		}
	}

	b.WriteString(styles.StatusBarStyle.Render(fmt.Sprintf("%d/%d tasks completed", done, total)))
	b.WriteString("\n")
	return b.String()
}

func formatMetrics(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, m[k]))
	}
	return strings.Join(parts, " ")
}
