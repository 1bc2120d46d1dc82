package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/conductor/internal/api"
	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/util"
	"github.com/Iron-Ham/conductor/internal/workflow"
)

// RenderStatus renders a one-shot status report, used by `conductor status`.
func RenderStatus(s api.StatusResponse, width int) string {
	if width <= 0 {
		width = 100
	}
	var b strings.Builder
	b.WriteString(renderSummary(s))
	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render("Workers"))
	b.WriteString("\n")
	b.WriteString(renderWorkers(s, width))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Active tasks"))
	b.WriteString("\n")
	b.WriteString(renderTasks(s.Active, s.GeneratedAt, width))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Running workflows"))
	b.WriteString("\n")
	b.WriteString(renderExecutions(s.Executions, s.GeneratedAt, width))
	return b.String()
}

func renderSummary(s api.StatusResponse) string {
	c := s.Summary.Coordinator
	state := errorStyle.Render("stopped")
	if s.Summary.Running {
		state = lipgloss.NewStyle().Foreground(greenColor).Render("running")
	}

	stats := []string{
		statStyle.Render("hub " + state),
		statStyle.Render(fmt.Sprintf("workers %d/%d", c.ActiveWorkers, c.RegisteredWorkers)),
		statStyle.Render(fmt.Sprintf("queued %d", c.Queued)),
		statStyle.Render(fmt.Sprintf("in-flight %d", c.InFlight)),
		statStyle.Render(fmt.Sprintf("retrying %d", c.Retrying)),
		statStyle.Render(fmt.Sprintf("ok %d", c.Succeeded)),
		statStyle.Render(errorIf(c.Failed > 0, fmt.Sprintf("failed %d", c.Failed))),
	}
	triggers := []string{
		statStyle.Render(fmt.Sprintf("schedules %d", s.Summary.Templates)),
		statStyle.Render(fmt.Sprintf("rules %d", s.Summary.Rules)),
		statStyle.Render(fmt.Sprintf("thresholds %d", s.Summary.Thresholds)),
		statStyle.Render(fmt.Sprintf("workflows %d (%d running)", s.Summary.Workflows, s.Summary.Executions)),
		statStyle.Render(fmt.Sprintf("avg %s", util.FormatDuration(s.Metrics.AvgDuration()))),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, stats...) + "\n" +
		mutedStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, triggers...))
}

func errorIf(cond bool, s string) string {
	if cond {
		return errorStyle.Render(s)
	}
	return s
}

func renderWorkers(s api.StatusResponse, width int) string {
	if len(s.Workers) == 0 {
		return mutedStyle.Render("  no workers registered") + "\n"
	}
	var b strings.Builder
	for _, w := range s.Workers {
		state := lipgloss.NewStyle().Foreground(greenColor).Render("active")
		if !w.Active {
			state = mutedStyle.Render("inactive")
		}
		line := fmt.Sprintf("  %s %s %s %s",
			util.PadRight(w.ID, 20),
			util.PadRight(string(w.Type), 12),
			util.PadRight(state, 10),
			mutedStyle.Render("seen "+util.FormatAge(s.GeneratedAt, w.LastSeen)))
		b.WriteString(util.TruncateANSI(line, width))
		b.WriteString("\n")
	}
	return b.String()
}

func renderTasks(tasks []task.Task, now time.Time, width int) string {
	if len(tasks) == 0 {
		return mutedStyle.Render("  none") + "\n"
	}
	ordered := slices.Clone(tasks)
	slices.SortStableFunc(ordered, func(a, b task.Task) int {
		return int(b.Priority) - int(a.Priority)
	})

	var b strings.Builder
	for _, t := range ordered {
		age := t.CreatedAt
		if !t.FinishedAt.IsZero() {
			age = t.FinishedAt
		}
		line := fmt.Sprintf("  %s %s %s %s %s %s",
			util.PadRight(shortID(t.ID), 9),
			util.PadRight(taskStatusStyle(t.Status).Render(string(t.Status)), 10),
			util.PadRight(priorityStyle(t.Priority).Render(t.Priority.String()), 9),
			util.PadRight(t.WorkerType, 12),
			util.PadRight(t.TenantID, 12),
			mutedStyle.Render(describeTask(t, now, age)))
		b.WriteString(util.TruncateANSI(line, width))
		b.WriteString("\n")
	}
	return b.String()
}

func describeTask(t task.Task, now, at time.Time) string {
	parts := []string{string(t.Origin), util.FormatAge(now, at)}
	if t.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("attempt %d", t.Attempts))
	}
	if t.LastError != "" {
		parts = append(parts, errorStyle.Render(t.LastError))
	}
	return strings.Join(parts, " · ")
}

func renderExecutions(execs []workflow.Execution, now time.Time, width int) string {
	if len(execs) == 0 {
		return mutedStyle.Render("  none") + "\n"
	}
	var b strings.Builder
	for _, e := range execs {
		steps := make([]string, len(e.Steps))
		for i, st := range e.Steps {
			name := st.Name
			if i == e.CurrentStep && e.Status == workflow.StatusRunning {
				name = "▸" + name
			}
			steps[i] = stepStatusStyle(st.Status).Render(name)
		}
		line := fmt.Sprintf("  %s %s %s %s",
			util.PadRight(shortID(e.ID), 9),
			util.PadRight(e.DefinitionID, 14),
			strings.Join(steps, mutedStyle.Render(" → ")),
			mutedStyle.Render(util.FormatAge(now, e.StartedAt)))
		b.WriteString(util.TruncateANSI(line, width))
		b.WriteString("\n")
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
