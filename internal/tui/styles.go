package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/workflow"
)

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	greenColor   = lipgloss.Color("#10B981")
	amberColor   = lipgloss.Color("#F59E0B")
	redColor     = lipgloss.Color("#F87171")
	blueColor    = lipgloss.Color("#60A5FA")
	mutedColor   = lipgloss.Color("#9CA3AF")
	textColor    = lipgloss.Color("#F9FAFB")
	borderColor  = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle   = lipgloss.NewStyle().Foreground(redColor)
	warningStyle = lipgloss.NewStyle().Foreground(amberColor)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(textColor)

	tabActive = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor).
			Background(primaryColor).
			Padding(0, 2)

	tabInactive = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 2)

	box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1)

	statStyle = lipgloss.NewStyle().
			Padding(0, 1).
			MarginRight(1)
)

func taskStatusStyle(s task.Status) lipgloss.Style {
	switch s {
	case task.StatusRunning:
		return lipgloss.NewStyle().Foreground(greenColor)
	case task.StatusRetrying:
		return lipgloss.NewStyle().Foreground(amberColor)
	case task.StatusSucceeded:
		return lipgloss.NewStyle().Foreground(primaryColor)
	case task.StatusFailed:
		return lipgloss.NewStyle().Foreground(redColor)
	case task.StatusCancelled:
		return mutedStyle
	default:
		return lipgloss.NewStyle().Foreground(blueColor)
	}
}

func priorityStyle(p task.Priority) lipgloss.Style {
	switch p {
	case task.PriorityCritical:
		return lipgloss.NewStyle().Bold(true).Foreground(redColor)
	case task.PriorityHigh:
		return lipgloss.NewStyle().Foreground(amberColor)
	case task.PriorityLow:
		return mutedStyle
	default:
		return lipgloss.NewStyle().Foreground(textColor)
	}
}

func stepStatusStyle(s workflow.StepStatus) lipgloss.Style {
	switch s {
	case workflow.StepRunning:
		return lipgloss.NewStyle().Foreground(greenColor)
	case workflow.StepSucceeded:
		return lipgloss.NewStyle().Foreground(primaryColor)
	case workflow.StepFailed:
		return lipgloss.NewStyle().Foreground(redColor)
	default:
		return mutedStyle
	}
}
