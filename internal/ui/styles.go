package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/fernlabs/gateview/internal/approval"
)

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))

	phasePlanningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("45")).
				Padding(0, 1)

	phaseCodingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("226")).
				Padding(0, 1)

	phaseReviewStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("213")).
				Padding(0, 1)

	phaseOtherStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("245")).
			Padding(0, 1)
)

// usageBadge returns a colored status badge for context usage percent.
func usageBadge(percent float64) string {
	if percent < 70 {
		return healthyStyle.Render("[✓]")
	} else if percent < 90 {
		return warningStyle.Render("[⚠]")
	}
	return errorStyle.Render("[✗]")
}

// warningBadge colors a warning line by severity.
func warningBadge(severity string) string {
	switch severity {
	case "high", "critical":
		return errorStyle.Render("[✗]")
	case "low":
		return dimStyle.Render("[•]")
	default:
		return warningStyle.Render("[⚠]")
	}
}

// phaseBadge renders the pipeline phase tag.
func phaseBadge(phase approval.Phase) string {
	switch phase {
	case approval.PhasePlanning:
		return phasePlanningStyle.Render(string(phase))
	case approval.PhaseCoding:
		return phaseCodingStyle.Render(string(phase))
	case approval.PhaseReview:
		return phaseReviewStyle.Render(string(phase))
	default:
		if phase == "" {
			return phaseOtherStyle.Render("unknown")
		}
		return phaseOtherStyle.Render(string(phase))
	}
}

// statusBadge summarizes the review state for the header line.
func statusBadge(st approval.State) string {
	switch {
	case st.Err != "":
		return errorStyle.Render("✗ ERROR")
	case st.Processing:
		return warningStyle.Render("… SUBMITTING")
	case st.Checkpoint != nil && st.Checkpoint.RequiresApproval:
		return warningStyle.Render("⏸ AWAITING APPROVAL")
	case st.Checkpoint != nil:
		return warningStyle.Render("⏸ PAUSED")
	default:
		return healthyStyle.Render("▶ RUNNING")
	}
}

// formatTokens renders a token count as "123K".
func formatTokens(n int64) string {
	if n >= 1000 {
		return fmt.Sprintf("%dK", n/1000)
	}
	return fmt.Sprintf("%d", n)
}
