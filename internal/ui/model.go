// Package ui implements the gateview review screen.
//
// The model mirrors the approval store: it subscribes to store changes and
// re-renders on every notification. Reviewer actions (submit feedback,
// approve) run through the review.Submitter, which reports outcomes back via
// the store, so the UI never mutates review state directly.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/fernlabs/gateview/internal/approval"
	"github.com/fernlabs/gateview/internal/backend"
	"github.com/fernlabs/gateview/internal/review"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30

	// stateBuffer absorbs bursts of store notifications between renders.
	stateBuffer = 16
)

// UsageSource supplies the footer usage meter. Satisfied by *backend.Client.
type UsageSource interface {
	Usage(ctx context.Context) (*backend.UsageSnapshot, error)
}

// Model is the BubbleTea model for the review screen.
type Model struct {
	store     *approval.Store
	submitter *review.Submitter
	usage     UsageSource
	interval  time.Duration
	logger    *zap.Logger

	state            approval.State
	activeCheckpoint string
	changes          chan approval.State
	cancelWatch      func()

	input     textarea.Model
	spin      spinner.Model
	usageBar  progress.Model
	usageSnap *backend.UsageSnapshot
	usageHist []float64

	quitting bool
}

// Message types
type stateMsg approval.State
type usageMsg backend.UsageSnapshot
type usageErrMsg error
type tickMsg time.Time

// NewModel creates the review screen bound to a store and submitter.
func NewModel(store *approval.Store, submitter *review.Submitter, usage UsageSource, interval time.Duration, logger *zap.Logger) Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ta := textarea.New()
	ta.Placeholder = "Feedback for the pipeline..."
	ta.SetHeight(4)
	ta.SetWidth(72)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = warningStyle

	bar := progress.New(
		progress.WithGradient("#00ff00", "#ff0000"),
		progress.WithWidth(40),
	)

	changes := make(chan approval.State, stateBuffer)
	cancel := store.Subscribe(func(st approval.State) {
		select {
		case changes <- st:
		default:
			// Renders coalesce; a dropped intermediate snapshot is fine
			// because the next one carries the full state.
		}
	})

	m := Model{
		store:       store,
		submitter:   submitter,
		usage:       usage,
		interval:    interval,
		logger:      logger,
		state:       store.Snapshot(),
		changes:     changes,
		cancelWatch: cancel,
		input:       ta,
		spin:        sp,
		usageBar:    bar,
		usageHist:   make([]float64, 0, historySize),
	}
	if m.state.Checkpoint != nil {
		m.activeCheckpoint = m.state.Checkpoint.CheckpointID
	}
	return m
}

// Init starts the store watcher, the usage poller, and cursor blinking.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.waitForState(),
		m.fetchUsage(),
		tick(m.interval),
		m.spin.Tick,
		textarea.Blink,
	)
}

// waitForState blocks on the next store notification.
func (m Model) waitForState() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		return stateMsg(<-ch)
	}
}

// tick creates a tick command for usage auto-refresh.
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchUsage polls the backend usage snapshot.
func (m Model) fetchUsage() tea.Cmd {
	src := m.usage
	return func() tea.Msg {
		if src == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		snap, err := src.Usage(ctx)
		if err != nil {
			return usageErrMsg(err)
		}
		return usageMsg(*snap)
	}
}

// submit dispatches the current input through the submitter. Outcomes land in
// the store; the resulting notification redraws the screen.
func (m Model) submit(text string) tea.Cmd {
	sub := m.submitter
	logger := m.logger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), review.Timeout)
		defer cancel()

		if err := sub.Submit(ctx, text, nil); err != nil {
			logger.Warn("submit failed", zap.Error(err))
		}
		return nil
	}
}

func (m Model) approve() tea.Cmd {
	sub := m.submitter
	logger := m.logger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), review.Timeout)
		defer cancel()

		if err := sub.Approve(ctx); err != nil {
			logger.Warn("approve failed", zap.Error(err))
		}
		return nil
	}
}

func (m Model) hydrate() tea.Cmd {
	sub := m.submitter
	logger := m.logger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), review.Timeout)
		defer cancel()

		if err := sub.Hydrate(ctx); err != nil {
			logger.Warn("hydrate failed", zap.Error(err))
		}
		return nil
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			m.cancelWatch()
			return m, tea.Quit

		case "ctrl+s":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.state.Processing || m.state.Checkpoint == nil {
				return m, nil
			}
			m.input.Reset()
			return m, m.submit(text)

		case "ctrl+a":
			if m.state.Processing || m.state.Checkpoint == nil || !m.state.Checkpoint.RequiresApproval {
				return m, nil
			}
			return m, m.approve()
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case stateMsg:
		m.state = approval.State(msg)

		var cmds []tea.Cmd
		cmds = append(cmds, m.waitForState())

		// A fresh checkpoint invalidates the draft and needs its history
		// pulled from the backend.
		next := ""
		if m.state.Checkpoint != nil {
			next = m.state.Checkpoint.CheckpointID
		}
		if next != m.activeCheckpoint {
			m.activeCheckpoint = next
			m.input.Reset()
			if next != "" {
				cmds = append(cmds, m.hydrate())
			}
		}
		return m, tea.Batch(cmds...)

	case tickMsg:
		return m, tea.Batch(tick(m.interval), m.fetchUsage())

	case usageMsg:
		snap := backend.UsageSnapshot(msg)
		m.usageSnap = &snap
		m.usageHist = appendToHistory(m.usageHist, snap.Percent)
		return m, nil

	case usageErrMsg:
		// Keep the previous snapshot; usage is cosmetic.
		m.logger.Debug("usage poll failed", zap.Error(error(msg)))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the review screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.state.Checkpoint == nil {
		return containerStyle.Render(m.renderIdle())
	}
	return containerStyle.Render(m.renderCheckpoint())
}

// renderIdle renders the between-checkpoints view.
func (m Model) renderIdle() string {
	var content string
	content += headerStyle.Render(" gateview ") + "  " + statusBadge(m.state) + "\n"
	content += "\n"
	content += dimStyle.Render("Pipeline is running. The next checkpoint will appear here.") + "\n"
	content += m.renderUsage()
	content += m.renderFooter()
	return content
}

// renderCheckpoint renders the paused-at-checkpoint review view.
func (m Model) renderCheckpoint() string {
	cp := m.state.Checkpoint
	var content string

	content += headerStyle.Render(" gateview ") + "  " + statusBadge(m.state) + "\n"
	content += labelStyle.Render("Task: ") + valueStyle.Render(cp.TaskID) +
		dimStyle.Render("  paused "+cp.PausedAt.Format("15:04:05")) + "\n"

	content += "\n" + sectionStyle.Render("┃ Checkpoint") + "\n"
	content += "  " + valueStyle.Render(cp.Name) + " " + phaseBadge(cp.Phase) +
		" " + dimStyle.Render(cp.CheckpointID) + "\n"
	if cp.Description != "" {
		content += "  " + dimStyle.Render(cp.Description) + "\n"
	}
	if cp.Summary != "" {
		content += labelStyle.Render("  Summary: ") + valueStyle.Render(cp.Summary) + "\n"
	}

	if len(cp.Artifacts) > 0 {
		content += "\n" + sectionStyle.Render("┃ Artifacts") + "\n"
		for _, a := range cp.Artifacts {
			content += labelStyle.Render("  • ") + valueStyle.Render(a.Name) +
				" " + dimStyle.Render(a.Path) + "\n"
		}
	}

	if len(cp.Decisions) > 0 {
		content += "\n" + sectionStyle.Render("┃ Decisions") + "\n"
		for _, d := range cp.Decisions {
			content += labelStyle.Render("  • ") + valueStyle.Render(d.Title)
			if d.Rationale != "" {
				content += dimStyle.Render(" — " + d.Rationale)
			}
			content += "\n"
		}
	}

	if len(cp.Warnings) > 0 {
		content += "\n" + sectionStyle.Render("┃ Warnings") + "\n"
		for _, w := range cp.Warnings {
			content += "  " + warningBadge(w.Severity) + " " + valueStyle.Render(w.Message) + "\n"
		}
	}

	content += "\n" + sectionStyle.Render("┃ Feedback") + "\n"
	if len(m.state.History) == 0 {
		content += dimStyle.Render("  none yet") + "\n"
	}
	for _, f := range m.state.History {
		content += labelStyle.Render("  "+f.CreatedAt.Format("15:04")+" ") +
			valueStyle.Render(f.Feedback)
		if len(f.Attachments) > 0 {
			content += dimStyle.Render(fmt.Sprintf(" (%d attachments)", len(f.Attachments)))
		}
		content += "\n"
	}

	content += "\n" + m.input.View() + "\n"

	if m.state.Processing {
		content += m.spin.View() + warningStyle.Render(" submitting...") + "\n"
	}
	if m.state.Err != "" {
		content += errorStyle.Render("✗ "+m.state.Err) + "\n"
	}

	content += m.renderUsage()
	content += m.renderFooter()
	return content
}

// renderUsage renders the context-usage meter fed by the usage poller.
func (m Model) renderUsage() string {
	if m.usageSnap == nil {
		return ""
	}

	percent := m.usageSnap.Percent / 100.0
	if percent > 1.0 {
		percent = 1.0
	}

	var content string
	content += "\n" + sectionStyle.Render("┃ Usage") + "\n"
	content += labelStyle.Render("  Tokens: ") +
		valueStyle.Render(formatTokens(m.usageSnap.TokensUsed)+" / "+formatTokens(m.usageSnap.TokensLimit)) +
		" " + usageBadge(m.usageSnap.Percent) +
		"   " + createSparkline(m.usageHist) + "\n"
	content += labelStyle.Render("  ") + m.usageBar.ViewAs(percent) +
		" " + dimStyle.Render(fmt.Sprintf("%.0f%%", m.usageSnap.Percent)) + "\n"
	return content
}

func (m Model) renderFooter() string {
	approveKey := ""
	if m.state.Checkpoint != nil && m.state.Checkpoint.RequiresApproval {
		approveKey = footerKeyStyle.Render("[ctrl+a]") + footerStyle.Render(" approve  ")
	}
	return "\n" + footerKeyStyle.Render("[ctrl+s]") + footerStyle.Render(" submit  ") +
		approveKey +
		footerKeyStyle.Render("[ctrl+c]") + footerStyle.Render(" quit")
}

// appendToHistory appends a value to history, maintaining max size.
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data.
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}

	return sparklineStyle.Render(spark.View())
}
