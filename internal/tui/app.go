package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/acorg/go3seq/internal/models"
	"github.com/acorg/go3seq/internal/recombinant"
)

type View int

const (
	ViewRunList View = iota
	ViewRunDetail
	ViewOutput
)

// History is what the browser reads and deletes runs through.
type History interface {
	ListRuns(limit int) ([]*models.Run, error)
	GetRun(id int64) (*models.Run, error)
	GetInvocationsForRun(runID int64) ([]*models.Invocation, error)
	GetRecombinantsForRun(runID int64) ([]*models.Recombinant, error)
	DeleteRun(runID int64) error
}

type App struct {
	history  History
	profiles []string

	view           View
	runs           []*models.Run
	selectedIdx    int
	selectedRun    *models.Run
	invocations    []*models.Invocation
	recombinants   []*models.Recombinant
	selectedInvIdx int
	output         viewport.Model

	width  int
	height int
	err    error
}

func NewApp(history History, profiles []string) *App {
	return &App{
		history:  history,
		profiles: profiles,
		view:     ViewRunList,
		output:   viewport.New(80, 20),
	}
}

func (a *App) Init() tea.Cmd {
	return a.loadRuns
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.output.Width = msg.Width
		a.output.Height = max(msg.Height-4, 1)
		return a, nil

	case runsLoadedMsg:
		a.runs = msg.runs
		a.err = msg.err
		return a, nil

	case runDetailMsg:
		a.selectedRun = msg.run
		a.invocations = msg.invocations
		a.recombinants = msg.recombinants
		a.err = msg.err
		if a.err == nil {
			a.view = ViewRunDetail
		}
		return a, nil

	case runDeletedMsg:
		a.err = msg.err
		// Adjust selection if needed
		if a.selectedIdx >= len(a.runs)-1 && a.selectedIdx > 0 {
			a.selectedIdx--
		}
		return a, a.loadRuns
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewRunList:
		return a.handleRunListKey(msg)
	case ViewOutput:
		return a.handleOutputKey(msg)
	case ViewRunDetail:
		return a.handleRunDetailKey(msg)
	}
	return a, nil
}

func (a *App) handleRunListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.runs)-1 {
			a.selectedIdx++
		}

	case "enter":
		if len(a.runs) > 0 && a.selectedIdx < len(a.runs) {
			return a, a.loadRunDetail(a.runs[a.selectedIdx].ID)
		}

	case "r":
		return a, a.loadRuns

	case "d":
		if len(a.runs) > 0 && a.selectedIdx < len(a.runs) {
			return a, a.deleteRun(a.runs[a.selectedIdx].ID)
		}
	}

	return a, nil
}

func (a *App) handleRunDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewRunList
		a.selectedRun = nil
		a.invocations = nil
		a.recombinants = nil
		a.selectedInvIdx = 0

	case "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedInvIdx > 0 {
			a.selectedInvIdx--
		}

	case "down", "j":
		if a.selectedInvIdx < len(a.invocations)-1 {
			a.selectedInvIdx++
		}

	case "enter", "o":
		if len(a.invocations) > 0 && a.selectedInvIdx < len(a.invocations) {
			a.output.SetContent(formatInvocationOutput(a.invocations[a.selectedInvIdx]))
			a.output.GotoTop()
			a.view = ViewOutput
		}
	}

	return a, nil
}

func (a *App) handleOutputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewRunDetail
		a.output.SetContent("")
		return a, nil

	case "ctrl+c":
		return a, tea.Quit
	}

	var cmd tea.Cmd
	a.output, cmd = a.output.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	switch a.view {
	case ViewRunList:
		return a.viewRunList()
	case ViewRunDetail:
		return a.viewRunDetail()
	case ViewOutput:
		return a.viewOutput()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func (a *App) viewRunList() string {
	s := titleStyle.Render("go3seq") + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.runs) == 0 {
		s += "No runs yet. Start one with 'go3seq run'.\n"
		if len(a.profiles) > 0 {
			s += dimStyle.Render("Profiles: "+strings.Join(a.profiles, ", ")) + "\n"
		}
	} else {
		s += "Recent Runs\n"
		s += "───────────\n"

		for i, run := range a.runs {
			line := a.formatRunLine(run)
			if i == a.selectedIdx {
				line = selectedStyle.Render("▶ " + line)
			} else if run.Status == models.RunStatusComplete {
				line = "  " + dimStyle.Render(line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[enter] view  [d] delete  [r] refresh  [q] quit")

	return s
}

func (a *App) formatRunLine(run *models.Run) string {
	status := formatStatus(run.Status)
	age := humanize.Time(run.CreatedAt)
	return fmt.Sprintf("#%-3d %s  %-14s  %3d rec  %s",
		run.ID, status, age, run.RecombinantCount, truncate(run.InputPath, 40))
}

func formatStatus(status models.RunStatus) string {
	switch status {
	case models.RunStatusRunning:
		return statusRunning.Render("● running ")
	case models.RunStatusComplete:
		return statusComplete.Render("✓ complete")
	case models.RunStatusFailed:
		return statusFailed.Render("✗ failed  ")
	default:
		return fmt.Sprintf("%-10s", status)
	}
}

func (a *App) viewRunDetail() string {
	if a.selectedRun == nil {
		return "No run selected"
	}

	run := a.selectedRun

	header := fmt.Sprintf("Run #%d", run.ID)
	s := titleStyle.Render(header) + "  " + formatStatus(run.Status) + "\n\n"

	s += labelStyle.Render("Input:     ") + run.InputPath + "\n"
	s += labelStyle.Render("Table:     ") + run.PValueTable + "\n"
	if run.Threshold != "" {
		s += labelStyle.Render("t:         ") + run.Threshold + "\n"
	}
	if run.WorkspacePath != "" {
		s += labelStyle.Render("Workspace: ") + dimStyle.Render(run.WorkspacePath) + "\n"
	}
	if run.Error != "" {
		s += labelStyle.Render("Error:     ") + statusFailed.Render(run.Error) + "\n"
	}
	s += "\n"

	s += "Invocations\n"
	s += "───────────\n"

	if len(a.invocations) == 0 {
		s += "(no invocations)\n"
	} else {
		for i, inv := range a.invocations {
			exitCode := dimStyle.Render("exit:0")
			if inv.DryRun {
				exitCode = dimStyle.Render("dry run")
			} else if inv.ExitCode != 0 {
				exitCode = statusFailed.Render(fmt.Sprintf("exit:%d", inv.ExitCode))
			}

			line := fmt.Sprintf("%d. %s  %s  %6s", inv.SequenceNum, truncate(inv.CommandLine(), 60),
				exitCode, formatDuration(inv.Duration()))
			if i == a.selectedInvIdx {
				line = selectedStyle.Render("▶ " + line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\nRecombinants\n"
	s += "────────────\n"

	if len(a.recombinants) == 0 {
		s += "(none)\n"
	} else {
		summary := recombinant.NewSummary()
		for _, rec := range a.recombinants {
			line := formatRecombinant(rec)
			if summary.Add(rec) {
				line += dimStyle.Render("  already seen")
			}
			s += "  " + line + "\n"
		}
		s += dimStyle.Render(fmt.Sprintf("  %d recombinants, %d parent pairs", summary.Count, len(summary.Pairs))) + "\n"
	}

	s += "\n" + helpStyle.Render("[↑/↓] select  [enter] output  [esc] back  [q] quit")

	return s
}

func formatRecombinant(rec *models.Recombinant) string {
	bps := make([]string, len(rec.Breakpoints))
	for i, bp := range rec.Breakpoints {
		bps[i] = bp.String()
	}
	return fmt.Sprintf("%s ← %s + %s  p=%s  %s", rec.RecombinantID, rec.PID, rec.QID,
		humanize.FormatFloat("#.####", rec.DSP), strings.Join(bps, ", "))
}

func formatInvocationOutput(inv *models.Invocation) string {
	var b strings.Builder
	b.WriteString("$ " + inv.CommandLine() + "\n")
	if inv.Dir != "" {
		b.WriteString("(in " + inv.Dir + ")\n")
	}
	b.WriteString("\n")
	if inv.Stdout != "" {
		b.WriteString(inv.Stdout)
		if !strings.HasSuffix(inv.Stdout, "\n") {
			b.WriteString("\n")
		}
	}
	if inv.Stderr != "" {
		b.WriteString("\n--- stderr ---\n")
		b.WriteString(inv.Stderr)
	}
	if inv.Stdout == "" && inv.Stderr == "" {
		b.WriteString("(no output)\n")
	}
	return b.String()
}

func (a *App) viewOutput() string {
	s := titleStyle.Render("Output") + "\n\n"
	s += a.output.View() + "\n"
	s += helpStyle.Render(fmt.Sprintf("[↑/↓] scroll  %3.f%%  [esc] back", a.output.ScrollPercent()*100))
	return s
}

// Messages

type runsLoadedMsg struct {
	runs []*models.Run
	err  error
}

type runDetailMsg struct {
	run          *models.Run
	invocations  []*models.Invocation
	recombinants []*models.Recombinant
	err          error
}

type runDeletedMsg struct {
	runID int64
	err   error
}

// Commands

func (a *App) loadRuns() tea.Msg {
	runs, err := a.history.ListRuns(50)
	return runsLoadedMsg{runs: runs, err: err}
}

func (a *App) loadRunDetail(id int64) tea.Cmd {
	return func() tea.Msg {
		run, err := a.history.GetRun(id)
		if err != nil {
			return runDetailMsg{err: err}
		}

		invs, err := a.history.GetInvocationsForRun(id)
		if err != nil {
			return runDetailMsg{err: err}
		}

		recs, err := a.history.GetRecombinantsForRun(id)
		return runDetailMsg{run: run, invocations: invs, recombinants: recs, err: err}
	}
}

func (a *App) deleteRun(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.history.DeleteRun(id); err != nil {
			return runDeletedMsg{err: err}
		}
		return runDeletedMsg{runID: id}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
