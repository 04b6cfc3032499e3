package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	glog "github.com/libanisette/anisette-go/internal/log"
)

var (
	statusTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusLineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusErrStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	statusOKStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
)

type logLineMsg string
type sessionDoneMsg struct {
	otp       string
	machineID string
	err       error
}

type statusModel struct {
	spinner spinner.Model
	lines   []string
	done    bool
	result  sessionDoneMsg
	updates <-chan tea.Msg
}

func newStatusModel(updates <-chan tea.Msg) statusModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusTitleStyle
	return statusModel{spinner: sp, updates: updates}
}

// waitForUpdate turns the next value off the updates channel into a
// tea.Cmd, the idiomatic Bubble Tea bridge between a background goroutine
// and the event loop.
func waitForUpdate(updates <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m statusModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.updates))
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case logLineMsg:
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > 8 {
			m.lines = m.lines[len(m.lines)-8:]
		}
		return m, waitForUpdate(m.updates)
	case sessionDoneMsg:
		m.done = true
		m.result = msg
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m statusModel) View() string {
	var b strings.Builder
	if !m.done {
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), statusTitleStyle.Render("requesting anisette headers"))
	} else if m.result.err != nil {
		fmt.Fprintf(&b, "%s %s\n", statusErrStyle.Render("✗"), statusErrStyle.Render(m.result.err.Error()))
	} else {
		fmt.Fprintf(&b, "%s %s\n", statusOKStyle.Render("✓"), statusOKStyle.Render("otp ready"))
		fmt.Fprintf(&b, "  otp:        %s\n", m.result.otp)
		fmt.Fprintf(&b, "  machine id: %s\n", m.result.machineID)
	}
	for _, line := range m.lines {
		b.WriteString(statusLineStyle.Render("  "+line) + "\n")
	}
	return b.String()
}

// runStatus runs the same provisioning/OTP flow as `run` but drives a small
// Bubble Tea TUI instead of printing JSON, reusing the teacher's terminal
// stack for a status view rather than a disassembly trace.
func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	glog.Init(cfg.Debug)
	logger := glog.L

	updates := make(chan tea.Msg, 64)
	program := tea.NewProgram(newStatusModel(updates))

	go func() {
		out := func(line string) {
			select {
			case updates <- logLineMsg(line):
			default:
			}
		}

		a, _, err := buildSession(context.Background(), cfg, logger, out)
		if err != nil {
			updates <- sessionDoneMsg{err: err}
			return
		}
		defer a.Close()

		otp, err := a.RequestOTP(cfg.DSID)
		if err != nil {
			updates <- sessionDoneMsg{err: err}
			return
		}
		updates <- sessionDoneMsg{otp: fmt.Sprintf("%x", otp.OTP), machineID: fmt.Sprintf("%x", otp.MachineID)}
	}()

	finalModel, err := program.Run()
	if err != nil {
		return err
	}
	if m, ok := finalModel.(statusModel); ok && m.result.err != nil {
		return m.result.err
	}
	return nil
}
