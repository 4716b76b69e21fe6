package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/femstage/internal/storage"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// StepMsg carries the snapshot of a finished solution step.
type StepMsg Snapshot

// IterationMsg carries a recorded optimization iteration.
type IterationMsg storage.Iteration

// DoneMsg ends the view. Err is the outcome of the run.
type DoneMsg struct{ Err error }

// Options size the live view.
type Options struct {
	Title      string
	StartTime  float64
	EndTime    float64
	Iterations int
	PlotWidth  int
	PlotHeight int
}

// Live is the bubbletea model of a running analysis or optimization.
type Live struct {
	opts   Options
	cancel context.CancelFunc

	snap      Snapshot
	peaks     []float64
	objective []float64
	iteration storage.Iteration

	done bool
	err  error

	width  int
	height int
}

func NewLive(opts Options) *Live {
	if opts.PlotWidth <= 0 {
		opts.PlotWidth = 60
	}
	if opts.PlotHeight <= 0 {
		opts.PlotHeight = 12
	}
	return &Live{opts: opts, width: 80, height: 24}
}

// Err is the outcome reported by the DoneMsg.
func (m *Live) Err() error { return m.err }

// Done reports whether the run has ended.
func (m *Live) Done() bool { return m.done }

func (m *Live) Init() tea.Cmd { return nil }

func (m *Live) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StepMsg:
		m.snap = Snapshot(msg)
		m.peaks = append(m.peaks, msg.Peak)
	case IterationMsg:
		m.iteration = storage.Iteration(msg)
		m.objective = append(m.objective, msg.Objective)
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m *Live) progress() (float64, string) {
	if m.opts.Iterations > 0 {
		return float64(m.iteration.Number) / float64(m.opts.Iterations),
			fmt.Sprintf("itr %d/%d", m.iteration.Number, m.opts.Iterations)
	}
	span := m.opts.EndTime - m.opts.StartTime
	if span <= 0 {
		return 1, fmt.Sprintf("t=%.3g", m.snap.Time)
	}
	return (m.snap.Time - m.opts.StartTime) / span,
		fmt.Sprintf("t=%.3g/%.3g  step %d", m.snap.Time, m.opts.EndTime, m.snap.Step)
}

func (m *Live) View() string {
	var b strings.Builder

	icon, status := green.Render("●"), green.Render("running")
	switch {
	case m.done && m.err != nil:
		icon, status = red.Render("✗"), red.Render(m.err.Error())
	case m.done:
		icon, status = yellow.Render("○"), yellow.Render("finished")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s\n", icon, cyan.Render(m.opts.Title), status))

	frac, label := m.progress()
	frac = max(0, min(1, frac))
	barWidth := 36
	filled := int(frac * float64(barWidth))
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	b.WriteString(fmt.Sprintf("   %s %s\n\n", bar, dim.Render(label)))

	if len(m.snap.Segments) > 0 {
		c := newCanvas(max(m.opts.PlotWidth, 20), max(m.opts.PlotHeight, 8))
		drawMesh(c, m.snap.Segments, m.snap.Peak)
		for _, row := range c.rows() {
			b.WriteString("   " + row + "\n")
		}
		b.WriteString(fmt.Sprintf("   %s %s\n", dim.Render("peak"), white.Render(fmt.Sprintf("%.4g", m.snap.Peak))))
	}

	if series, caption := m.series(); len(series) > 1 {
		plot := asciigraph.Plot(series,
			asciigraph.Width(m.opts.PlotWidth),
			asciigraph.Height(max(m.opts.PlotHeight/2, 3)),
			asciigraph.Caption(caption))
		b.WriteString("\n" + plot + "\n")
	}

	if m.opts.Iterations > 0 && m.iteration.Number > 0 {
		b.WriteString(fmt.Sprintf("   %s %s  %s %s\n",
			dim.Render("objective"), white.Render(fmt.Sprintf("%.6g", m.iteration.Objective)),
			dim.Render("rel"), white.Render(fmt.Sprintf("%.3g%%", 100*m.iteration.RelativeChange))))
	}

	b.WriteString("\n" + dim.Render("   q quit") + "\n")
	return b.String()
}

func (m *Live) series() ([]float64, string) {
	if len(m.objective) > 0 {
		return m.objective, "objective"
	}
	return m.peaks, "peak"
}
