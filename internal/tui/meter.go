// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"soukou/internal/analysis"
	"soukou/internal/playback"
	"soukou/pkg/signal"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	transientStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1A1A1A")).
			Background(lipgloss.Color("#F25D94")).
			Padding(0, 1).
			Bold(true)
)

var quitKeys = key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"))

// levels are the glyphs a bar cell steps through, quietest first.
var levels = []rune(" ▁▂▃▄▅▆▇█")

const (
	barRows     = 8
	flashFrames = 4
	peakDecay   = 0.995
	meterWidth  = 40
	minDBFS     = -60.0
)

// FrameMsg carries one composed frame into the meter.
type FrameMsg analysis.Frame

// FinishedMsg reports that the run has ended.
type FinishedMsg struct{}

// Meter is a live spectrum and level display for one playback run.
type Meter struct {
	title string
	bars  int
	binHz float64

	frame    analysis.Frame
	hasFrame bool
	frames   int
	peak     float64
	flash    int
	onsets   int
	finished bool
	width    int
}

// NewMeter creates a meter drawing bars columns. binHz is the width of one
// spectrum bin, used for the band readout.
func NewMeter(title string, bars int, binHz float64) Meter {
	return Meter{title: title, bars: max(bars, 1), binHz: binHz}
}

// Listener forwards a controller's frames to the program running the meter.
func Listener(p *tea.Program) playback.Listener {
	return playback.Listener{
		OnFrame:    func(f analysis.Frame) { p.Send(FrameMsg(f)) },
		OnFinished: func() { p.Send(FinishedMsg{}) },
	}
}

// Init implements tea.Model.
func (m Meter) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Meter) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}

	case FrameMsg:
		m.frame = analysis.Frame(msg)
		m.hasFrame = true
		m.frames++
		if m.flash > 0 {
			m.flash--
		}
		if m.frame.Transient {
			m.flash = flashFrames
			m.onsets++
		}
		m.peak *= peakDecay
		for _, v := range m.frame.Spectrum {
			m.peak = math.Max(m.peak, v)
		}

	case FinishedMsg:
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m Meter) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")

	if !m.hasFrame {
		sb.WriteString(infoStyle.Render("Waiting for audio..."))
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString(highlightStyle.Render(m.renderBars()))
	sb.WriteString("\n")
	sb.WriteString(m.renderLevel())
	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render(m.renderBands()))
	sb.WriteString("\n\n")

	status := fmt.Sprintf("%6.2fs  frames: %d  onsets: %d", m.frame.TimeSec, m.frames, m.onsets)
	if m.finished {
		status += "  (finished)"
	}
	sb.WriteString(infoStyle.Render(status))
	if m.flash > 0 {
		sb.WriteString("  ")
		sb.WriteString(transientStyle.Render("ONSET"))
	}
	sb.WriteString("\n\n")
	sb.WriteString(infoStyle.Render("q: Quit"))
	return sb.String()
}

// renderBars draws the spectrum as barRows lines of block glyphs, scaled to
// the slowly decaying peak.
func (m Meter) renderBars() string {
	bars := analysis.Buckets(m.frame.Spectrum, m.columns())
	steps := len(levels) - 1

	var sb strings.Builder
	for row := barRows - 1; row >= 0; row-- {
		for _, v := range bars {
			height := 0.0
			if m.peak > 0 {
				height = v / m.peak * barRows
			}
			fill := int(math.Round((height - float64(row)) * float64(steps)))
			sb.WriteRune(levels[min(max(fill, 0), steps)])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// columns is the number of bars that fit the terminal.
func (m Meter) columns() int {
	if m.width > 0 {
		return min(m.bars, m.width)
	}
	return m.bars
}

// renderLevel draws the smoothed RMS as a horizontal meter with the dBFS
// reading of the current window.
func (m Meter) renderLevel() string {
	db := analysis.DBFS(m.frame.RMSSmoothed)
	fill := int(math.Round((db - minDBFS) / -minDBFS * meterWidth))
	fill = min(max(fill, 0), meterWidth)
	return fmt.Sprintf("[%s%s] %7.1f dBFS", strings.Repeat("=", fill), strings.Repeat(" ", meterWidth-fill), m.frame.DBFS)
}

// renderBands shows the strongest bin above DC and the energy per band.
func (m Meter) renderBands() string {
	spectrum := m.frame.Spectrum
	if m.binHz <= 0 || len(spectrum) == 0 {
		return ""
	}
	peak := signal.FindPeakBin(spectrum, 1, len(spectrum)-1)
	energies := analysis.BandEnergies(spectrum, m.binHz, analysis.DefaultBands)
	parts := make([]string, 0, len(analysis.DefaultBands)+1)
	parts = append(parts, fmt.Sprintf("peak %.0f Hz", float64(peak)*m.binHz))
	for _, band := range analysis.DefaultBands {
		parts = append(parts, fmt.Sprintf("%s %.1f", band.Name, energies[band.Name]))
	}
	return strings.Join(parts, "  ")
}

// RunMeter shows the meter until the run finishes, the user quits or ctx is
// cancelled. attach is called with the program before it starts, so the
// caller can wire the program's Listener into a controller.
func RunMeter(ctx context.Context, m Meter, attach func(p *tea.Program) error) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if err := attach(p); err != nil {
		return err
	}
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
