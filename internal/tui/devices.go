// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"soukou/internal/audio"
)

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

var (
	upKeys     = key.NewBinding(key.WithKeys("up", "k"))
	downKeys   = key.NewBinding(key.WithKeys("down", "j"))
	selectKeys = key.NewBinding(key.WithKeys("enter"))
)

// DevicePicker lists the output devices and lets the user choose one for
// playback.
type DevicePicker struct {
	devices       []audio.Device
	selectedIndex int
	chosen        int
	viewport      viewport.Model
	ready         bool
	err           error
}

// NewDevicePicker creates a picker that falls back to the default device.
func NewDevicePicker() DevicePicker {
	return DevicePicker{chosen: audio.DefaultDevice}
}

// Init implements tea.Model.
func (m DevicePicker) Init() tea.Cmd {
	return fetchDevices
}

// fetchDevices gets the devices able to play audio.
func fetchDevices() tea.Msg {
	devices, err := audio.HostDevices()
	if err != nil {
		return errMsg{err}
	}
	outputs := devices[:0]
	for _, d := range devices {
		if d.MaxOutputChannels > 0 {
			outputs = append(outputs, d)
		}
	}
	return devicesMsg{outputs}
}

// Update implements tea.Model.
func (m DevicePicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.viewport.SetContent(m.renderDevices())

	case devicesMsg:
		m.devices = msg.devices
		m.viewport.SetContent(m.renderDevices())

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, quitKeys):
			return m, tea.Quit

		case key.Matches(msg, upKeys):
			if m.selectedIndex > 0 {
				m.selectedIndex--
				m.viewport.SetContent(m.renderDevices())
			}

		case key.Matches(msg, downKeys):
			if m.selectedIndex < len(m.devices)-1 {
				m.selectedIndex++
				m.viewport.SetContent(m.renderDevices())
			}

		case key.Matches(msg, selectKeys):
			if len(m.devices) > 0 {
				m.chosen = m.devices[m.selectedIndex].ID
				return m, tea.Quit
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m DevicePicker) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}
	title := titleStyle.Render("Output Devices")
	help := infoStyle.Render("↑/↓: Navigate • Enter: Select • q: Default device")
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// Chosen returns the selected device ID, or audio.DefaultDevice.
func (m DevicePicker) Chosen() int {
	return m.chosen
}

func (m DevicePicker) renderDevices() string {
	if len(m.devices) == 0 {
		return "No output devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		info := fmt.Sprintf("[%d] %s\n", device.ID, device.Name)
		info += fmt.Sprintf("    Output channels: %d, Default sample rate: %.0f Hz\n",
			device.MaxOutputChannels, device.DefaultSampleRate)
		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

// PickDevice runs the picker and returns the chosen output device ID.
func PickDevice() (int, error) {
	final, err := tea.NewProgram(NewDevicePicker(), tea.WithAltScreen()).Run()
	if err != nil {
		return audio.DefaultDevice, err
	}
	return final.(DevicePicker).Chosen(), nil
}
