// SPDX-License-Identifier: MIT
/*
Package audio connects the pipeline to the host's sound hardware through
PortAudio: device discovery and a blocking output stage that plays each
window as it is analysed.

Initialize must be called before any other function and paired with
Terminate.
*/
package audio

import (
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"
)

// DefaultDevice selects the host's default output device.
const DefaultDevice = -1

// Device describes one PortAudio device.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// Initialize sets up the PortAudio subsystem.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// Hooks replaced in tests.
var (
	paDevicesFunc       = portaudio.Devices
	defaultOutputDevice = portaudio.DefaultOutputDevice
)

// HostDevices returns every device PortAudio reports.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}
	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		}
	}
	return devices, nil
}

// OutputDevice returns the device for deviceID, or the default output device
// for DefaultDevice. The device must be able to play at least one channel.
func OutputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == DefaultDevice {
		device, err := defaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default output device: %w", err)
		}
		return device, nil
	}

	infos, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}
	if deviceID < 0 || deviceID >= len(infos) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	if infos[deviceID].MaxOutputChannels < 1 {
		return nil, fmt.Errorf("device %d (%s) has no output channels", deviceID, infos[deviceID].Name)
	}
	return infos[deviceID], nil
}

// ListDevices writes a table of all devices to w.
func ListDevices(w io.Writer) error {
	infos, err := paDevicesFunc()
	if err != nil {
		return fmt.Errorf("failed to list audio devices: %w", err)
	}

	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")
	for i, device := range infos {
		deviceType := ""
		switch {
		case device.MaxInputChannels > 0 && device.MaxOutputChannels > 0:
			deviceType = "Input/Output"
		case device.MaxInputChannels > 0:
			deviceType = "Input"
		case device.MaxOutputChannels > 0:
			deviceType = "Output"
		}

		fmt.Fprintf(w, "[%d] %s (%s)\n", i, device.Name, deviceType)
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", device.MaxInputChannels, device.MaxOutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		fmt.Fprintf(w, "    Output latency: Low=%.2fms, High=%.2fms\n",
			device.DefaultLowOutputLatency.Seconds()*1000,
			device.DefaultHighOutputLatency.Seconds()*1000)
		fmt.Fprintln(w)
	}
	return nil
}
