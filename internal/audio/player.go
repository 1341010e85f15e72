// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"

	"github.com/gordonklaus/portaudio"

	"soukou/internal/analysis"
	applog "soukou/internal/log"
)

// Player is a pipeline stage that writes every window's new samples to an
// output device. Writes block until the device has room, so a Player paces
// the pipeline at playback speed. It must come before the analysis stages.
type Player struct {
	stream *portaudio.Stream
	buffer []float32
	hop    int
}

var _ analysis.Stage = (*Player)(nil)

// NewPlayer opens a mono blocking output stream on deviceID (or
// DefaultDevice). windowLength and overlap must match the decoder.
func NewPlayer(deviceID int, sampleRate float64, windowLength, overlap int) (*Player, error) {
	if windowLength <= 0 || overlap < 0 || overlap >= windowLength {
		return nil, fmt.Errorf("invalid playback window %d with overlap %d", windowLength, overlap)
	}
	device, err := OutputDevice(deviceID)
	if err != nil {
		return nil, err
	}

	p := &Player{
		hop:    windowLength - overlap,
		buffer: make([]float32, windowLength-overlap),
	}

	params := portaudio.HighLatencyParameters(nil, device)
	params.Output.Channels = 1
	params.SampleRate = sampleRate
	params.FramesPerBuffer = len(p.buffer)

	stream, err := portaudio.OpenStream(params, &p.buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream on %s: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start output stream on %s: %w", device.Name, err)
	}
	p.stream = stream

	applog.Infof("Player: Playing on %s (%.0f Hz, %d frames per write, latency %v)",
		device.Name, sampleRate, len(p.buffer), params.Output.Latency)
	return p, nil
}

// Process plays the samples of w the previous window did not cover, leaving
// out the padding of the last window. A device
// error halts the pipeline; an underflow is only logged.
func (p *Player) Process(w *analysis.Window) analysis.Signal {
	samples := w.Fresh(p.hop)
	for len(samples) > 0 {
		// The stream writes as many frames as the buffer holds, so a short
		// final chunk is not followed by silence.
		p.buffer = toFloat32(p.buffer[:0], samples)
		samples = samples[len(p.buffer):]

		if err := p.stream.Write(); err != nil {
			if errors.Is(err, portaudio.OutputUnderflowed) {
				applog.Debugf("Player: Output underflowed at t=%.3fs", w.Timestamp)
				continue
			}
			applog.Errorf("Player: Error writing to output stream: %v", err)
			return analysis.Halt
		}
	}
	return analysis.Continue
}

// toFloat32 converts as many samples as fit in dst's capacity.
func toFloat32(dst []float32, samples []float64) []float32 {
	n := min(cap(dst), len(samples))
	dst = dst[:n]
	for i := range dst {
		dst[i] = float32(math.Max(-1, math.Min(1, samples[i])))
	}
	return dst
}

// Finish stops and closes the output stream.
func (p *Player) Finish() {
	if p.stream == nil {
		return
	}
	if err := p.stream.Stop(); err != nil {
		applog.Warnf("Player: Error stopping output stream: %v", err)
	}
	if err := p.stream.Close(); err != nil {
		applog.Warnf("Player: Error closing output stream: %v", err)
	}
	p.stream = nil
}
