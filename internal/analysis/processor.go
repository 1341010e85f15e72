// SPDX-License-Identifier: MIT
package analysis

import "io"

// Signal is returned by a Stage after processing a window.
type Signal bool

const (
	// Continue lets the pipeline hand the window to the next stage.
	Continue Signal = true
	// Halt terminates the whole pipeline. Later stages do not see the current
	// window and no further windows are decoded.
	Halt Signal = false
)

// Window is one fixed-length, possibly overlapping chunk of mono samples.
// The pipeline owns it for the duration of one dispatch cycle; stages must not
// retain Samples after Process returns.
type Window struct {
	Samples   []float64 // Mono samples, normalised to [-1, 1].
	Timestamp float64   // Start of the window in seconds from the start of the stream.
	Index     int       // Position of the window in the decoded sequence.
	Padding   int       // Trailing zeros added because the stream ended.
}

// Fresh returns the samples of w that the previous window, hop samples
// earlier, did not cover. The zero padding of a final window is left out.
func (w *Window) Fresh(hop int) []float64 {
	end := len(w.Samples) - max(w.Padding, 0)
	start := 0
	if w.Index > 0 && len(w.Samples) > hop {
		start = len(w.Samples) - hop
	}
	if end <= start {
		return nil
	}
	return w.Samples[start:end]
}

// Stage defines the standard interface for components that analyse windows.
// Implementations should be efficient as this is called once per window from
// within the pipeline's dispatch loop.
type Stage interface {
	// Process consumes one window and updates the stage's internal state.
	Process(w *Window) Signal
	// Finish is called exactly once when the pipeline terminates, whatever the
	// reason (end of stream, halt, or stop request).
	Finish()
}

// Decoder produces the ordered window sequence a pipeline dispatches.
// Next returns io.EOF once the stream is exhausted.
type Decoder interface {
	Next() (Window, error)
	SampleRate() float64
	WindowLength() int
	io.Closer
}

// StageFunc adapts a plain function into a Stage with a no-op Finish.
type StageFunc func(w *Window) Signal

// Process calls f(w).
func (f StageFunc) Process(w *Window) Signal { return f(w) }

// Finish is a no-op.
func (f StageFunc) Finish() {}

var _ Stage = StageFunc(nil)
