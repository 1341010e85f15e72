// SPDX-License-Identifier: MIT
package analysis

import "sync/atomic"

// Frame is the per-window snapshot handed to consumers. It is a value: the
// composer never touches a frame after publishing it, and consumers must
// treat Spectrum as read-only.
type Frame struct {
	Spectrum    []float64 `json:"spectrum"`     // Companded magnitudes, fixed length per pipeline.
	RMS         float64   `json:"rms"`          // Raw RMS of the window.
	RMSSmoothed float64   `json:"rms_smoothed"` // Exponential moving average of RMS.
	DBFS        float64   `json:"dbfs"`         // 20*log10(RMS), floored.
	TimeSec     float64   `json:"time_sec"`     // Window timestamp.
	Transient   bool      `json:"transient"`    // True only on the cycle a new onset appears.
}

// Equal reports whether two frames hold the same values. Spectra are compared
// element by element; slice identity does not matter.
func (f Frame) Equal(other Frame) bool {
	if f.RMS != other.RMS ||
		f.RMSSmoothed != other.RMSSmoothed ||
		f.DBFS != other.DBFS ||
		f.TimeSec != other.TimeSec ||
		f.Transient != other.Transient {
		return false
	}
	if len(f.Spectrum) != len(other.Spectrum) {
		return false
	}
	for i := range f.Spectrum {
		if f.Spectrum[i] != other.Spectrum[i] {
			return false
		}
	}
	return true
}

// FrameCell is a single-slot, overwrite-on-write holder for the latest frame.
// It is safe for one writer and any number of readers on other goroutines.
type FrameCell struct {
	latest atomic.Pointer[Frame]
}

// Store replaces the held frame.
func (c *FrameCell) Store(f Frame) {
	c.latest.Store(&f)
}

// Load returns the held frame and whether one has been stored.
func (c *FrameCell) Load() (Frame, bool) {
	p := c.latest.Load()
	if p == nil {
		return Frame{}, false
	}
	return *p, true
}

// Swap empties the cell and returns what it held.
func (c *FrameCell) Swap() (Frame, bool) {
	p := c.latest.Swap(nil)
	if p == nil {
		return Frame{}, false
	}
	return *p, true
}
