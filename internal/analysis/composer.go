// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	applog "soukou/internal/log"
)

const (
	// SmoothingFactor weights the newest RMS in the moving average.
	SmoothingFactor = 0.25
	// SilenceFloor keeps dBFS finite on digital silence.
	SilenceFloor = 1e-12
	// CompandThreshold is the magnitude below which a bin is shown as zero.
	CompandThreshold = 1e-6
	// CompandExponent compresses magnitudes for display dynamic range.
	CompandExponent = 0.6
)

// Compand maps a raw magnitude onto the display scale.
func Compand(v float64) float64 {
	if v < CompandThreshold {
		return 0
	}
	return math.Pow(v, CompandExponent)
}

// DBFS converts an RMS level to decibels relative to full scale.
func DBFS(rms float64) float64 {
	return 20 * math.Log10(math.Max(rms, SilenceFloor))
}

// Composer is the last stage of a playback pipeline. It reads the state the
// amplitude, spectral and onset stages left for the current window and
// publishes one Frame per cycle.
type Composer struct {
	amplitude *AmplitudeStage
	spectrum  *SpectrumStage
	onset     *OnsetStage
	publish   func(Frame)

	magnitudes []float64
	seeded     bool
	smoothed   float64
	lastOnset  float64
}

var _ Stage = (*Composer)(nil)

// NewComposer creates a composer reading from the given stages. publish is
// called synchronously once per window with a freshly allocated frame.
func NewComposer(amplitude *AmplitudeStage, spectrum *SpectrumStage, onset *OnsetStage, publish func(Frame)) *Composer {
	return &Composer{
		amplitude:  amplitude,
		spectrum:   spectrum,
		onset:      onset,
		publish:    publish,
		magnitudes: make([]float64, spectrum.Bins()),
		lastOnset:  NoOnset,
	}
}

// Process composes and publishes the frame for w. It halts the pipeline if
// the spectral stage no longer matches the composer's buffer.
func (c *Composer) Process(w *Window) Signal {
	if err := c.spectrum.MagnitudesInto(c.magnitudes); err != nil {
		applog.Errorf("Composer: Failed to read spectrum at window %d: %v", w.Index, err)
		return Halt
	}
	c.publish(c.compose(w.Timestamp, c.amplitude.Volume(), c.magnitudes, c.onset.LastOnset()))
	return Continue
}

// Finish is a no-op; completion is reported by the controller.
func (c *Composer) Finish() {}

// compose holds the smoothing, companding and transient rules. It is separate
// from Process so the rules can be driven directly.
func (c *Composer) compose(timeSec, rms float64, magnitudes []float64, onset float64) Frame {
	if !c.seeded {
		c.smoothed = rms
		c.seeded = true
	} else {
		c.smoothed = SmoothingFactor*rms + (1-SmoothingFactor)*c.smoothed
	}

	spectrum := make([]float64, len(magnitudes))
	for i, v := range magnitudes {
		spectrum[i] = Compand(v)
	}

	transient := false
	if onset > c.lastOnset {
		c.lastOnset = onset
		transient = true
	}

	return Frame{
		Spectrum:    spectrum,
		RMS:         rms,
		RMSSmoothed: c.smoothed,
		DBFS:        DBFS(rms),
		TimeSec:     timeSec,
		Transient:   transient,
	}
}
