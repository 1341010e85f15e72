// SPDX-License-Identifier: MIT
package analysis

import "math"

// AmplitudeStage tracks the RMS level of the most recent window.
type AmplitudeStage struct {
	volume float64
}

var _ Stage = (*AmplitudeStage)(nil)

// NewAmplitudeStage creates an amplitude stage with zero volume.
func NewAmplitudeStage() *AmplitudeStage {
	return &AmplitudeStage{}
}

// Process stores the RMS of w.
func (a *AmplitudeStage) Process(w *Window) Signal {
	a.volume = calculateRMS(w.Samples)
	return Continue
}

// Finish is a no-op.
func (a *AmplitudeStage) Finish() {}

// Volume returns the RMS of the last processed window.
func (a *AmplitudeStage) Volume() float64 {
	return a.volume
}

// calculateRMS calculates the Root Mean Square energy of the buffer.
func calculateRMS(buffer []float64) float64 {
	if len(buffer) == 0 {
		return 0.0
	}

	var sumSquare float64
	for _, sample := range buffer {
		sumSquare += sample * sample
	}

	return math.Sqrt(sumSquare / float64(len(buffer)))
}
