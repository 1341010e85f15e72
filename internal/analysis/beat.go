// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	applog "soukou/internal/log"
)

// NoOnset is the onset timestamp before any onset has been detected. It
// compares below every real timestamp.
var NoOnset = math.Inf(-1)

const (
	// DefaultOnsetThreshold is the per-bin rise, in dB, that counts as a rise.
	DefaultOnsetThreshold = 8.0
	// DefaultOnsetSensitivity is the percentage sensitivity of the detector.
	// 20 means a peak needs rising energy in more than 80% of bins.
	DefaultOnsetSensitivity = 20.0
)

// OnsetStage detects percussive onsets. For every window it counts the
// spectral bins whose magnitude rose by more than the threshold since the
// previous window, and reports an onset when that count peaks above a
// sensitivity dependent share of all bins.
type OnsetStage struct {
	fftCalculator *fourier.FFT
	fftSize       int
	threshold     float64
	minBins       int

	input   []float64
	coeffs  []complex128
	current []float64
	prior   []float64

	dfMinus1, dfMinus2 int
	lastOnset          float64
	onsets             int
}

var _ Stage = (*OnsetStage)(nil)

// NewOnsetStage creates an onset stage for windows of fftSize samples.
// threshold is in dB; sensitivity is a percentage in [0, 100].
func NewOnsetStage(fftSize int, threshold, sensitivity float64) (*OnsetStage, error) {
	if fftSize < 2 {
		return nil, fmt.Errorf("onset window size must be at least 2, got %d", fftSize)
	}
	if sensitivity < 0 || sensitivity > 100 {
		return nil, fmt.Errorf("onset sensitivity must be within [0, 100], got %.1f", sensitivity)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("onset threshold must be positive, got %.1f", threshold)
	}

	bins := fftSize / 2
	applog.Debugf("Analysis: Initializing OnsetStage (Size: %d, Threshold: %.1f dB, Sensitivity: %.0f%%)", fftSize, threshold, sensitivity)

	return &OnsetStage{
		fftCalculator: fourier.NewFFT(fftSize),
		fftSize:       fftSize,
		threshold:     threshold,
		minBins:       int((100 - sensitivity) * float64(bins) / 100),
		input:         make([]float64, fftSize),
		coeffs:        make([]complex128, fftSize/2+1),
		current:       make([]float64, bins),
		prior:         make([]float64, bins),
		lastOnset:     NoOnset,
	}, nil
}

// Process analyses w for an onset.
func (o *OnsetStage) Process(w *Window) Signal {
	n := copy(o.input, w.Samples)
	for i := n; i < len(o.input); i++ {
		o.input[i] = 0
	}
	o.fftCalculator.Coefficients(o.coeffs, o.input)

	binsOverThreshold := 0
	for i := range o.current {
		o.current[i] = cmplx.Abs(o.coeffs[i])
		if o.prior[i] > 0 && o.current[i] > 0 {
			diff := 10 * math.Log10(o.current[i]/o.prior[i])
			if diff >= o.threshold {
				binsOverThreshold++
			}
		}
		o.prior[i] = o.current[i]
	}

	if o.dfMinus2 < o.dfMinus1 && o.dfMinus1 >= binsOverThreshold && o.dfMinus1 > o.minBins {
		// Timestamps are non-decreasing, so lastOnset stays monotonic.
		if w.Timestamp > o.lastOnset {
			o.lastOnset = w.Timestamp
			o.onsets++
		}
	}
	o.dfMinus2 = o.dfMinus1
	o.dfMinus1 = binsOverThreshold
	return Continue
}

// Finish is a no-op.
func (o *OnsetStage) Finish() {}

// LastOnset returns the timestamp of the most recent onset, or NoOnset.
func (o *OnsetStage) LastOnset() float64 {
	return o.lastOnset
}

// Onsets returns the number of onsets detected so far.
func (o *OnsetStage) Onsets() int {
	return o.onsets
}
