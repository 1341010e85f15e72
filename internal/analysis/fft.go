// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	applog "soukou/internal/log"
	"soukou/pkg/bitint"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	Rectangular WindowFunc = iota
	BartlettHann
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

func (w WindowFunc) String() string {
	switch w {
	case Rectangular:
		return "Rectangular"
	case BartlettHann:
		return "BartlettHann"
	case Blackman:
		return "Blackman"
	case BlackmanNuttall:
		return "BlackmanNuttall"
	case Hann:
		return "Hann"
	case Hamming:
		return "Hamming"
	case Lanczos:
		return "Lanczos"
	case Nuttall:
		return "Nuttall"
	}
	return fmt.Sprintf("WindowFunc(%d)", int(w))
}

// Pre-allocated buffers for FFT calculations.
type fftWorkspace struct {
	input     []float64    // Buffer for windowed input signal.
	fftOutput []complex128 // Buffer for FFT complex results (N/2 + 1).
	magnitude []float64    // Magnitudes of the first N/2 bins.
	window    []float64    // Pre-calculated window coefficients.
}

// SpectrumStage computes the magnitude spectrum of each window. It exposes
// N/2 magnitudes for an N-sample window; the Nyquist bin is dropped so the
// length is exactly half the window length.
type SpectrumStage struct {
	fftCalculator *fourier.FFT
	fftSize       int
	sampleRate    float64
	workspace     fftWorkspace
}

var _ Stage = (*SpectrumStage)(nil)

// NewSpectrumStage creates a spectral stage for windows of fftSize samples.
func NewSpectrumStage(fftSize int, sampleRate float64, windowType WindowFunc) (*SpectrumStage, error) {
	if !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	windowCoeffs := make([]float64, fftSize)
	applyWindow(windowCoeffs, windowType)

	applog.Debugf("Analysis: Initializing SpectrumStage (Size: %d, SampleRate: %.1f Hz, Window: %v)", fftSize, sampleRate, windowType)

	return &SpectrumStage{
		fftCalculator: fourier.NewFFT(fftSize),
		fftSize:       fftSize,
		sampleRate:    sampleRate,
		workspace: fftWorkspace{
			input:     make([]float64, fftSize),
			fftOutput: make([]complex128, fftSize/2+1),
			magnitude: make([]float64, fftSize/2),
			window:    windowCoeffs,
		},
	}, nil
}

// Process applies the window, performs the FFT and stores the magnitudes.
// Windows shorter than the FFT size are zero padded.
func (p *SpectrumStage) Process(w *Window) Signal {
	inputLen := len(w.Samples)
	for i := range p.fftSize {
		if i < inputLen {
			p.workspace.input[i] = w.Samples[i] * p.workspace.window[i]
		} else {
			p.workspace.input[i] = 0
		}
	}

	p.fftCalculator.Coefficients(p.workspace.fftOutput, p.workspace.input)

	for i := range p.workspace.magnitude {
		p.workspace.magnitude[i] = cmplx.Abs(p.workspace.fftOutput[i])
	}
	return Continue
}

// Finish is a no-op.
func (p *SpectrumStage) Finish() {}

// Bins returns the number of magnitudes exposed per window.
func (p *SpectrumStage) Bins() int {
	return len(p.workspace.magnitude)
}

// MagnitudesInto copies the latest magnitudes into dest, which must have
// exactly Bins() elements. It does not allocate.
func (p *SpectrumStage) MagnitudesInto(dest []float64) error {
	if len(dest) != len(p.workspace.magnitude) {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dest), len(p.workspace.magnitude))
	}
	copy(dest, p.workspace.magnitude)
	return nil
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "rectangular", "none":
		return Rectangular, nil
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected window function.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// Window funcs scale the slice in place, so it has to start at unity.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case Rectangular:
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		applog.Warnf("Analysis: Unknown window function type %d, defaulting to Hann", windowType)
		window.Hann(coeffs)
	}
}
