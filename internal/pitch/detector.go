// SPDX-License-Identifier: MIT
package pitch

import (
	"fmt"
	"strings"
)

// Algorithm selects a pitch estimator.
type Algorithm int

const (
	// YIN is the autocorrelation based estimator by de Cheveigné and Kawahara.
	YIN Algorithm = iota
	// McLeod is the McLeod Pitch Method, based on the normalised square
	// difference function.
	McLeod
)

func (a Algorithm) String() string {
	switch a {
	case YIN:
		return "yin"
	case McLeod:
		return "mpm"
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// ParseAlgorithm converts a case-insensitive name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(name) {
	case "yin", "":
		return YIN, nil
	case "mpm", "mcleod":
		return McLeod, nil
	default:
		return YIN, fmt.Errorf("%w: unknown pitch algorithm %q", ErrInvalidConfiguration, name)
	}
}

// Result is the estimate for one buffer. PitchHz is -1 when no pitch was
// found.
type Result struct {
	PitchHz     float64
	Probability float64
	Pitched     bool
}

// Voiced reports whether the result carries a usable pitch.
func (r Result) Voiced() bool {
	return r.Pitched && r.PitchHz > 0
}

var unpitched = Result{PitchHz: -1}

// Detector estimates the pitch of one buffer. Implementations keep scratch
// buffers and are not safe for concurrent use.
type Detector interface {
	Detect(buffer []float64) Result
}

// NewDetector creates a detector for buffers of bufferSize samples.
func NewDetector(algorithm Algorithm, sampleRate float64, bufferSize int) (Detector, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %v", ErrInvalidConfiguration, sampleRate)
	}
	if bufferSize <= 0 {
		return nil, fmt.Errorf("%w: buffer size must be positive, got %d", ErrInvalidConfiguration, bufferSize)
	}
	switch algorithm {
	case YIN:
		return newYIN(sampleRate, bufferSize), nil
	case McLeod:
		return newMPM(sampleRate, bufferSize), nil
	}
	return nil, fmt.Errorf("%w: unknown pitch algorithm %v", ErrInvalidConfiguration, algorithm)
}
