// SPDX-License-Identifier: MIT
package pitch

import (
	"context"
	"errors"
	"fmt"
	"math"

	"soukou/internal/analysis"
	"soukou/internal/decode"
	applog "soukou/internal/log"
	"soukou/pkg/signal"
)

var (
	// ErrInvalidConfiguration is returned by NewAnalyzer for unusable settings.
	ErrInvalidConfiguration = errors.New("invalid pitch analyzer configuration")
	// ErrInvalidArgument is returned for empty input or a non-positive tone.
	ErrInvalidArgument = errors.New("invalid pitch analysis argument")
)

// ReliableProbability is the average probability a pitch needs to be
// considered reliable.
const ReliableProbability = 0.8

// Analysis summarises the voiced windows of one run.
type Analysis struct {
	AveragePitchHz     *float64 `json:"average_pitch_hz"` // Nil when no window was voiced.
	AverageProbability float64  `json:"average_probability"`
	DetectionCount     int      `json:"detection_count"`
}

// HasReliablePitch reports whether a pitch was found with enough confidence.
func (a Analysis) HasReliablePitch() bool {
	return a.AveragePitchHz != nil && a.AverageProbability >= ReliableProbability
}

func (a Analysis) String() string {
	if a.AveragePitchHz == nil {
		return fmt.Sprintf("no pitch (%d voiced windows)", a.DetectionCount)
	}
	return fmt.Sprintf("%.2f Hz (probability %.3f, %d voiced windows, reliable: %t)",
		*a.AveragePitchHz, a.AverageProbability, a.DetectionCount, a.HasReliablePitch())
}

// Config holds the analyzer settings.
type Config struct {
	SampleRate   float64
	WindowLength int
	Overlap      int
	Algorithm    Algorithm
}

// DefaultConfig returns the settings used for reference analysis.
func DefaultConfig() Config {
	return Config{
		SampleRate:   44100,
		WindowLength: 1024,
		Overlap:      0,
		Algorithm:    YIN,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !(c.SampleRate > 0) || math.IsInf(c.SampleRate, 0) {
		return fmt.Errorf("%w: sample rate must be positive, got %v", ErrInvalidConfiguration, c.SampleRate)
	}
	if c.WindowLength <= 0 {
		return fmt.Errorf("%w: window length must be positive, got %d", ErrInvalidConfiguration, c.WindowLength)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfiguration, c.Overlap)
	}
	if c.Overlap >= c.WindowLength {
		return fmt.Errorf("%w: overlap %d must be smaller than window length %d", ErrInvalidConfiguration, c.Overlap, c.WindowLength)
	}
	if c.Algorithm != YIN && c.Algorithm != McLeod {
		return fmt.Errorf("%w: unknown pitch algorithm %v", ErrInvalidConfiguration, c.Algorithm)
	}
	return nil
}

// Analyzer estimates the average pitch of in-memory signals. Each call builds
// its own decoder and pipeline and runs it to completion on the calling
// goroutine.
type Analyzer struct {
	config Config
}

// NewAnalyzer validates config and returns an analyzer.
func NewAnalyzer(config Config) (*Analyzer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{config: config}, nil
}

// Config returns the analyzer settings.
func (a *Analyzer) Config() Config {
	return a.config
}

// AnalyzePitch runs the detector over samples and averages the voiced
// windows.
func (a *Analyzer) AnalyzePitch(samples []float64) (Analysis, error) {
	if len(samples) == 0 {
		return Analysis{}, fmt.Errorf("%w: audio sample slice must not be empty", ErrInvalidArgument)
	}

	dec, err := decode.NewSliceDecoder(samples, a.config.SampleRate, a.config.WindowLength, a.config.Overlap)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	detector, err := NewDetector(a.config.Algorithm, a.config.SampleRate, a.config.WindowLength)
	if err != nil {
		return Analysis{}, err
	}

	var pitchSum, probabilitySum float64
	var count int
	stage := NewStage(detector, func(r Result, _ *analysis.Window) {
		if r.Voiced() {
			count++
			pitchSum += r.PitchHz
			probabilitySum += r.Probability
		}
	})

	res, err := analysis.NewPipeline(dec, stage).Run(context.Background())
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to analyse pitch: %w", err)
	}
	applog.Debugf("Pitch: Analysed %d windows with %v, %d voiced", res.Dispatched, a.config.Algorithm, count)

	if count == 0 {
		return Analysis{}, nil
	}
	avg := pitchSum / float64(count)
	return Analysis{
		AveragePitchHz:     &avg,
		AverageProbability: probabilitySum / float64(count),
		DetectionCount:     count,
	}, nil
}

// AnalyzeSyntheticTone analyses a full scale sine wave of frequencyHz lasting
// durationSeconds. The tone is never shorter than one window.
func (a *Analyzer) AnalyzeSyntheticTone(frequencyHz, durationSeconds float64) (Analysis, error) {
	if !(frequencyHz > 0) || math.IsInf(frequencyHz, 0) {
		return Analysis{}, fmt.Errorf("%w: frequency must be positive, got %v", ErrInvalidArgument, frequencyHz)
	}
	if !(durationSeconds > 0) || math.IsInf(durationSeconds, 0) {
		return Analysis{}, fmt.Errorf("%w: duration must be positive, got %v", ErrInvalidArgument, durationSeconds)
	}

	n := signal.SampleCount(durationSeconds, a.config.SampleRate, a.config.WindowLength)
	return a.AnalyzePitch(signal.Sine(n, a.config.SampleRate, frequencyHz, 1))
}

// AnalyzeReferenceTone analyses one second of A4 (440 Hz) at 44.1 kHz with
// the default settings.
func AnalyzeReferenceTone() (Analysis, error) {
	analyzer, err := NewAnalyzer(DefaultConfig())
	if err != nil {
		return Analysis{}, err
	}
	return analyzer.AnalyzeSyntheticTone(440, 1)
}
