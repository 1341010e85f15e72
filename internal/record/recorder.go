// SPDX-License-Identifier: MIT
//
// Package record writes the decoded mono stream of a pipeline run to a WAV
// file.
package record

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"soukou/internal/analysis"
	applog "soukou/internal/log"
)

// DefaultBitDepth is the sample size written when none is configured.
const DefaultBitDepth = 16

// Recorder is a pipeline stage that appends the new samples of every window
// to a WAV file. Overlapping samples are written once. The file is finalised
// when the pipeline finishes.
type Recorder struct {
	path    string
	file    *os.File
	encoder *wav.Encoder
	hop     int
	scale   float64

	sampleBuf *audio.IntBuffer
	frames    int
	failed    bool
}

var _ analysis.Stage = (*Recorder)(nil)

// NewRecorder creates path and prepares a mono WAV encoder. windowLength and
// overlap must match the decoder feeding the pipeline.
func NewRecorder(path string, sampleRate float64, bitDepth, windowLength, overlap int) (*Recorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported recording bit depth %d", bitDepth)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("recording sample rate must be positive, got %v", sampleRate)
	}
	if windowLength <= 0 || overlap < 0 || overlap >= windowLength {
		return nil, fmt.Errorf("invalid recording window %d with overlap %d", windowLength, overlap)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording %s: %w", path, err)
	}

	rate := int(math.Round(sampleRate))
	applog.Infof("Recorder: Writing %s (%d Hz, %d bit mono)", path, rate, bitDepth)

	return &Recorder{
		path:    path,
		file:    file,
		encoder: wav.NewEncoder(file, rate, bitDepth, 1, 1),
		hop:     windowLength - overlap,
		scale:   float64(int64(1)<<(bitDepth-1)) - 1,
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: 1,
				SampleRate:  rate,
			},
			Data:           make([]int, windowLength),
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// Process writes the samples of w that the previous window did not cover.
// Padding at the end of the stream is not written.
func (r *Recorder) Process(w *analysis.Window) analysis.Signal {
	if r.failed {
		return analysis.Continue
	}
	samples := w.Fresh(r.hop)
	if len(samples) == 0 {
		return analysis.Continue
	}

	data := r.sampleBuf.Data[:len(samples)]
	for i, s := range samples {
		data[i] = int(math.Round(max(-1, min(1, s)) * r.scale))
	}
	r.sampleBuf.Data = data

	if err := r.encoder.Write(r.sampleBuf); err != nil {
		applog.Errorf("Recorder: Error writing to %s: %v", r.path, err)
		r.failed = true
		return analysis.Continue
	}
	r.frames += len(samples)
	return analysis.Continue
}

// Finish finalises the WAV header and closes the file.
func (r *Recorder) Finish() {
	if err := r.Close(); err != nil {
		applog.Errorf("Recorder: %v", err)
	}
}

// Close finalises the recording. Later calls do nothing.
func (r *Recorder) Close() error {
	if r.encoder == nil {
		return nil
	}
	encErr := r.encoder.Close()
	fileErr := r.file.Close()
	r.encoder, r.file = nil, nil

	if encErr != nil {
		return fmt.Errorf("failed to finalise recording %s: %w", r.path, encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("failed to close recording %s: %w", r.path, fileErr)
	}
	applog.Infof("Recorder: Wrote %d frames to %s", r.frames, r.path)
	return nil
}

// Frames returns the number of samples written so far.
func (r *Recorder) Frames() int {
	return r.frames
}
