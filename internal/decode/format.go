// SPDX-License-Identifier: MIT
package decode

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedFormat is returned for containers or encodings the
	// decoder cannot turn into PCM samples.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrIO is returned when the underlying source cannot be read.
	ErrIO = errors.New("audio source i/o error")
	// ErrInvalidWindow is returned for a window length or overlap that
	// cannot produce a window sequence.
	ErrInvalidWindow = errors.New("invalid window configuration")
)

// Encoding names the sample encoding of a source.
type Encoding string

const (
	PCMSigned   Encoding = "PCM_SIGNED"
	PCMUnsigned Encoding = "PCM_UNSIGNED"
	PCMFloat    Encoding = "PCM_FLOAT"
)

// Format describes an audio source as it is stored, before mixing to mono.
type Format struct {
	Encoding       Encoding
	SampleRateHz   float64
	SampleSizeBits int
	Channels       int
	FrameRateHz    float64
	FrameSizeBytes int
	Duration       time.Duration // Zero when the source does not say.
}

func (f Format) String() string {
	return fmt.Sprintf("%s %.0f Hz, %d bit, %d channel(s), %d bytes/frame, %v",
		f.Encoding, f.SampleRateHz, f.SampleSizeBits, f.Channels, f.FrameSizeBytes, f.Duration)
}

// monoFormat is the format of an in-memory mono float stream.
func monoFormat(sampleRate float64, samples int) Format {
	var d time.Duration
	if sampleRate > 0 {
		d = time.Duration(float64(samples) / sampleRate * float64(time.Second))
	}
	return Format{
		Encoding:       PCMFloat,
		SampleRateHz:   sampleRate,
		SampleSizeBits: 64,
		Channels:       1,
		FrameRateHz:    sampleRate,
		FrameSizeBytes: 8,
		Duration:       d,
	}
}
