// SPDX-License-Identifier: MIT
package record

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soukou/internal/analysis"
	"soukou/internal/decode"
	"soukou/pkg/signal"
)

func TestRecorderRoundTrip(t *testing.T) {
	const (
		rate    = 8000
		size    = 256
		overlap = 128
	)
	samples := signal.Sine(1000, rate, 440, 0.5)
	path := filepath.Join(t.TempDir(), "out.wav")

	rec, err := NewRecorder(path, rate, DefaultBitDepth, size, overlap)
	require.NoError(t, err)

	dec, err := decode.NewSliceDecoder(samples, rate, size, overlap)
	require.NoError(t, err)
	_, err = analysis.NewPipeline(dec, rec).Run(context.Background())
	require.NoError(t, err)

	// The recording is exactly as long as the source; padding is dropped.
	assert.Equal(t, len(samples), rec.Frames())
	require.NoError(t, rec.Close())

	format, err := decode.Probe(path)
	require.NoError(t, err)
	assert.Equal(t, float64(rate), format.SampleRateHz)
	assert.Equal(t, 1, format.Channels)
	assert.Equal(t, DefaultBitDepth, format.SampleSizeBits)

	back, err := decode.OpenWAV(path, len(samples), 0)
	require.NoError(t, err)
	defer back.Close()
	w, err := back.Next()
	require.NoError(t, err)
	assert.InDeltaSlice(t, samples, w.Samples, 1e-4)
}

func TestNewRecorderValidation(t *testing.T) {
	dir := t.TempDir()
	_, err := NewRecorder(filepath.Join(dir, "a.wav"), 8000, 8, 256, 0)
	assert.Error(t, err)
	_, err = NewRecorder(filepath.Join(dir, "b.wav"), 0, 16, 256, 0)
	assert.Error(t, err)
	_, err = NewRecorder(filepath.Join(dir, "c.wav"), 8000, 16, 256, 256)
	assert.Error(t, err)
	_, err = NewRecorder(filepath.Join(dir, "missing", "d.wav"), 8000, 16, 256, 0)
	assert.Error(t, err)
}
