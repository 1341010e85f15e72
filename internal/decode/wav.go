// SPDX-License-Identifier: MIT
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "soukou/internal/log"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag in the fmt chunk.
const wavFormatPCM = 1

// chunkFrames is how many frames are pulled from the file per read.
const chunkFrames = 4096

// wavSource reads interleaved integer PCM and mixes it down to mono.
type wavSource struct {
	file     *os.File
	decoder  *wav.Decoder
	channels int
	scale    float64
	offset   float64

	intBuf  *audio.IntBuffer
	mixed   []float64
	pending []float64
}

func (s *wavSource) read(dst []float64) (int, error) {
	if len(s.pending) == 0 {
		if err := s.refill(); err != nil {
			return 0, err
		}
	}
	n := copy(dst, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *wavSource) refill() error {
	n, err := s.decoder.PCMBuffer(s.intBuf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: failed to read PCM data: %w", ErrIO, err)
	}
	frames := n / s.channels
	if frames == 0 {
		return io.EOF
	}

	mono := s.mixed[:0]
	if cap(mono) < frames {
		mono = make([]float64, 0, frames)
	}
	for f := range frames {
		var sum float64
		for c := range s.channels {
			sum += (float64(s.intBuf.Data[f*s.channels+c]) - s.offset) / s.scale
		}
		mono = append(mono, sum/float64(s.channels))
	}
	s.mixed = mono
	s.pending = mono
	return nil
}

func (s *wavSource) Close() error {
	return s.file.Close()
}

// OpenWAV opens an audio file for windowed decoding. Only uncompressed integer
// PCM WAV files are supported; anything else yields ErrUnsupportedFormat.
func OpenWAV(path string, size, overlap int) (*Decoder, error) {
	if err := ValidateWindow(size, overlap); err != nil {
		return nil, err
	}

	file, decoder, format, err := openWAV(path)
	if err != nil {
		return nil, err
	}

	src := newWAVSource(file, decoder, format)
	d, err := newDecoder(src, format, size, overlap)
	if err != nil {
		file.Close()
		return nil, err
	}
	applog.Debugf("Decode: Opened %s (%v, window %d, overlap %d)", path, format, size, overlap)
	return d, nil
}

func newWAVSource(file *os.File, decoder *wav.Decoder, format Format) *wavSource {
	src := &wavSource{
		file:     file,
		decoder:  decoder,
		channels: format.Channels,
		scale:    float64(int64(1) << (format.SampleSizeBits - 1)),
		intBuf: &audio.IntBuffer{
			Format:         decoder.Format(),
			Data:           make([]int, chunkFrames*format.Channels),
			SourceBitDepth: format.SampleSizeBits,
		},
	}
	if format.Encoding == PCMUnsigned {
		src.offset = src.scale
	}
	return src
}

// ReadWAV decodes a whole file into mono samples in [-1, 1].
func ReadWAV(path string) ([]float64, Format, error) {
	file, decoder, format, err := openWAV(path)
	if err != nil {
		return nil, Format{}, err
	}
	src := newWAVSource(file, decoder, format)
	defer src.Close()

	samples := make([]float64, 0, int(format.Duration.Seconds()*format.SampleRateHz)+1)
	for {
		if err := src.refill(); err != nil {
			if errors.Is(err, io.EOF) {
				return samples, format, nil
			}
			return nil, Format{}, err
		}
		samples = append(samples, src.pending...)
		src.pending = nil
	}
}

// Probe reports the format of an audio file without decoding samples.
func Probe(path string) (Format, error) {
	file, _, format, err := openWAV(path)
	if err != nil {
		return Format{}, err
	}
	if err := file.Close(); err != nil {
		return Format{}, fmt.Errorf("%w: failed to close %s: %w", ErrIO, path, err)
	}
	return format, nil
}

// openWAV opens path, validates the header and leaves the decoder positioned
// at the start of the PCM data.
func openWAV(path string) (*os.File, *wav.Decoder, Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, Format{}, fmt.Errorf("%w: failed to open %s: %w", ErrIO, path, err)
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, nil, Format{}, fmt.Errorf("%w: %s is not a WAV file", ErrUnsupportedFormat, path)
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		file.Close()
		return nil, nil, Format{}, fmt.Errorf("%w: %s uses WAV encoding %d, only PCM is supported", ErrUnsupportedFormat, path, decoder.WavAudioFormat)
	}

	bits := int(decoder.BitDepth)
	channels := int(decoder.NumChans)
	switch {
	case channels < 1:
		file.Close()
		return nil, nil, Format{}, fmt.Errorf("%w: %s has no channels", ErrUnsupportedFormat, path)
	case bits != 8 && bits != 16 && bits != 24 && bits != 32:
		file.Close()
		return nil, nil, Format{}, fmt.Errorf("%w: %s has unsupported bit depth %d", ErrUnsupportedFormat, path, bits)
	}

	// Duration also moves the reader to the PCM chunk.
	duration, err := decoder.Duration()
	if err != nil {
		file.Close()
		return nil, nil, Format{}, fmt.Errorf("%w: failed to locate PCM data in %s: %w", ErrIO, path, err)
	}

	encoding := PCMSigned
	if bits == 8 {
		encoding = PCMUnsigned
	}
	rate := float64(decoder.SampleRate)
	return file, decoder, Format{
		Encoding:       encoding,
		SampleRateHz:   rate,
		SampleSizeBits: bits,
		Channels:       channels,
		FrameRateHz:    rate,
		FrameSizeBytes: channels * bits / 8,
		Duration:       duration,
	}, nil
}
