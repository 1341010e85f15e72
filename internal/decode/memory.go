// SPDX-License-Identifier: MIT
package decode

import "io"

type sliceSource struct {
	samples []float64
	pos     int
}

func (s *sliceSource) read(dst []float64) (int, error) {
	n := copy(dst, s.samples[s.pos:])
	s.pos += n
	if s.pos >= len(s.samples) {
		return n, io.EOF
	}
	return n, nil
}

func (s *sliceSource) Close() error { return nil }

// NewSliceDecoder windows an in-memory mono signal. samples is read, never
// modified.
func NewSliceDecoder(samples []float64, sampleRate float64, size, overlap int) (*Decoder, error) {
	return newDecoder(&sliceSource{samples: samples}, monoFormat(sampleRate, len(samples)), size, overlap)
}
