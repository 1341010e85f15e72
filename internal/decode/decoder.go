// SPDX-License-Identifier: MIT
package decode

import (
	"errors"
	"fmt"
	"io"

	"soukou/internal/analysis"
)

// source yields mono samples. read fills dst and returns io.EOF once no more
// samples will follow; it may return n > 0 together with io.EOF.
type source interface {
	read(dst []float64) (int, error)
	io.Closer
}

// Decoder turns a sample source into fixed-length windows. Consecutive
// windows start windowLength-overlap samples apart. The last window is zero
// padded when the stream does not fill it. A Decoder is not safe for
// concurrent use and is consumed by a single pipeline run.
type Decoder struct {
	src     source
	format  Format
	size    int
	overlap int

	buf    []float64
	filled int
	index  int
	srcEOF bool
	done   bool
}

var _ analysis.Decoder = (*Decoder)(nil)

func newDecoder(src source, format Format, size, overlap int) (*Decoder, error) {
	if err := ValidateWindow(size, overlap); err != nil {
		return nil, err
	}
	if format.SampleRateHz <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %v", ErrUnsupportedFormat, format.SampleRateHz)
	}
	return &Decoder{
		src:     src,
		format:  format,
		size:    size,
		overlap: overlap,
		buf:     make([]float64, size),
	}, nil
}

// ValidateWindow checks that size and overlap describe a window sequence.
func ValidateWindow(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: window length must be positive, got %d", ErrInvalidWindow, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap must be within [0, %d), got %d", ErrInvalidWindow, size, overlap)
	}
	return nil
}

// Next returns the next window, or io.EOF when the stream is exhausted. The
// returned Samples slice is reused by the following call.
func (d *Decoder) Next() (analysis.Window, error) {
	if d.done {
		return analysis.Window{}, io.EOF
	}

	if d.index == 0 {
		if err := d.fill(); err != nil {
			return analysis.Window{}, err
		}
		if d.filled == 0 {
			d.done = true
			return analysis.Window{}, io.EOF
		}
	} else {
		// The previous window already reached the end of the stream.
		if d.srcEOF {
			d.done = true
			return analysis.Window{}, io.EOF
		}
		hop := d.size - d.overlap
		before := d.filled - hop
		copy(d.buf, d.buf[hop:d.filled])
		d.filled = before
		if err := d.fill(); err != nil {
			return analysis.Window{}, err
		}
		if d.filled == before {
			d.done = true
			return analysis.Window{}, io.EOF
		}
	}

	for i := d.filled; i < d.size; i++ {
		d.buf[i] = 0
	}

	start := d.index * (d.size - d.overlap)
	w := analysis.Window{
		Samples:   d.buf,
		Timestamp: float64(start) / d.format.SampleRateHz,
		Index:     d.index,
		Padding:   d.size - d.filled,
	}
	d.index++
	return w, nil
}

// fill reads from the source until the buffer is full or the source ends.
func (d *Decoder) fill() error {
	for d.filled < d.size && !d.srcEOF {
		n, err := d.src.read(d.buf[d.filled:])
		d.filled += n
		if errors.Is(err, io.EOF) {
			d.srcEOF = true
			break
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: source returned no samples", ErrIO)
		}
	}
	return nil
}

// SampleRate returns the sample rate of the source.
func (d *Decoder) SampleRate() float64 { return d.format.SampleRateHz }

// WindowLength returns the number of samples per window.
func (d *Decoder) WindowLength() int { return d.size }

// Overlap returns the number of samples shared by consecutive windows.
func (d *Decoder) Overlap() int { return d.overlap }

// Format returns the format of the underlying source.
func (d *Decoder) Format() Format { return d.format }

// Close releases the source.
func (d *Decoder) Close() error {
	d.done = true
	return d.src.Close()
}

// WindowCount returns how many windows a stream of n samples produces.
func WindowCount(n, size, overlap int) int {
	if n <= 0 {
		return 0
	}
	if n <= size {
		return 1
	}
	hop := size - overlap
	return 1 + (n-size+hop-1)/hop
}
