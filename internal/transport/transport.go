// SPDX-License-Identifier: MIT
package transport

import (
	"errors"

	"soukou/internal/analysis"
)

// Transport defines a generic interface for sending frames or events to
// consumers outside the process. Implementations must be safe for concurrent
// use and must not block the caller for long.
type Transport interface {
	Send(data any) error
	Close() error
}

// DefaultBars is the number of spectrum bars carried in a FrameMessage.
const DefaultBars = 64

// FrameMessage is the JSON form of a frame. The spectrum is reduced to bars so
// clients can draw it directly.
type FrameMessage struct {
	Type        string    `json:"type"`
	TimeSec     float64   `json:"time_sec"`
	RMS         float64   `json:"rms"`
	RMSSmoothed float64   `json:"rms_smoothed"`
	DBFS        float64   `json:"dbfs"`
	Transient   bool      `json:"transient"`
	Bars        []float64 `json:"bars"`
}

// NewFrameMessage converts f, keeping at most bars spectrum bars.
func NewFrameMessage(f analysis.Frame, bars int) FrameMessage {
	return FrameMessage{
		Type:        "frame",
		TimeSec:     f.TimeSec,
		RMS:         f.RMS,
		RMSSmoothed: f.RMSSmoothed,
		DBFS:        f.DBFS,
		Transient:   f.Transient,
		Bars:        analysis.Buckets(f.Spectrum, bars),
	}
}

// EventMessage announces a change in playback state, such as "finished".
type EventMessage struct {
	Type  string `json:"type"`
	Event string `json:"event"`
}

// Fanout sends everything to several transports.
type Fanout []Transport

// Send forwards data to every transport and joins their errors.
func (f Fanout) Send(data any) error {
	var errs []error
	for _, t := range f {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport and joins their errors.
func (f Fanout) Close() error {
	var errs []error
	for _, t := range f {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Fanout(nil)
