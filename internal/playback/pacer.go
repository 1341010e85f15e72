// SPDX-License-Identifier: MIT
package playback

import (
	"context"
	"time"

	"soukou/internal/analysis"
)

// Pacer holds each window back until its timestamp is due on the wall clock,
// so frames reach the listener at the speed the audio would play. Waiting is
// cut short when ctx is cancelled.
type Pacer struct {
	ctx   context.Context
	start time.Time
	timer *time.Timer
}

var _ analysis.Stage = (*Pacer)(nil)

// NewPacer creates a pacer. The clock starts with the first window.
func NewPacer(ctx context.Context) *Pacer {
	return &Pacer{ctx: ctx}
}

// Process sleeps until w is due.
func (p *Pacer) Process(w *analysis.Window) analysis.Signal {
	if p.start.IsZero() {
		p.start = time.Now().Add(-time.Duration(w.Timestamp * float64(time.Second)))
		return analysis.Continue
	}

	wait := time.Until(p.start.Add(time.Duration(w.Timestamp * float64(time.Second))))
	if wait <= 0 {
		return analysis.Continue
	}
	if p.timer == nil {
		p.timer = time.NewTimer(wait)
	} else {
		p.timer.Reset(wait)
	}
	select {
	case <-p.timer.C:
	case <-p.ctx.Done():
		p.timer.Stop()
	}
	return analysis.Continue
}

// Finish releases the timer.
func (p *Pacer) Finish() {
	if p.timer != nil {
		p.timer.Stop()
	}
}
