// SPDX-License-Identifier: MIT
package playback

import (
	"sync"

	"soukou/internal/analysis"
)

// Listener receives frames and the completion notice of a run. Both callbacks
// run on the controller's delivery goroutine, never concurrently with each
// other. They must not call Start or Stop on the controller delivering them.
type Listener struct {
	OnFrame    func(analysis.Frame)
	OnFinished func()
}

// Mailbox carries frames and completion from the pipeline goroutine to the
// delivery goroutine. Frames overwrite each other: a slow listener sees the
// latest frame, not a backlog.
type Mailbox struct {
	frame analysis.FrameCell
	ready chan struct{}

	mu        sync.Mutex
	finished  bool
	delivered bool
	closed    bool
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{ready: make(chan struct{}, 1)}
}

// Post replaces the pending frame.
func (m *Mailbox) Post(f analysis.Frame) {
	m.frame.Store(f)
	m.notify()
}

// Finish marks the run as complete. Only the first call is delivered.
func (m *Mailbox) Finish() {
	m.mu.Lock()
	m.finished = true
	m.mu.Unlock()
	m.notify()
}

// Close makes Deliver return once everything posted so far was handed out.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.notify()
}

func (m *Mailbox) notify() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Deliver hands pending frames and the completion notice to l until the
// mailbox is closed. Completion is always delivered after the last frame.
func (m *Mailbox) Deliver(l Listener) {
	for range m.ready {
		m.mu.Lock()
		finish := m.finished && !m.delivered
		if finish {
			m.delivered = true
		}
		closed := m.closed
		m.mu.Unlock()

		// Flags are read first: a frame posted before Finish is already in
		// the cell and goes out ahead of the completion notice.
		if f, ok := m.frame.Swap(); ok && l.OnFrame != nil {
			l.OnFrame(f)
		}
		if finish && l.OnFinished != nil {
			l.OnFinished()
		}
		if closed {
			return
		}
	}
}
