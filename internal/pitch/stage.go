// SPDX-License-Identifier: MIT
package pitch

import "soukou/internal/analysis"

// Handler receives the estimate for each window.
type Handler func(r Result, w *analysis.Window)

// Stage runs a Detector on every window and passes the estimate on.
type Stage struct {
	detector Detector
	handler  Handler
}

var _ analysis.Stage = (*Stage)(nil)

// NewStage wraps detector as a pipeline stage.
func NewStage(detector Detector, handler Handler) *Stage {
	return &Stage{detector: detector, handler: handler}
}

// Process estimates the pitch of w.
func (s *Stage) Process(w *analysis.Window) analysis.Signal {
	s.handler(s.detector.Detect(w.Samples), w)
	return analysis.Continue
}

// Finish is a no-op.
func (s *Stage) Finish() {}
