// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	applog "soukou/internal/log"
)

// Outcome reports why a pipeline run ended.
type Outcome int

const (
	// Exhausted means the decoder reached end of stream.
	Exhausted Outcome = iota
	// Halted means a stage returned Halt.
	Halted
	// Stopped means the run's context was cancelled between windows.
	Stopped
)

func (o Outcome) String() string {
	switch o {
	case Exhausted:
		return "exhausted"
	case Halted:
		return "halted"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Result summarises a finished Run.
type Result struct {
	Outcome    Outcome
	Dispatched int // Windows handed to Dispatch, including a halted one.
}

// Pipeline owns a decoder and an ordered list of stages. Every window from the
// decoder is handed to each stage in registration order. A Pipeline is single
// use: once finished it cannot be run again.
type Pipeline struct {
	decoder Decoder
	stages  []Stage

	mu         sync.Mutex // Guards stages against Add/Remove while not running.
	running    bool
	finishOnce sync.Once
}

// ErrPipelineRunning is returned when the stage list is modified mid-run.
var ErrPipelineRunning = errors.New("pipeline is running")

// NewPipeline creates a pipeline over decoder with the given stages, in order.
func NewPipeline(decoder Decoder, stages ...Stage) *Pipeline {
	p := &Pipeline{
		decoder: decoder,
		stages:  make([]Stage, 0, len(stages)),
	}
	p.stages = append(p.stages, stages...)
	return p
}

// Add registers stage after the existing ones.
func (p *Pipeline) Add(stage Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrPipelineRunning
	}
	p.stages = append(p.stages, stage)
	return nil
}

// Remove deregisters every occurrence of stage. It reports whether anything
// was removed.
func (p *Pipeline) Remove(stage Stage) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false, ErrPipelineRunning
	}
	kept := p.stages[:0]
	removed := false
	for _, s := range p.stages {
		if s == stage {
			removed = true
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(p.stages); i++ {
		p.stages[i] = nil
	}
	p.stages = kept
	return removed, nil
}

// Stages returns a copy of the registered stages.
func (p *Pipeline) Stages() []Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Dispatch calls Process on each stage in order and returns Halt as soon as
// one stage does.
func (p *Pipeline) Dispatch(w *Window) Signal {
	for _, s := range p.stages {
		if s.Process(w) == Halt {
			return Halt
		}
	}
	return Continue
}

// Finish notifies every stage, in order. Only the first call has an effect.
func (p *Pipeline) Finish() {
	p.finishOnce.Do(func() {
		for _, s := range p.stages {
			s.Finish()
		}
	})
}

// Run drives the decoder to completion. The context is checked between
// windows only; a stage is never interrupted while processing. Finish is
// called and the decoder closed before Run returns, whatever the outcome.
// A decoder error other than io.EOF is returned alongside the windows already
// dispatched.
func (p *Pipeline) Run(ctx context.Context) (res Result, err error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return res, ErrPipelineRunning
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.Finish()
		if cerr := p.decoder.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close decoder: %w", cerr)
		}
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			res.Outcome = Stopped
			return res, nil
		}

		w, nextErr := p.decoder.Next()
		if errors.Is(nextErr, io.EOF) {
			res.Outcome = Exhausted
			return res, nil
		}
		if nextErr != nil {
			res.Outcome = Halted
			return res, fmt.Errorf("failed to decode window %d: %w", res.Dispatched, nextErr)
		}

		res.Dispatched++
		if p.Dispatch(&w) == Halt {
			applog.Debugf("Pipeline: Halted by stage at window %d (t=%.3fs)", w.Index, w.Timestamp)
			res.Outcome = Halted
			return res, nil
		}
	}
}
