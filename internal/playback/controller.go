// SPDX-License-Identifier: MIT
/*
Package playback runs the streaming analysis pipeline for one audio source
and hands the resulting frames to a listener.

A Controller owns at most one run at a time. Each Start builds a fresh decoder
and pipeline (output stages, amplitude, spectrum, onset, composer) and drives
it on a worker goroutine. Frames cross to the listener through a Mailbox
drained by a delivery goroutine, so a slow listener never stalls decoding.

Stop cancels the run between windows and blocks until the worker has exited,
every stage has been finished and the listener has seen the last frame and the
completion notice. Nothing is delivered after Stop returns.
*/
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"soukou/internal/analysis"
	"soukou/internal/decode"
	applog "soukou/internal/log"
	"soukou/internal/metrics"
)

// State is the lifecycle state of a Controller.
type State int32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Opener creates the decoder for a new run.
type Opener func(windowLength, overlap int) (*decode.Decoder, error)

// FileOpener opens the WAV file at path for every run.
func FileOpener(path string) Opener {
	return func(windowLength, overlap int) (*decode.Decoder, error) {
		return decode.OpenWAV(path, windowLength, overlap)
	}
}

// SamplesOpener windows an in-memory mono signal for every run.
func SamplesOpener(samples []float64, sampleRate float64) Opener {
	return func(windowLength, overlap int) (*decode.Decoder, error) {
		return decode.NewSliceDecoder(samples, sampleRate, windowLength, overlap)
	}
}

// RunInfo describes a run to the output stage factories.
type RunInfo struct {
	ID           string
	Format       decode.Format
	WindowLength int
	Overlap      int
}

// StageFactory builds an extra stage for a run. Output stages are placed
// ahead of the analysis stages, in registration order.
type StageFactory func(info RunInfo) (analysis.Stage, error)

// Config holds the analysis settings of a controller.
type Config struct {
	WindowLength     int
	Overlap          int
	FFTWindow        analysis.WindowFunc
	OnsetThreshold   float64
	OnsetSensitivity float64
	Realtime         bool
}

// DefaultConfig returns the settings used for music playback.
func DefaultConfig() Config {
	return Config{
		WindowLength:     2048,
		Overlap:          1024,
		FFTWindow:        analysis.Hann,
		OnsetThreshold:   analysis.DefaultOnsetThreshold,
		OnsetSensitivity: analysis.DefaultOnsetSensitivity,
	}
}

// Option configures a Controller.
type Option func(*Controller) error

// WithConfig replaces the analysis settings.
func WithConfig(cfg Config) Option {
	return func(c *Controller) error {
		if err := decode.ValidateWindow(cfg.WindowLength, cfg.Overlap); err != nil {
			return err
		}
		c.config = cfg
		return nil
	}
}

// WithOutput adds a stage factory for every run, e.g. an audio player or a
// recorder.
func WithOutput(factory StageFactory) Option {
	return func(c *Controller) error {
		if factory == nil {
			return errors.New("output stage factory must not be nil")
		}
		c.outputs = append(c.outputs, factory)
		return nil
	}
}

// WithMetrics records frames and runs on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) error {
		c.metrics = m
		return nil
	}
}

// Summary describes how a reaped run ended.
type Summary struct {
	analysis.Result
	Onsets int // Onsets detected over the whole run.
}

// run is the state of one pipeline lifetime.
type run struct {
	id       string
	cancel   context.CancelFunc
	pipeline *analysis.Pipeline
	composer *analysis.Composer
	onset    *analysis.OnsetStage
	mailbox  *Mailbox

	workerDone   chan struct{}
	deliveryDone chan struct{}

	result Summary
	err    error
}

// Controller starts and stops pipeline runs over one source.
type Controller struct {
	open     Opener
	listener Listener
	config   Config
	outputs  []StageFactory
	metrics  *metrics.Metrics

	state atomic.Int32
	run   atomic.Pointer[run] // Written only with mu held.
	last  atomic.Pointer[Summary]

	mu sync.Mutex // Serialises Start and Stop.
}

// New creates an idle controller.
func New(open Opener, listener Listener, opts ...Option) (*Controller, error) {
	if open == nil {
		return nil, errors.New("opener must not be nil")
	}
	c := &Controller{
		open:     open,
		listener: listener,
		config:   DefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to configure playback controller: %w", err)
		}
	}
	return c, nil
}

// State returns the current lifecycle state. It never blocks.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Start begins a new run. It does nothing while a run is in progress; a run
// that already reached the end of its stream is reaped first.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r := c.run.Load(); r != nil {
		select {
		case <-r.workerDone:
			if err := c.reap(); err != nil {
				applog.Warnf("Playback: Previous run %s had failed: %v", r.id, err)
			}
		default:
			return nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r, err := c.newRun(ctx)
	if err != nil {
		cancel()
		return err
	}
	r.cancel = cancel
	c.run.Store(r)
	c.state.Store(int32(Running))
	c.metrics.RunStarted()

	go func() {
		defer close(r.deliveryDone)
		r.mailbox.Deliver(c.listener)
	}()

	go func() {
		defer close(r.workerDone)
		res, err := r.pipeline.Run(ctx)
		r.result = Summary{Result: res, Onsets: r.onset.Onsets()}
		r.err = err
		c.metrics.RunFinished(res)
		if err != nil {
			applog.Errorf("Playback: Run %s ended after %d windows: %v", r.id, res.Dispatched, err)
		} else {
			applog.Infof("Playback: Run %s %s after %d windows, %d onsets", r.id, res.Outcome, res.Dispatched, r.result.Onsets)
		}
		r.mailbox.Finish()
	}()

	applog.Infof("Playback: Run %s started", r.id)
	return nil
}

// newRun opens the decoder and assembles the stage list. ctx is the run's
// stop signal.
func (c *Controller) newRun(ctx context.Context) (*run, error) {
	cfg := c.config
	dec, err := c.open(cfg.WindowLength, cfg.Overlap)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio source: %w", err)
	}

	r := &run{
		id:           uuid.NewString(),
		mailbox:      NewMailbox(),
		workerDone:   make(chan struct{}),
		deliveryDone: make(chan struct{}),
	}

	var stages []analysis.Stage
	fail := func(err error) (*run, error) {
		for _, s := range stages {
			s.Finish()
		}
		dec.Close()
		return nil, err
	}

	info := RunInfo{ID: r.id, Format: dec.Format(), WindowLength: cfg.WindowLength, Overlap: cfg.Overlap}
	for _, factory := range c.outputs {
		s, err := factory(info)
		if err != nil {
			return fail(fmt.Errorf("failed to create output stage: %w", err))
		}
		stages = append(stages, s)
	}
	if cfg.Realtime {
		stages = append(stages, NewPacer(ctx))
	}

	amplitude := analysis.NewAmplitudeStage()
	spectrum, err := analysis.NewSpectrumStage(cfg.WindowLength, dec.SampleRate(), cfg.FFTWindow)
	if err != nil {
		return fail(err)
	}
	onset, err := analysis.NewOnsetStage(cfg.WindowLength, cfg.OnsetThreshold, cfg.OnsetSensitivity)
	if err != nil {
		return fail(err)
	}
	r.composer = analysis.NewComposer(amplitude, spectrum, onset, func(f analysis.Frame) {
		c.metrics.ObserveFrame(f)
		r.mailbox.Post(f)
	})

	r.onset = onset
	stages = append(stages, amplitude, spectrum, onset, r.composer)
	r.pipeline = analysis.NewPipeline(dec, stages...)
	applog.Debugf("Playback: Run %s uses %d stages over %v", r.id, len(r.pipeline.Stages()), dec.Format())
	return r, nil
}

// Stop ends the current run and waits for it to wind down. It returns the
// decode error of the run, if any. Calling Stop while idle does nothing.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run.Load() == nil {
		return nil
	}
	c.state.Store(int32(Stopping))
	return c.reap()
}

// reap cancels the current run, joins its goroutines and returns to Idle.
// c.mu must be held.
func (c *Controller) reap() error {
	r := c.run.Load()
	r.cancel()
	<-r.workerDone

	r.mailbox.Close()
	<-r.deliveryDone

	if _, err := r.pipeline.Remove(r.composer); err != nil {
		applog.Warnf("Playback: Failed to remove composer from run %s: %v", r.id, err)
	}

	res := r.result
	c.last.Store(&res)
	c.run.Store(nil)
	c.state.Store(int32(Idle))
	applog.Debugf("Playback: Run %s reaped", r.id)
	return r.err
}

// Done returns a channel closed when the current run's pipeline has ended,
// or an already closed channel when idle.
func (c *Controller) Done() <-chan struct{} {
	r := c.run.Load()
	if r == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return r.workerDone
}

// LastResult returns how the most recently reaped run ended.
func (c *Controller) LastResult() (Summary, bool) {
	res := c.last.Load()
	if res == nil {
		return Summary{}, false
	}
	return *res, true
}
