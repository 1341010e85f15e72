// SPDX-License-Identifier: MIT
package playback

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"soukou/internal/analysis"
	"soukou/internal/decode"
	"soukou/internal/metrics"
	"soukou/pkg/signal"
)

const (
	testRate    = 8000
	testWindow  = 256
	testOverlap = 128
	testHop     = testWindow - testOverlap
	waitTimeout = 5 * time.Second
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// collector records what a listener was handed.
type collector struct {
	mu       sync.Mutex
	frames   []analysis.Frame
	finished int
	first    chan struct{}
	done     chan struct{}
}

func newCollector() *collector {
	return &collector{first: make(chan struct{}), done: make(chan struct{}, 8)}
}

func (c *collector) listener() Listener {
	return Listener{
		OnFrame: func(f analysis.Frame) {
			c.mu.Lock()
			c.frames = append(c.frames, f)
			if len(c.frames) == 1 {
				close(c.first)
			}
			c.mu.Unlock()
		},
		OnFinished: func() {
			c.mu.Lock()
			c.finished++
			c.mu.Unlock()
			c.done <- struct{}{}
		},
	}
}

func (c *collector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames), c.finished
}

func (c *collector) snapshot() []analysis.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]analysis.Frame(nil), c.frames...)
}

func testConfig(realtime bool) Config {
	cfg := DefaultConfig()
	cfg.WindowLength = testWindow
	cfg.Overlap = testOverlap
	cfg.Realtime = realtime
	return cfg
}

func tone(seconds float64) []float64 {
	return signal.Sine(int(seconds*testRate), testRate, 440, 0.5)
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestRunToCompletion(t *testing.T) {
	samples := tone(0.5)
	col := newCollector()
	c, err := New(SamplesOpener(samples, testRate), col.listener(), WithConfig(testConfig(false)))
	require.NoError(t, err)
	assert.Equal(t, Idle, c.State())

	require.NoError(t, c.Start())
	waitFor(t, col.done, "completion")
	waitFor(t, c.Done(), "worker exit")

	// A run that ended on its own stays Running until it is reaped.
	assert.Equal(t, Running, c.State())
	require.NoError(t, c.Stop())
	assert.Equal(t, Idle, c.State())

	frames := col.snapshot()
	require.NotEmpty(t, frames)
	windows := decode.WindowCount(len(samples), testWindow, testOverlap)
	assert.LessOrEqual(t, len(frames), windows)

	last := frames[len(frames)-1]
	assert.InDelta(t, float64((windows-1)*testHop)/testRate, last.TimeSec, 1e-9)
	for i := 1; i < len(frames); i++ {
		assert.Greater(t, frames[i].TimeSec, frames[i-1].TimeSec)
	}
	for _, f := range frames {
		assert.Len(t, f.Spectrum, testWindow/2)
	}

	_, finished := col.counts()
	assert.Equal(t, 1, finished)

	res, ok := c.LastResult()
	require.True(t, ok)
	assert.Equal(t, analysis.Exhausted, res.Outcome)
	assert.Equal(t, windows, res.Dispatched)
}

func TestStopIsSilentAndIdempotent(t *testing.T) {
	col := newCollector()
	c, err := New(SamplesOpener(tone(30), testRate), col.listener(), WithConfig(testConfig(true)))
	require.NoError(t, err)

	require.NoError(t, c.Start())
	waitFor(t, col.first, "first frame")

	require.NoError(t, c.Stop())
	assert.Equal(t, Idle, c.State())
	frames, finished := col.counts()
	assert.Equal(t, 1, finished, "completion is delivered before Stop returns")

	require.NoError(t, c.Stop())
	time.Sleep(100 * time.Millisecond)

	afterFrames, afterFinished := col.counts()
	assert.Equal(t, frames, afterFrames)
	assert.Equal(t, finished, afterFinished)

	res, ok := c.LastResult()
	require.True(t, ok)
	assert.Equal(t, analysis.Stopped, res.Outcome)
}

func TestStopWhileIdle(t *testing.T) {
	c, err := New(SamplesOpener(tone(0.1), testRate), Listener{})
	require.NoError(t, err)
	assert.NoError(t, c.Stop())
	assert.Equal(t, Idle, c.State())
	waitFor(t, c.Done(), "idle done channel")
}

func TestStartWhileRunningIsNoop(t *testing.T) {
	col := newCollector()
	opened := 0
	open := func(size, overlap int) (*decode.Decoder, error) {
		opened++
		return decode.NewSliceDecoder(tone(30), testRate, size, overlap)
	}
	c, err := New(open, col.listener(), WithConfig(testConfig(true)))
	require.NoError(t, err)

	require.NoError(t, c.Start())
	require.NoError(t, c.Start())
	assert.Equal(t, 1, opened)
	require.NoError(t, c.Stop())

	_, finished := col.counts()
	assert.Equal(t, 1, finished)
}

// runRecorder notes the first window every run hands to its output stage.
type runRecorder struct {
	mu    sync.Mutex
	ids   []string
	first []float64
}

func (r *runRecorder) factory(info RunInfo) (analysis.Stage, error) {
	seen := false
	return analysis.StageFunc(func(w *analysis.Window) analysis.Signal {
		if !seen {
			seen = true
			r.mu.Lock()
			r.ids = append(r.ids, info.ID)
			r.first = append(r.first, w.Timestamp)
			r.mu.Unlock()
		}
		return analysis.Continue
	}), nil
}

func TestRestartUsesFreshPipeline(t *testing.T) {
	col := newCollector()
	runs := &runRecorder{}
	c, err := New(SamplesOpener(tone(30), testRate), col.listener(),
		WithConfig(testConfig(true)), WithOutput(runs.factory))
	require.NoError(t, err)

	require.NoError(t, c.Start())
	waitFor(t, col.first, "first frame")
	require.NoError(t, c.Stop())
	firstRun, _ := col.counts()

	require.NoError(t, c.Start())
	deadline := time.Now().Add(waitTimeout)
	for {
		if n, _ := col.counts(); n > firstRun {
			break
		}
		require.True(t, time.Now().Before(deadline), "no frame from the second run")
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, c.Stop())

	runs.mu.Lock()
	defer runs.mu.Unlock()
	require.Len(t, runs.ids, 2)
	assert.NotEqual(t, runs.ids[0], runs.ids[1])
	assert.Equal(t, []float64{0, 0}, runs.first, "every run starts from the beginning")

	// Smoothing is seeded afresh when the first window of a run is delivered.
	if f := col.snapshot()[firstRun]; f.TimeSec == 0 {
		assert.Equal(t, f.RMS, f.RMSSmoothed)
	}

	_, finished := col.counts()
	assert.Equal(t, 2, finished)
}

func TestNaturalEndIsReapedByStart(t *testing.T) {
	col := newCollector()
	c, err := New(SamplesOpener(tone(0.2), testRate), col.listener(), WithConfig(testConfig(false)))
	require.NoError(t, err)

	require.NoError(t, c.Start())
	waitFor(t, col.done, "first completion")
	waitFor(t, c.Done(), "first worker exit")
	require.NoError(t, c.Start())
	waitFor(t, col.done, "second completion")
	require.NoError(t, c.Stop())

	_, finished := col.counts()
	assert.Equal(t, 2, finished)
}

func TestOutputStageHaltEndsRun(t *testing.T) {
	col := newCollector()
	halting := func(RunInfo) (analysis.Stage, error) {
		return analysis.StageFunc(func(w *analysis.Window) analysis.Signal {
			if w.Index == 2 {
				return analysis.Halt
			}
			return analysis.Continue
		}), nil
	}
	c, err := New(SamplesOpener(tone(1), testRate), col.listener(),
		WithConfig(testConfig(false)), WithOutput(halting))
	require.NoError(t, err)

	require.NoError(t, c.Start())
	waitFor(t, col.done, "completion")
	require.NoError(t, c.Stop())

	res, ok := c.LastResult()
	require.True(t, ok)
	assert.Equal(t, analysis.Halted, res.Outcome)
	assert.Equal(t, 3, res.Dispatched)

	frames := col.snapshot()
	require.NotEmpty(t, frames)
	assert.InDelta(t, float64(testHop)/testRate, frames[len(frames)-1].TimeSec, 1e-9)
}

type finishCounter struct {
	mu       sync.Mutex
	finished int
	info     RunInfo
}

func (f *finishCounter) factory(info RunInfo) (analysis.Stage, error) {
	f.mu.Lock()
	f.info = info
	f.mu.Unlock()
	return f, nil
}

func (f *finishCounter) Process(*analysis.Window) analysis.Signal { return analysis.Continue }

func (f *finishCounter) Finish() {
	f.mu.Lock()
	f.finished++
	f.mu.Unlock()
}

func TestOutputStagesAreFinished(t *testing.T) {
	out := &finishCounter{}
	c, err := New(SamplesOpener(tone(0.2), testRate), Listener{},
		WithConfig(testConfig(false)), WithOutput(out.factory))
	require.NoError(t, err)

	require.NoError(t, c.Start())
	waitFor(t, c.Done(), "worker exit")
	require.NoError(t, c.Stop())

	out.mu.Lock()
	defer out.mu.Unlock()
	assert.Equal(t, 1, out.finished)
	assert.NotEmpty(t, out.info.ID)
	assert.Equal(t, testWindow, out.info.WindowLength)
	assert.Equal(t, float64(testRate), out.info.Format.SampleRateHz)
}

// transientsCounted reads the transient counter from the metrics registry.
func transientsCounted(t *testing.T, m *metrics.Metrics) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "soukou_transients_total" {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatal("transient counter not registered")
	return 0
}

func TestSummaryCountsOnsets(t *testing.T) {
	// Quiet noise, then a loud burst starting on a hop boundary.
	rng := rand.New(rand.NewSource(3))
	samples := append(signal.Noise(rng, 8*testHop, 0.001), signal.Noise(rng, 8*testHop, 0.8)...)

	m := metrics.New()
	c, err := New(SamplesOpener(samples, testRate), Listener{},
		WithConfig(testConfig(false)), WithMetrics(m))
	require.NoError(t, err)

	require.NoError(t, c.Start())
	waitFor(t, c.Done(), "worker exit")
	require.NoError(t, c.Stop())

	res, ok := c.LastResult()
	require.True(t, ok)
	assert.Equal(t, analysis.Exhausted, res.Outcome)
	assert.GreaterOrEqual(t, res.Onsets, 1)
	assert.Equal(t, float64(res.Onsets), transientsCounted(t, m), "every onset flags one frame as transient")
}

func TestStartErrors(t *testing.T) {
	errOpen := errors.New("no such track")
	c, err := New(func(int, int) (*decode.Decoder, error) { return nil, errOpen }, Listener{})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Start(), errOpen)
	assert.Equal(t, Idle, c.State())

	out := &finishCounter{}
	errFactory := errors.New("device busy")
	c, err = New(SamplesOpener(tone(0.1), testRate), Listener{},
		WithConfig(testConfig(false)),
		WithOutput(out.factory),
		WithOutput(func(RunInfo) (analysis.Stage, error) { return nil, errFactory }))
	require.NoError(t, err)
	assert.ErrorIs(t, c.Start(), errFactory)
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 1, out.finished, "stages built before the failure are finished")
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Listener{})
	assert.Error(t, err)

	cfg := testConfig(false)
	cfg.Overlap = cfg.WindowLength
	_, err = New(SamplesOpener(tone(0.1), testRate), Listener{}, WithConfig(cfg))
	assert.ErrorIs(t, err, decode.ErrInvalidWindow)

	_, err = New(SamplesOpener(tone(0.1), testRate), Listener{}, WithOutput(nil))
	assert.Error(t, err)
}

func TestNonPowerOfTwoWindowFailsOnStart(t *testing.T) {
	cfg := testConfig(false)
	cfg.WindowLength = 300
	c, err := New(SamplesOpener(tone(0.1), testRate), Listener{}, WithConfig(cfg))
	require.NoError(t, err)
	assert.Error(t, c.Start())
	assert.Equal(t, Idle, c.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "State(9)", State(9).String())
}
