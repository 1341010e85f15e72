// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"math"
	"testing"

	"soukou/pkg/signal"
)

func newTestComposer(t *testing.T, publish func(Frame)) *Composer {
	t.Helper()
	spectrum, err := NewSpectrumStage(8, testSampleRate, Rectangular)
	if err != nil {
		t.Fatalf("NewSpectrumStage: %v", err)
	}
	onset, err := NewOnsetStage(8, DefaultOnsetThreshold, DefaultOnsetSensitivity)
	if err != nil {
		t.Fatalf("NewOnsetStage: %v", err)
	}
	if publish == nil {
		publish = func(Frame) {}
	}
	return NewComposer(NewAmplitudeStage(), spectrum, onset, publish)
}

func TestComposerSmoothing(t *testing.T) {
	c := newTestComposer(t, nil)
	inputs := []float64{0.4, 0.8, 0.2, 0.0, 1.0}
	want := []float64{0.4, 0.5, 0.425, 0.31875, 0.4890625}

	for i, rms := range inputs {
		f := c.compose(float64(i), rms, nil, NoOnset)
		if math.Abs(f.RMSSmoothed-want[i]) > 1e-12 {
			t.Errorf("cycle %d: smoothed = %v, want %v", i, f.RMSSmoothed, want[i])
		}
		if f.RMS != rms {
			t.Errorf("cycle %d: rms = %v, want %v", i, f.RMS, rms)
		}
	}
}

func TestComposerSeedsOnFirstCycleEvenWhenSilent(t *testing.T) {
	c := newTestComposer(t, nil)
	if f := c.compose(0, 0, nil, NoOnset); f.RMSSmoothed != 0 {
		t.Fatalf("first smoothed = %v, want 0", f.RMSSmoothed)
	}
	// A zero first value still counts as the seed.
	if f := c.compose(1, 0.8, nil, NoOnset); math.Abs(f.RMSSmoothed-0.2) > 1e-12 {
		t.Errorf("second smoothed = %v, want 0.2", f.RMSSmoothed)
	}
}

func TestComposerTransient(t *testing.T) {
	c := newTestComposer(t, nil)
	onsets := []float64{NoOnset, 1, 1, 2, 2}
	want := []bool{false, true, false, true, false}

	for i, onset := range onsets {
		if got := c.compose(float64(i), 0.1, nil, onset).Transient; got != want[i] {
			t.Errorf("cycle %d: transient = %v, want %v", i, got, want[i])
		}
	}
}

func TestComposerOnsetAtTimeZero(t *testing.T) {
	c := newTestComposer(t, nil)
	if !c.compose(0, 0, nil, 0).Transient {
		t.Error("onset at t=0 should be reported as a transient")
	}
}

func TestComposerSpectrumAndLevel(t *testing.T) {
	c := newTestComposer(t, nil)
	f := c.compose(1.5, 0, []float64{5e-7, 1, 0.5, 0}, NoOnset)

	want := []float64{0, 1, math.Pow(0.5, 0.6), 0}
	for i := range want {
		if math.Abs(f.Spectrum[i]-want[i]) > 1e-12 {
			t.Errorf("spectrum[%d] = %v, want %v", i, f.Spectrum[i], want[i])
		}
	}
	if f.DBFS != -240 {
		t.Errorf("dbfs of silence = %v, want -240", f.DBFS)
	}
	if f.TimeSec != 1.5 {
		t.Errorf("time = %v, want 1.5", f.TimeSec)
	}
}

func TestComposerHaltsOnSpectrumMismatch(t *testing.T) {
	published := 0
	c := newTestComposer(t, func(Frame) { published++ })
	if got := c.Process(&Window{Samples: make([]float64, 8)}); got != Continue {
		t.Fatalf("Process() = %v with a matching buffer, want Continue", got)
	}

	c.magnitudes = make([]float64, c.spectrum.Bins()+1)
	if got := c.Process(&Window{Samples: make([]float64, 8), Index: 1}); got != Halt {
		t.Errorf("Process() = %v with a mismatched buffer, want Halt", got)
	}
	if published != 1 {
		t.Errorf("published %d frames, want 1", published)
	}
}

func TestDBFS(t *testing.T) {
	tests := []struct {
		rms  float64
		want float64
	}{
		{1, 0},
		{0.1, -20},
		{0, -240},
		{1e-13, -240},
	}
	for _, tt := range tests {
		if got := DBFS(tt.rms); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("DBFS(%v) = %v, want %v", tt.rms, got, tt.want)
		}
	}
}

func TestCompand(t *testing.T) {
	if Compand(5e-7) != 0 {
		t.Error("values below the threshold should compand to zero")
	}
	if Compand(1) != 1 {
		t.Error("Compand(1) should be 1")
	}
	if got := Compand(0.5); math.Abs(got-math.Pow(0.5, 0.6)) > 1e-12 || got < 0.65 || got > 0.67 {
		t.Errorf("Compand(0.5) = %v", got)
	}
}

func TestCompandIsMonotonic(t *testing.T) {
	values := []float64{0, 1e-9, 5e-7, 9.999e-7, CompandThreshold, 1.0001e-6, 2e-6, 1e-5, 1e-3}
	for i := 1; i <= 1000; i++ {
		values = append(values, float64(i)/1000)
	}
	for i := 1; i < len(values); i++ {
		prev, cur := Compand(values[i-1]), Compand(values[i])
		if cur < prev {
			t.Fatalf("Compand(%g) = %g is below Compand(%g) = %g", values[i], cur, values[i-1], prev)
		}
	}

	below, at := Compand(math.Nextafter(CompandThreshold, 0)), Compand(CompandThreshold)
	if below != 0 {
		t.Errorf("Compand just below the threshold = %g, want 0", below)
	}
	if math.Abs(at-math.Pow(CompandThreshold, CompandExponent)) > 1e-12 || at < 2.4e-4 || at > 2.6e-4 {
		t.Errorf("Compand(threshold) = %g, want about 2.5e-4", at)
	}
}

func TestComposerInPipeline(t *testing.T) {
	const size = 256
	amp := NewAmplitudeStage()
	spectrum, err := NewSpectrumStage(size, testSampleRate, Hann)
	if err != nil {
		t.Fatalf("NewSpectrumStage: %v", err)
	}
	onset, err := NewOnsetStage(size, DefaultOnsetThreshold, DefaultOnsetSensitivity)
	if err != nil {
		t.Fatalf("NewOnsetStage: %v", err)
	}

	var frames []Frame
	composer := NewComposer(amp, spectrum, onset, func(f Frame) { frames = append(frames, f) })

	dec := newSliceDecoder(4, size)
	for i := range dec.windows {
		dec.windows[i].Samples = signal.Sine(size, testSampleRate, 1000, 0.5)
	}

	res, err := NewPipeline(dec, amp, spectrum, onset, composer).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(frames) != res.Dispatched || len(frames) != 4 {
		t.Fatalf("published %d frames for %d windows", len(frames), res.Dispatched)
	}
	for i, f := range frames {
		if len(f.Spectrum) != size/2 {
			t.Errorf("frame %d spectrum length = %d, want %d", i, len(f.Spectrum), size/2)
		}
		if f.TimeSec != dec.windows[i].Timestamp {
			t.Errorf("frame %d time = %v, want %v", i, f.TimeSec, dec.windows[i].Timestamp)
		}
		if math.Abs(f.RMS-amp.Volume()) > 0.01 {
			t.Errorf("frame %d rms = %v, want about %v", i, f.RMS, amp.Volume())
		}
	}
	// Frames are independent values.
	frames[0].Spectrum[0] = 42
	if frames[1].Spectrum[0] == 42 {
		t.Error("frames share spectrum storage")
	}
}
