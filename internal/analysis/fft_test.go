// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"

	"soukou/pkg/signal"
)

const (
	testFFTSize    = 1024
	testSampleRate = 44100
)

// harmonicWave is a 440 Hz tone with its second and third harmonics.
func harmonicWave(size int) []float64 {
	out := signal.Sine(size, testSampleRate, 440, 0.45)
	for i, v := range signal.Sine(size, testSampleRate, 880, 0.27) {
		out[i] += v
	}
	for i, v := range signal.Sine(size, testSampleRate, 1320, 0.18) {
		out[i] += v
	}
	return out
}

func TestSpectrumHotPath(t *testing.T) {
	stage, err := NewSpectrumStage(testFFTSize, testSampleRate, Hann)
	if err != nil {
		t.Fatalf("NewSpectrumStage: %v", err)
	}
	w := &Window{Samples: harmonicWave(testFFTSize)}
	dest := make([]float64, stage.Bins())

	// Warm-up call so lazily sized state does not count.
	stage.Process(w)
	allocs := testing.AllocsPerRun(100, func() {
		stage.Process(w)
		_ = stage.MagnitudesInto(dest)
	})

	if allocs > 0 {
		t.Errorf("Expected zero allocations in spectrum hot path, got %.1f", allocs)
	}
}

func TestSpectrumBinsAreHalfWindow(t *testing.T) {
	for _, size := range []int{64, 512, 2048} {
		stage, err := NewSpectrumStage(size, testSampleRate, Rectangular)
		if err != nil {
			t.Fatalf("NewSpectrumStage(%d): %v", size, err)
		}
		if stage.Bins() != size/2 {
			t.Errorf("Bins() = %d for size %d, want %d", stage.Bins(), size, size/2)
		}
	}
}

func TestSpectrumPeakBin(t *testing.T) {
	const bin = 32
	freq := float64(bin) * testSampleRate / testFFTSize

	for _, wf := range []WindowFunc{Rectangular, Hann, Blackman, Hamming} {
		t.Run(wf.String(), func(t *testing.T) {
			stage, err := NewSpectrumStage(testFFTSize, testSampleRate, wf)
			if err != nil {
				t.Fatalf("NewSpectrumStage: %v", err)
			}
			stage.Process(&Window{Samples: signal.Sine(testFFTSize, testSampleRate, freq, 0.8)})

			mags := make([]float64, stage.Bins())
			if err := stage.MagnitudesInto(mags); err != nil {
				t.Fatalf("MagnitudesInto: %v", err)
			}
			if got := signal.FindPeakBin(mags, 0, len(mags)-1); got != bin {
				t.Errorf("peak bin = %d, want %d", got, bin)
			}
		})
	}
}

func TestSpectrumShortWindowIsPadded(t *testing.T) {
	stage, err := NewSpectrumStage(testFFTSize, testSampleRate, Hann)
	if err != nil {
		t.Fatalf("NewSpectrumStage: %v", err)
	}
	stage.Process(&Window{Samples: signal.Sine(testFFTSize, testSampleRate, 1000, 1)})
	stage.Process(&Window{Samples: signal.Silence(100)})

	mags := make([]float64, stage.Bins())
	if err := stage.MagnitudesInto(mags); err != nil {
		t.Fatalf("MagnitudesInto: %v", err)
	}
	for i, m := range mags {
		if m != 0 {
			t.Fatalf("bin %d = %v after a silent short window, want 0", i, m)
		}
	}
}

func TestNewSpectrumStageValidation(t *testing.T) {
	if _, err := NewSpectrumStage(1000, testSampleRate, Hann); err == nil {
		t.Error("expected error for non power of two size")
	}
	if _, err := NewSpectrumStage(1024, 0, Hann); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestMagnitudesIntoLength(t *testing.T) {
	stage, err := NewSpectrumStage(64, testSampleRate, Hann)
	if err != nil {
		t.Fatalf("NewSpectrumStage: %v", err)
	}
	if err := stage.MagnitudesInto(make([]float64, 33)); err == nil {
		t.Error("expected error for mismatched destination")
	}
	if err := stage.MagnitudesInto(make([]float64, 32)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"hann", Hann, false},
		{"Hanning", Hann, false},
		{"none", Rectangular, false},
		{"BlackmanNuttall", BlackmanNuttall, false},
		{"lanczos", Lanczos, false},
		{"triangle", Hann, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWindowFunc(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseWindowFunc(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func BenchmarkSpectrumProcess(b *testing.B) {
	stage, err := NewSpectrumStage(testFFTSize, testSampleRate, Hann)
	if err != nil {
		b.Fatal(err)
	}
	w := &Window{Samples: harmonicWave(testFFTSize)}

	b.ReportAllocs()

	for b.Loop() {
		stage.Process(w)
	}
}
