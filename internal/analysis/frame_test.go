// SPDX-License-Identifier: MIT
package analysis

import (
	"sync"
	"testing"
)

func TestFrameEqual(t *testing.T) {
	a := Frame{Spectrum: []float64{1, 2}, RMS: 0.5, TimeSec: 1}
	b := Frame{Spectrum: []float64{1, 2}, RMS: 0.5, TimeSec: 1}
	if !a.Equal(b) {
		t.Error("identical frames compared unequal")
	}
	b.Spectrum = []float64{1, 3}
	if a.Equal(b) {
		t.Error("frames with different spectra compared equal")
	}
	b.Spectrum = []float64{1, 2}
	b.Transient = true
	if a.Equal(b) {
		t.Error("frames with different transient compared equal")
	}
}

func TestFrameCellOverwrites(t *testing.T) {
	var cell FrameCell
	if _, ok := cell.Load(); ok {
		t.Fatal("empty cell reported a frame")
	}
	cell.Store(Frame{TimeSec: 1})
	cell.Store(Frame{TimeSec: 2})

	f, ok := cell.Load()
	if !ok || f.TimeSec != 2 {
		t.Fatalf("Load() = %v, %v, want the latest frame", f, ok)
	}
	f, ok = cell.Swap()
	if !ok || f.TimeSec != 2 {
		t.Fatalf("Swap() = %v, %v, want the latest frame", f, ok)
	}
	if _, ok := cell.Swap(); ok {
		t.Error("cell not emptied by Swap")
	}
}

func TestFrameCellConcurrentAccess(t *testing.T) {
	var cell FrameCell
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 1000 {
			cell.Store(Frame{TimeSec: float64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		last := -1.0
		for range 1000 {
			if f, ok := cell.Load(); ok {
				if f.TimeSec < last {
					t.Errorf("time went backwards: %v after %v", f.TimeSec, last)
					return
				}
				last = f.TimeSec
			}
		}
	}()
	wg.Wait()
}
