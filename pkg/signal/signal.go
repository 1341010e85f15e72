// SPDX-License-Identifier: MIT
//
// Package signal generates deterministic test and reference signals. Nothing
// here draws on a random source unless the caller passes one, so the same
// arguments always produce the same samples.
package signal

import (
	"math"
	"math/rand"
)

// SampleCount returns the number of samples needed for durationSeconds at
// sampleRate, never less than minSamples and never less than one.
func SampleCount(durationSeconds, sampleRate float64, minSamples int) int {
	n := int(math.Round(durationSeconds * sampleRate))
	return max(n, minSamples, 1)
}

// Sine returns size samples of a sine wave at frequency Hz with the given
// peak amplitude, starting at phase zero.
func Sine(size int, sampleRate, frequency, amplitude float64) []float64 {
	buffer := make([]float64, size)
	angular := 2 * math.Pi * frequency / sampleRate
	for i := range buffer {
		buffer[i] = amplitude * math.Sin(angular*float64(i))
	}
	return buffer
}

// Silence returns size zero samples.
func Silence(size int) []float64 {
	return make([]float64, size)
}

// Noise returns size samples of uniform noise in [-amplitude, amplitude]
// drawn from rng.
func Noise(rng *rand.Rand, size int, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		buffer[i] = amplitude * (2*rng.Float64() - 1)
	}
	return buffer
}

// FindPeakBin returns the index of the largest magnitude in
// magnitudes[startBin:endBin+1], clamping the range to the slice.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	startBin = min(max(startBin, 0), len(magnitudes)-1)
	endBin = min(endBin, len(magnitudes)-1)

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
