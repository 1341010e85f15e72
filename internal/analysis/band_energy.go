// SPDX-License-Identifier: MIT
package analysis

import "math"

// FrequencyBand defines the name and frequency range for an energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the audible range the way a mixing desk would.
var DefaultBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// Buckets reduces a spectrum to n bars, each holding the maximum of its
// slice of bins. When the spectrum has fewer bins than n, one bar per bin is
// returned. An empty spectrum yields no bars.
func Buckets(spectrum []float64, n int) []float64 {
	if len(spectrum) == 0 || n <= 0 {
		return nil
	}
	bars := min(n, len(spectrum))
	size := max(len(spectrum)/bars, 1)

	out := make([]float64, bars)
	for i := range out {
		start := i * size
		end := min(start+size, len(spectrum))
		var peak float64
		for _, v := range spectrum[start:end] {
			if v > peak {
				peak = v
			}
		}
		out[i] = peak
	}
	return out
}

// BandEnergies averages the squared magnitudes falling in each band and
// returns the root of that mean, keyed by band name. binHz is the frequency
// width of one bin (sampleRate / windowLength).
func BandEnergies(spectrum []float64, binHz float64, bands []FrequencyBand) map[string]float64 {
	energies := make(map[string]float64, len(bands))
	counts := make(map[string]int, len(bands))

	for i, mag := range spectrum {
		freq := float64(i) * binHz
		for _, band := range bands {
			if freq >= band.LowHz && freq < band.HighHz {
				energies[band.Name] += mag * mag
				counts[band.Name]++
				break
			}
		}
	}

	for _, band := range bands {
		if counts[band.Name] > 0 {
			energies[band.Name] = math.Sqrt(energies[band.Name] / float64(counts[band.Name]))
		} else {
			energies[band.Name] = 0
		}
	}
	return energies
}
