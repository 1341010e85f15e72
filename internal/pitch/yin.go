// SPDX-License-Identifier: MIT
package pitch

// DefaultYINThreshold is the dip in the normalised difference function that
// counts as a period candidate.
const DefaultYINThreshold = 0.20

type yin struct {
	sampleRate float64
	threshold  float64
	input      []float64 // Zero padded copy when a buffer is short.
	yinBuffer  []float64 // Half the buffer size.
}

func newYIN(sampleRate float64, bufferSize int) *yin {
	return &yin{
		sampleRate: sampleRate,
		threshold:  DefaultYINThreshold,
		input:      make([]float64, bufferSize),
		yinBuffer:  make([]float64, bufferSize/2),
	}
}

// Detect runs the YIN steps: difference function, cumulative mean normalised
// difference, absolute threshold and parabolic interpolation.
func (y *yin) Detect(buffer []float64) Result {
	if len(y.yinBuffer) < 3 {
		return unpitched
	}
	audio := buffer
	if len(buffer) < len(y.input) {
		n := copy(y.input, buffer)
		clear(y.input[n:])
		audio = y.input
	}

	y.difference(audio)
	y.cumulativeMeanNormalizedDifference()

	tau, probability := y.absoluteThreshold()
	if tau < 0 {
		return unpitched
	}
	return Result{
		PitchHz:     y.sampleRate / y.parabolicInterpolation(tau),
		Probability: probability,
		Pitched:     true,
	}
}

func (y *yin) difference(audio []float64) {
	b := y.yinBuffer
	clear(b)
	for tau := 1; tau < len(b); tau++ {
		var sum float64
		for i := range b {
			delta := audio[i] - audio[i+tau]
			sum += delta * delta
		}
		b[tau] = sum
	}
}

func (y *yin) cumulativeMeanNormalizedDifference() {
	b := y.yinBuffer
	b[0] = 1
	var runningSum float64
	for tau := 1; tau < len(b); tau++ {
		runningSum += b[tau]
		if runningSum == 0 {
			b[tau] = 1
			continue
		}
		b[tau] *= float64(tau) / runningSum
	}
}

// absoluteThreshold returns the first dip under the threshold, walked down to
// its local minimum, or -1.
func (y *yin) absoluteThreshold() (int, float64) {
	b := y.yinBuffer
	for tau := 2; tau < len(b); tau++ {
		if b[tau] < y.threshold {
			for tau+1 < len(b) && b[tau+1] < b[tau] {
				tau++
			}
			probability := 1 - b[tau]
			if probability > 1 {
				return -1, 0
			}
			return tau, probability
		}
	}
	return -1, 0
}

func (y *yin) parabolicInterpolation(tau int) float64 {
	b := y.yinBuffer
	x0 := tau - 1
	if tau < 1 {
		x0 = tau
	}
	x2 := tau + 1
	if x2 >= len(b) {
		x2 = tau
	}

	switch {
	case x0 == tau:
		if b[tau] <= b[x2] {
			return float64(tau)
		}
		return float64(x2)
	case x2 == tau:
		if b[tau] <= b[x0] {
			return float64(tau)
		}
		return float64(x0)
	}

	s0, s1, s2 := b[x0], b[tau], b[x2]
	denom := 2 * (2*s1 - s2 - s0)
	if denom == 0 {
		return float64(tau)
	}
	return float64(tau) + (s2-s0)/denom
}
