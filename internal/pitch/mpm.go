// SPDX-License-Identifier: MIT
package pitch

const (
	// mpmCutoff is the share of the highest key maximum a peak needs to be
	// chosen as the period.
	mpmCutoff = 0.97
	// mpmSmallCutoff drops key maxima too weak to be a period at all.
	mpmSmallCutoff = 0.5
	// mpmLowerPitchCutoff is the lowest pitch, in Hz, that is reported.
	mpmLowerPitchCutoff = 80.0
)

type mpm struct {
	sampleRate float64
	input      []float64
	nsdf       []float64

	maxPositions    []int
	periodEstimates []float64
	ampEstimates    []float64
}

func newMPM(sampleRate float64, bufferSize int) *mpm {
	return &mpm{
		sampleRate: sampleRate,
		input:      make([]float64, bufferSize),
		nsdf:       make([]float64, bufferSize),
	}
}

// Detect picks the first key maximum of the normalised square difference
// function that comes close to the highest one.
func (m *mpm) Detect(buffer []float64) Result {
	if len(m.nsdf) < 3 {
		return unpitched
	}
	n := copy(m.input, buffer)
	clear(m.input[n:])

	m.normalizedSquareDifference()
	m.peakPicking()

	m.periodEstimates = m.periodEstimates[:0]
	m.ampEstimates = m.ampEstimates[:0]
	highest := 0.0
	for _, tau := range m.maxPositions {
		highest = max(highest, m.nsdf[tau])
		if m.nsdf[tau] > mpmSmallCutoff {
			x, y := m.parabolicInterpolation(tau)
			m.periodEstimates = append(m.periodEstimates, x)
			m.ampEstimates = append(m.ampEstimates, y)
			highest = max(highest, y)
		}
	}
	if len(m.periodEstimates) == 0 {
		return Result{PitchHz: -1, Probability: highest}
	}

	cutoff := mpmCutoff * highest
	period := m.periodEstimates[0]
	for i, amp := range m.ampEstimates {
		if amp >= cutoff {
			period = m.periodEstimates[i]
			break
		}
	}

	pitchHz := m.sampleRate / period
	if pitchHz <= mpmLowerPitchCutoff {
		return Result{PitchHz: -1, Probability: highest}
	}
	return Result{PitchHz: pitchHz, Probability: highest, Pitched: true}
}

func (m *mpm) normalizedSquareDifference() {
	audio := m.input
	for tau := range m.nsdf {
		var acf, divisor float64
		for i := 0; i < len(audio)-tau; i++ {
			acf += audio[i] * audio[i+tau]
			divisor += audio[i]*audio[i] + audio[i+tau]*audio[i+tau]
		}
		if divisor == 0 {
			m.nsdf[tau] = 0
			continue
		}
		m.nsdf[tau] = 2 * acf / divisor
	}
}

// peakPicking records the highest maximum between each positively sloped
// zero crossing and the following negatively sloped one.
func (m *mpm) peakPicking() {
	nsdf := m.nsdf
	m.maxPositions = m.maxPositions[:0]
	pos, curMaxPos := 0, 0

	for pos < (len(nsdf)-1)/3 && nsdf[pos] > 0 {
		pos++
	}
	for pos < len(nsdf)-1 && nsdf[pos] <= 0 {
		pos++
	}
	if pos == 0 {
		pos = 1
	}

	for pos < len(nsdf)-1 {
		if nsdf[pos] > nsdf[pos-1] && nsdf[pos] >= nsdf[pos+1] {
			if curMaxPos == 0 || nsdf[pos] > nsdf[curMaxPos] {
				curMaxPos = pos
			}
		}
		pos++
		if pos < len(nsdf)-1 && nsdf[pos] <= 0 {
			if curMaxPos > 0 {
				m.maxPositions = append(m.maxPositions, curMaxPos)
				curMaxPos = 0
			}
			for pos < len(nsdf)-1 && nsdf[pos] <= 0 {
				pos++
			}
		}
	}
	if curMaxPos > 0 {
		m.maxPositions = append(m.maxPositions, curMaxPos)
	}
}

func (m *mpm) parabolicInterpolation(tau int) (float64, float64) {
	nsdf := m.nsdf
	bottom := nsdf[tau+1] + nsdf[tau-1] - 2*nsdf[tau]
	if bottom == 0 {
		return float64(tau), nsdf[tau]
	}
	delta := nsdf[tau-1] - nsdf[tau+1]
	return float64(tau) + delta/(2*bottom), nsdf[tau] - delta*delta/(8*bottom)
}
