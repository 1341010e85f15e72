// SPDX-License-Identifier: MIT
//
// Package bitint holds the power-of-two helpers used to size FFT windows.
// None of them allocate, so they are safe on the analysis hot path.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size, or 1 for
// non-positive sizes. Powers of 2 are returned unchanged.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. Powers of 2 have
// exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
