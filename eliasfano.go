// eliasfano.go - quasi-succinct storage for a monotonically non-decreasing
// sequence. Get(i) is one rankIndex.Select over the high bits, so it is
// logarithmic in the number of rank blocks, not constant time. Used to compress the CHD bucket engine's
// (c0 + c1*p) coefficient stream (spec.md §4.4) and, more generally, any
// monotone integer list this package needs to persist compactly.
//
// Like rankselect.go, this stands in for the black-box
// "EliasFanoMonotoneList" capability named in spec.md §6; no such
// library appears in the retrieved example pack (see DESIGN.md).
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package mph

import "math/bits"

// EliasFano encodes a non-decreasing sequence of n uint64 values bounded
// by 'universe' in (roughly) n*(2 + log2(universe/n)) bits, with random
// access through a binary search of the high-bits rank samples.
type EliasFano struct {
	n          int
	lowBits    uint
	low        *bitVector // n * lowBits bits, packed
	high       *bitVector // unary-coded high parts
	highIdx    *rankIndex
}

// NewEliasFano builds an EliasFano index over 'vals', which must be
// sorted ascending. 'universe' must be >= the largest value + 1.
func NewEliasFano(vals []uint64, universe uint64) *EliasFano {
	n := len(vals)
	ef := &EliasFano{n: n}
	if n == 0 {
		ef.low = newBitVector(0)
		ef.high = newBitVector(1)
		ef.highIdx = newRankIndex(ef.high)
		return ef
	}

	lowBits := uint(0)
	if universe > uint64(n) {
		ratio := universe / uint64(n)
		lowBits = uint(bits.Len64(ratio))
	}
	ef.lowBits = lowBits

	ef.low = newBitVector(uint64(n) * uint64(lowBits))
	highLen := uint64(n) + (universe >> lowBits) + 2
	ef.high = newBitVector(highLen)

	lowMask := (uint64(1) << lowBits) - 1
	for i, v := range vals {
		lo := v & lowMask
		hi := v >> lowBits
		ef.setLow(i, lo)
		// unary code: hi zeros then a 1, positions offset by i (strictly
		// increasing 'hi + i' sequence keeps the high array monotone).
		ef.high.Set(hi + uint64(i))
	}

	ef.highIdx = newRankIndex(ef.high)
	return ef
}

func (ef *EliasFano) setLow(i int, v uint64) {
	if ef.lowBits == 0 {
		return
	}
	base := uint64(i) * uint64(ef.lowBits)
	for b := uint(0); b < ef.lowBits; b++ {
		if v&(1<<b) != 0 {
			ef.low.Set(base + uint64(b))
		}
	}
}

func (ef *EliasFano) getLow(i int) uint64 {
	if ef.lowBits == 0 {
		return 0
	}
	base := uint64(i) * uint64(ef.lowBits)
	var v uint64
	for b := uint(0); b < ef.lowBits; b++ {
		if ef.low.IsSet(base + uint64(b)) {
			v |= 1 << b
		}
	}
	return v
}

// Get returns the i-th value of the encoded sequence.
func (ef *EliasFano) Get(i int) uint64 {
	pos, ok := ef.highIdx.Select(uint64(i))
	if !ok {
		return 0
	}
	hi := pos - uint64(i)
	return (hi << ef.lowBits) | ef.getLow(i)
}

// Len returns the number of encoded values.
func (ef *EliasFano) Len() int { return ef.n }
