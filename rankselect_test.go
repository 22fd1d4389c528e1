// rankselect_test.go -- test suite for rankIndex
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

import (
	"math/rand"
	"testing"
)

func TestRankIndexAgainstBruteForce(t *testing.T) {
	assert := newAsserter(t)

	bv := newBitVector(2000)
	var set []uint64
	for i := uint64(0); i < bv.Size(); i++ {
		if rand.Intn(3) == 0 {
			bv.Set(i)
			set = append(set, i)
		}
	}

	r := newRankIndex(bv)

	var want uint64
	cursor := 0
	for i := uint64(0); i <= bv.Size(); i++ {
		got := r.Rank(i)
		assert(got == want, "Rank(%d): got %d, want %d", i, got, want)
		if cursor < len(set) && set[cursor] == i {
			want++
			cursor++
		}
	}
}

func TestRankIndexSelect(t *testing.T) {
	assert := newAsserter(t)

	bv := newBitVector(500)
	var set []uint64
	for i := uint64(0); i < bv.Size(); i++ {
		if rand.Intn(4) == 0 {
			bv.Set(i)
			set = append(set, i)
		}
	}

	r := newRankIndex(bv)
	for k, want := range set {
		got, ok := r.Select(uint64(k))
		assert(ok, "Select(%d) returned not-found", k)
		assert(got == want, "Select(%d): got %d, want %d", k, got, want)
	}

	_, ok := r.Select(uint64(len(set)) + 100)
	assert(!ok, "Select past the last set bit should report not-found")
}
