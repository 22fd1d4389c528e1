// signature_test.go -- test suite for Sig2/Sig3 and the bound-mapping
// helpers.
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
	"testing"
)

func TestHashKeyDeterministic(t *testing.T) {
	assert := newAsserter(t)

	seed := rand64()
	for _, w := range keyw {
		a := hashKey([]byte(w), seed)
		b := hashKey([]byte(w), seed)
		assert(a == b, "hashKey not deterministic for %s", w)

		a3 := hashKey3([]byte(w), seed)
		b3 := hashKey3([]byte(w), seed)
		assert(a3 == b3, "hashKey3 not deterministic for %s", w)
	}
}

func TestHashKeyDistinctSeeds(t *testing.T) {
	assert := newAsserter(t)

	a := hashKey([]byte(keyw[0]), 1)
	b := hashKey([]byte(keyw[0]), 2)
	assert(a != b, "hashKey should differ across seeds")
}

// spread must never return a value outside [0, bound).
func TestSpreadInBounds(t *testing.T) {
	assert := newAsserter(t)

	bounds := []uint64{1, 2, 3, 7, 100, 1 << 20, 1<<40 + 17}
	for _, bound := range bounds {
		for i := uint64(0); i < 2000; i++ {
			h := mix(i*0x9E3779B97F4A7C15 + 1)
			v := spread(h, bound)
			assert(v < bound, "spread(%x, %d) = %d out of bounds", h, bound, v)
		}
	}
}

// edgeVars must return r indices, all within [0, nvars).
func TestEdgeVarsInBounds(t *testing.T) {
	assert := newAsserter(t)

	nvars := uint64(1000)
	for _, r := range []int{3, 4} {
		for i := uint64(0); i < 500; i++ {
			h := mix(i + 1)
			vars := edgeVars(h, r, nvars)
			assert(len(vars) == r, "edgeVars returned %d vars, want %d", len(vars), r)
			for _, v := range vars {
				assert(v < nvars, "edgeVars produced out-of-range index %d (nvars=%d)", v, nvars)
			}
		}
	}
}
