// solver_test.go -- test suite for the random-graph / linear-system
// solver.
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

func makeTestBucket(words []string, sigWords int, seed uint64) *Bucket {
	b := &Bucket{
		Index:      0,
		Size:       len(words),
		SigWords:   sigWords,
		Signatures: make([][3]uint64, len(words)),
		Values:     make([]uint64, len(words)),
	}
	for i, w := range words {
		if sigWords == 3 {
			sig := hashKey3([]byte(w), seed)
			b.Signatures[i] = [3]uint64{sig[0], sig[1], sig[2]}
		} else {
			sig := hashKey([]byte(w), seed)
			b.Signatures[i] = [3]uint64{sig[0], sig[1], 0}
		}
		b.Values[i] = uint64(i)
	}
	return b
}

// solveBucket must find a valid solution for a single small bucket, and
// the recombined cells must recover each key's assigned value exactly.
func TestSolveBucketRecoversValues(t *testing.T) {
	assert := newAsserter(t)

	seed := rand64()
	b := makeTestBucket(keyw, 2, seed)

	width := uint(8)
	sb, err := solveBucket(b, Degree3, width, seed)
	assert(err == nil, "solveBucket failed: %s", err)
	assert(sb.Width == width, "width mismatch; exp %d, saw %d", width, sb.Width)

	localSeed := bucketBaseSeed(seed, b.Index) + uint64(sb.Attempt)*seedStep

	for i, w := range keyw {
		sig := hashKey([]byte(w), seed)
		h := rehash(sig, localSeed)
		r := int(Degree3)
		if sb.NumVars < uint64(r) {
			r = int(sb.NumVars)
		}
		vars := edgeVars(h, r, sb.NumVars)

		var v uint64
		for _, vi := range vars {
			v ^= sb.Cells[vi]
		}
		assert(v == b.Values[i], "key %s: recovered %d, want %d", w, v, b.Values[i])
	}
}

// Degree4 must also solve the same bucket and recover the same values.
func TestSolveBucketDegree4(t *testing.T) {
	assert := newAsserter(t)

	seed := rand64()
	b := makeTestBucket(keyw, 2, seed)

	sb, err := solveBucket(b, Degree4, 8, seed)
	assert(err == nil, "solveBucket(degree4) failed: %s", err)
	assert(sb.NumVars >= uint64(len(keyw)), "numVars %d too small for %d keys", sb.NumVars, len(keyw))
}

// A single-key bucket is a degenerate edge case: it must still solve.
func TestSolveBucketSingleKey(t *testing.T) {
	assert := newAsserter(t)

	seed := rand64()
	b := makeTestBucket(keyw[:1], 2, seed)

	sb, err := solveBucket(b, Degree3, 4, seed)
	assert(err == nil, "solveBucket(1 key) failed: %s", err)
	assert(sb.NumVars >= 1, "expected at least 1 variable, got %d", sb.NumVars)
}

func TestWidthMask(t *testing.T) {
	assert := newAsserter(t)

	assert(widthMask(1) == 1, "width 1 mask wrong: %#x", widthMask(1))
	assert(widthMask(8) == 0xff, "width 8 mask wrong: %#x", widthMask(8))
	assert(widthMask(64) == ^uint64(0), "width 64 mask wrong: %#x", widthMask(64))
}
