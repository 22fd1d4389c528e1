// function_test.go -- test suite for packedArray, Function and
// ChunkedFunction, exercised end-to-end via BucketedHashStore +
// AssembleSolver/AssembleCHD.
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
	"bytes"
	"errors"
	"testing"

	"github.com/opencoff/go-fasthash"
)

func TestPackedArray(t *testing.T) {
	assert := newAsserter(t)

	for _, width := range []uint{1, 3, 8, 17, 31, 64} {
		n := 500
		p := newPackedArray(n, width)
		mask := widthMask(width)
		for i := 0; i < n; i++ {
			v := (uint64(i) * 0x9E3779B97F4A7C15) & mask
			p.Set(i, v)
		}
		for i := 0; i < n; i++ {
			want := (uint64(i) * 0x9E3779B97F4A7C15) & mask
			got := p.Get(i)
			assert(got == want, "width %d, index %d: got %#x, want %#x", width, i, got, want)
		}
	}
}

func buildTestStore(t *testing.T, words []string, sigWords int, bucketSize int) *BucketedHashStore {
	s, err := OpenStore(IdentityTransform, "", sigWords)
	if err != nil {
		t.Fatalf("open store: %s", err)
	}
	if err := s.Reset(rand64()); err != nil {
		t.Fatalf("reset store: %s", err)
	}
	if bucketSize > 0 {
		s.SetBucketSize(bucketSize)
	}
	for _, w := range words {
		if err := s.Add([]byte(w)); err != nil {
			t.Fatalf("add %s: %s", w, err)
		}
	}
	return s
}

// The solver-assembled Function must recover each key's auto-assigned
// ordinal, and every recovered ordinal must be a bijection onto
// [0, n).
func TestFunctionEndToEnd(t *testing.T) {
	assert := newAsserter(t)

	s := buildTestStore(t, keyw, 2, 4)
	defer s.Close()

	f, err := AssembleSolver(s, Degree3, 8)
	assert(err == nil, "AssembleSolver failed: %s", err)
	assert(f.Len() == len(keyw), "Len mismatch; exp %d, saw %d", len(keyw), f.Len())

	seen := make(map[uint64]string)
	for i, w := range keyw {
		v, ok := f.Find([]byte(w))
		assert(ok, "can't find key %s", w)
		assert(int(v) == i, "key %s: recovered %d, want ordinal %d", w, v, i)

		if other, dup := seen[v]; dup {
			t.Fatalf("ordinal %d assigned to both %s and %s", v, other, w)
		}
		seen[v] = w
	}
}

func TestFunctionMarshal(t *testing.T) {
	assert := newAsserter(t)

	s := buildTestStore(t, keyw, 2, 4)
	defer s.Close()

	f, err := AssembleSolver(s, Degree3, 8)
	assert(err == nil, "AssembleSolver failed: %s", err)

	var buf bytes.Buffer
	_, err = f.MarshalBinary(&buf)
	assert(err == nil, "marshal failed: %s", err)

	f2, err := newFunction(buf.Bytes())
	assert(err == nil, "unmarshal failed: %s", err)
	assert(f2.Len() == f.Len(), "Len mismatch after unmarshal; exp %d, saw %d", f.Len(), f2.Len())

	for _, w := range keyw {
		a, aok := f.Find([]byte(w))
		b, bok := f2.Find([]byte(w))
		assert(aok && bok, "find failed for %s", w)
		assert(a == b, "key %s: original %d vs unmarshaled %d", w, a, b)
	}
}

// The CHD-chunked Function must also be a bijection onto [0, n).
func TestChunkedFunctionEndToEnd(t *testing.T) {
	assert := newAsserter(t)

	s := buildTestStore(t, keyw, 2, 0)
	defer s.Close()

	f, err := AssembleCHD(s)
	assert(err == nil, "AssembleCHD failed: %s", err)
	assert(f.Len() == len(keyw), "Len mismatch; exp %d, saw %d", len(keyw), f.Len())

	seen := make(map[uint64]bool)
	for _, w := range keyw {
		v, ok := f.Find([]byte(w))
		assert(ok, "can't find key %s", w)
		assert(v < uint64(f.Len()), "key %s: index %d out of range", w, v)
		assert(!seen[v], "index %d assigned twice", v)
		seen[v] = true
	}
}

// A signed (dictionary-mode) solver function must accept every added
// key and reject most non-members with bounded false-positive rate.
func TestSignedSolverFunction(t *testing.T) {
	assert := newAsserter(t)

	b, err := NewSignedSolverBuilder("", Degree3, 12)
	assert(err == nil, "NewSignedSolverBuilder failed: %s", err)

	nmembers := 2000
	members := make([]uint64, nmembers)
	for i := 0; i < nmembers; i++ {
		members[i] = uint64(2*i) * 0x9E3779B97F4A7C15
		assert(b.Add(members[i]) == nil, "add %d failed", members[i])
	}

	mp, err := b.Freeze()
	assert(err == nil, "freeze failed: %s", err)

	for _, k := range members {
		_, ok := mp.Find(k)
		assert(ok, "member key %d rejected", k)
	}

	fp := 0
	trials := nmembers
	for i := 0; i < trials; i++ {
		_, ok := mp.Find(uint64(2*i+1) * 0x9E3779B97F4A7C15)
		if ok {
			fp++
		}
	}
	// width=12 bits -> expected false positive rate ~1/4096; allow
	// generous headroom since this is a small, seeded sample.
	assert(fp < trials/10, "false positive rate too high: %d/%d", fp, trials)
}

// A key added twice is a genuine duplicate: the builder must reseed and
// retry internally (spec.md §4.2 "Duplicate handling", §8 testable
// property 9) and ultimately surface *DuplicateKeyError rather than
// hanging or silently dropping one of the two adds.
func TestSolverBuilderDuplicateKey(t *testing.T) {
	assert := newAsserter(t)

	mb, err := NewSolverBuilder("", Degree3)
	assert(err == nil, "NewSolverBuilder failed: %s", err)

	assert(mb.Add(fasthash.Hash64(1, []byte("x"))) == nil, "add x failed")
	assert(mb.Add(fasthash.Hash64(1, []byte("y"))) == nil, "add y failed")
	assert(mb.Add(fasthash.Hash64(1, []byte("x"))) == nil, "add x failed")

	_, err = mb.Freeze()
	assert(err != nil, "expected DuplicateKeyError, got nil")

	var dk *DuplicateKeyError
	assert(errors.As(err, &dk), "expected *DuplicateKeyError, got %T: %v", err, err)
	assert(dk.Attempts <= maxReseedAttempts+1, "too many reseed attempts: %d", dk.Attempts)
}

func TestChunkedFunctionMarshal(t *testing.T) {
	assert := newAsserter(t)

	s := buildTestStore(t, keyw, 2, 0)
	defer s.Close()

	f, err := AssembleCHD(s)
	assert(err == nil, "AssembleCHD failed: %s", err)

	var buf bytes.Buffer
	_, err = f.MarshalBinary(&buf)
	assert(err == nil, "marshal failed: %s", err)

	f2, err := newChunkedFunction(buf.Bytes())
	assert(err == nil, "unmarshal failed: %s", err)
	assert(f2.Len() == f.Len(), "Len mismatch after unmarshal; exp %d, saw %d", f.Len(), f2.Len())

	for _, w := range keyw {
		a, aok := f.Find([]byte(w))
		b, bok := f2.Find([]byte(w))
		assert(aok && bok, "find failed for %s", w)
		assert(a == b, "key %s: original %d vs unmarshaled %d", w, a, b)
	}
}
