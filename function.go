// function.go - Function and ChunkedFunction: the query-side artifacts
// produced by AssembleSolver/AssembleCHD. Both implement the same
// general-static-function query path described in spec.md §3/§9:
// re-derive a key's signature and bucket, re-derive (or replay) the
// bucket-local solve parameters, and recombine cells to recover the
// value originally associated with the key.
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
	"fmt"
	"io"
)

// packedArray is a flat array of fixed-width (<=64 bit) unsigned values,
// bit-packed into a []uint64. It backs the solver engine's per-bucket
// cell array.
type packedArray struct {
	width uint
	n     int
	words []uint64
}

func newPackedArray(n int, width uint) *packedArray {
	if width == 0 {
		width = 1
	}
	nbits := uint64(n) * uint64(width)
	nwords := (nbits + 63) / 64
	return &packedArray{width: width, n: n, words: make([]uint64, nwords)}
}

func (p *packedArray) Set(i int, v uint64) {
	mask := widthMask(p.width)
	v &= mask
	bitpos := uint64(i) * uint64(p.width)
	word := bitpos / 64
	off := uint(bitpos % 64)

	p.words[word] |= v << off
	if off+p.width > 64 {
		spill := (off + p.width) - 64
		p.words[word+1] |= v >> (p.width - spill)
	}
}

func (p *packedArray) Get(i int) uint64 {
	bitpos := uint64(i) * uint64(p.width)
	word := bitpos / 64
	off := uint(bitpos % 64)

	v := p.words[word] >> off
	if off+p.width > 64 {
		spill := (off + p.width) - 64
		v |= p.words[word+1] << (p.width - spill)
	}
	return v & widthMask(p.width)
}

// Function is the artifact produced by AssembleSolver: a general static
// function over the key set added to a BucketedHashStore, backed by the
// random-graph solver's per-bucket linear systems.
type Function struct {
	globalSeed uint64
	sigWords   int
	degree     Degree
	width      uint
	numBuckets int

	offsets  []uint64 // length numBuckets+1, cumulative NumVars
	attempts []byte   // length numBuckets

	cells *packedArray

	n int // total keys assembled

	// Signed marks a dictionary-mode function: Values stored are
	// fingerprint check-bits rather than caller payload, and Contains
	// can reject non-member keys with false-positive rate 2^-width.
	Signed bool
}

// buildSolverFunction packs per-bucket solved cell arrays (already in
// ascending bucket-index order, guaranteed by runPipeline's reordering
// sink) into one contiguous Function.
func buildSolverFunction(results []*SolvedBucket, globalSeed uint64, sigWords int, degree Degree, numBuckets int, width uint, totalKeys uint64) (*Function, error) {
	if len(results) != numBuckets {
		return nil, fmt.Errorf("mph: assembler produced %d buckets, want %d", len(results), numBuckets)
	}

	offsets := make([]uint64, numBuckets+1)
	var total uint64
	for i, r := range results {
		offsets[i] = total
		total += r.NumVars
	}
	offsets[numBuckets] = total

	cells := newPackedArray(int(total), width)
	attempts := make([]byte, numBuckets)
	for i, r := range results {
		base := offsets[i]
		for j, v := range r.Cells {
			cells.Set(int(base)+j, v)
		}
		attempts[i] = r.Attempt
	}

	f := &Function{
		globalSeed: globalSeed,
		sigWords:   sigWords,
		degree:     degree,
		width:      width,
		numBuckets: numBuckets,
		offsets:    offsets,
		attempts:   attempts,
		cells:      cells,
		n:          int(totalKeys),
	}
	return f, nil
}

// Len returns the number of keys the function was assembled from.
func (f *Function) Len() int { return f.n }

// bucketFor re-derives the bucket a key's signature falls in, using the
// same rule BucketedHashStore.Iter() used at construction time.
func (f *Function) bucketFor(h0 uint64) uint64 {
	return bucketIndexOf(h0, f.numBuckets)
}

// Find evaluates the function for 'key', returning the recombined
// value. In plain (unsigned) mode the second return is always true: this
// is a general static function, not a membership test, and 'key' need
// not have been a member of the original set for some value to come
// back. In signed/dictionary mode the second return is false when 'key'
// was never added. See spec.md §9 "defaultReturnValue" note.
func (f *Function) Find(key []byte) (uint64, bool) {
	var h0 uint64
	var localHash func(localSeed uint64) uint64

	if f.sigWords == 3 {
		sig := hashKey3(key, f.globalSeed)
		h0 = sig[0]
		localHash = func(localSeed uint64) uint64 { return rehash3(sig, localSeed) }
	} else {
		sig := hashKey(key, f.globalSeed)
		h0 = sig[0]
		localHash = func(localSeed uint64) uint64 { return rehash(sig, localSeed) }
	}

	idx := f.bucketFor(h0)
	nvars := f.offsets[idx+1] - f.offsets[idx]
	if nvars == 0 {
		return 0, true
	}

	localSeed := bucketBaseSeed(f.globalSeed, idx) + uint64(f.attempts[idx])*seedStep
	h := localHash(localSeed)

	r := int(f.degree)
	if nvars == 1 {
		r = 1
	}
	vars := edgeVars(h, min(r, int(nvars)), nvars)

	base := f.offsets[idx]
	var v uint64
	for _, vi := range vars {
		v ^= f.cells.Get(int(base + vi))
	}

	if f.Signed {
		// Dictionary mode: the cells were built to recover an
		// independent per-key fingerprint, not caller payload, so a
		// mismatch here means 'key' was never added (spec.md §9
		// "defaultReturnValue" resolution for signed functions).
		if v != checkValue(key, f.globalSeed, f.width) {
			return 0, false
		}
	}
	return v, true
}

// Contains reports whether 'key' was a member of the original key set.
// Only meaningful when the function was assembled in signed/dictionary
// mode (spec.md §4 "_DB_Signed"); in plain MPHF mode every key maps to
// some index, so Contains is always true. The false-positive rate for a
// non-member key in signed mode is 2^-width.
func (f *Function) Contains(key []byte) bool {
	_, ok := f.Find(key)
	return ok
}

// checkValue derives the dictionary-mode fingerprint stored as a key's
// "value" in signed mode: the low 'width' bits of an independent
// signature word, so that a non-member key's recombined cells match it
// only by chance.
func checkValue(key []byte, seed uint64, width uint) uint64 {
	sig := hashKey(key, seed^0xA5A5A5A5A5A5A5A5)
	return sig[1] & widthMask(width)
}

// DumpMeta writes a human-readable summary of the function's shape.
func (f *Function) DumpMeta(w io.Writer) {
	fmt.Fprintf(w, "sux: solver function: buckets %d, width %d, degree %d, signed %v\n",
		f.numBuckets, f.width, f.degree, f.Signed)
}

// ChunkedFunction is the artifact produced by AssembleCHD: a minimal
// perfect hash over the key set, assembled from independently-solved
// CHD chunks (chd_chunked.go).
type ChunkedFunction struct {
	globalSeed uint64
	sigWords   int
	chunks     []*ChunkedCHD
	chunkBase  []uint64 // cumulative compact-index offset per chunk
	numChunks  int
	n          uint64
}

func buildChunkedFunction(results []*ChunkedCHD, globalSeed uint64, sigWords int) *ChunkedFunction {
	base := make([]uint64, len(results)+1)
	var total uint64
	for i, c := range results {
		base[i] = total
		total += uint64(c.P) - c.HoleCount
	}
	base[len(results)] = total

	return &ChunkedFunction{
		globalSeed: globalSeed,
		sigWords:   sigWords,
		chunks:     results,
		chunkBase:  base,
		numChunks:  len(results),
		n:          total,
	}
}

// Len returns the number of keys represented by this function.
func (f *ChunkedFunction) Len() int { return int(f.n) }

// Find evaluates the CHD-chunked minimal perfect hash for 'key',
// returning its compact index in [0, Len()).
func (f *ChunkedFunction) Find(key []byte) (uint64, bool) {
	var h0 uint64
	var hSel, h1, h2 func(seed uint64) uint64

	if f.sigWords == 3 {
		sig := hashKey3(key, f.globalSeed)
		h0 = sig[0]
		hSel = func(seed uint64) uint64 { return chunkHashSig3(sig, seed, 0) }
		h1 = func(seed uint64) uint64 { return chunkHashSig3(sig, seed, 1) }
		h2 = func(seed uint64) uint64 { return chunkHashSig3(sig, seed, 2) }
	} else {
		sig := hashKey(key, f.globalSeed)
		h0 = sig[0]
		hSel = func(seed uint64) uint64 { return chunkHashSig2(sig, seed, 0) }
		h1 = func(seed uint64) uint64 { return chunkHashSig2(sig, seed, 1) }
		h2 = func(seed uint64) uint64 { return chunkHashSig2(sig, seed, 2) }
	}

	idx := bucketIndexOf(h0, f.numChunks)
	if int(idx) >= len(f.chunks) {
		return 0, false
	}
	chunk := f.chunks[idx]
	if chunk == nil || chunk.numBucks == 0 {
		return 0, false
	}

	localPos := chunk.FindFromHashes(hSel(chunk.LocalSeed), h1(chunk.LocalSeed), h2(chunk.LocalSeed))
	return f.chunkBase[idx] + localPos, true
}

// DumpMeta writes a human-readable summary of the function's shape.
func (f *ChunkedFunction) DumpMeta(w io.Writer) {
	fmt.Fprintf(w, "sux: chd-chunked function: chunks %d, keys %d\n", f.numChunks, f.n)
}
