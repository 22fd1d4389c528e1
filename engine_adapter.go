// engine_adapter.go -- bridges the new disk-backed solver and
// CHD-chunked engines to the package's existing MPHBuilder/MPH
// interface (mph.go), so DBWriter/DBReader (which operate on
// pre-hashed uint64 keys) gain two more selectable MPH engines
// alongside chd and bbhash, without changing their own API.
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
	"encoding/binary"
	"errors"
	"io"
	"math/bits"
)

func keyBytes(k uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], k)
	return b[:]
}

// maxReseedAttempts bounds the store-level DuplicateSignature recovery
// loop (spec.md §4.2 "Duplicate handling": "The retry budget is three;
// after that the input is declared to contain genuine duplicates").
const maxReseedAttempts = 3

// reseedAndReaddLoop recovers from a *DuplicateSignatureError by generating a
// fresh seed, resetting the store, and re-adding every previously buffered
// key through 'add' (which re-derives any seed-dependent value, e.g. a
// signed builder's per-key fingerprint, under the new seed).
func reseedAndReaddLoop(store *BucketedHashStore, keys [][]byte, add func(kb []byte) error) error {
	if err := store.Reset(rand64()); err != nil {
		return err
	}
	for _, kb := range keys {
		if err := add(kb); err != nil {
			return err
		}
	}
	return nil
}

// solverMPHBuilder adapts the BucketedHashStore + random-graph solver
// pipeline to MPHBuilder. Keys are fed to the store in Add-order; the
// store assigns each its ordinal as the recovered value, so the
// resulting Function is a bijection onto [0, n) -- a minimal perfect
// hash, same contract as chdBuilder/bbHashBuilder.
type solverMPHBuilder struct {
	store  *BucketedHashStore
	degree Degree

	// signed marks dictionary mode: Add stores a width-bit fingerprint
	// of the key instead of its insertion ordinal, so the assembled
	// Function can reject non-members (spec.md §9 "Signed (dictionary
	// mode) functions") instead of returning an arbitrary recovered
	// value for any byte string.
	signed bool
	width  uint

	// keys buffers every added key's encoded bytes so Freeze can
	// recover from a *DuplicateSignatureError by reseeding the store
	// and re-adding them (spec.md §4.2 "Duplicate handling" requires
	// the original keys still be iterable at reseed time).
	keys [][]byte
}

// NewSolverBuilder creates a MPHBuilder backed by the hypergraph-peeling
// / lazy-Gaussian-elimination solver (solver.go), an alternative to
// NewChdBuilder/NewBBHashBuilder for very large key sets that don't fit
// in memory during construction (spec.md §4.2/§4.3). The assembled
// Function is a plain MPHF: Find recovers each key's insertion ordinal.
func NewSolverBuilder(tmpDir string, degree Degree) (MPHBuilder, error) {
	store, err := OpenStore(IdentityTransform, tmpDir, 3)
	if err != nil {
		return nil, err
	}
	if err := store.Reset(rand64()); err != nil {
		store.Close()
		return nil, err
	}
	return &solverMPHBuilder{store: store, degree: degree}, nil
}

// NewSignedSolverBuilder creates a dictionary-mode MPHBuilder: the
// assembled Function rejects keys outside the added set with a false
// positive rate of 2^-width (spec.md §6/§9), at the cost of no longer
// being a bijection onto [0, n). width is fixed at construction time
// since, unlike the plain MPHF width, it does not depend on n.
func NewSignedSolverBuilder(tmpDir string, degree Degree, width uint) (MPHBuilder, error) {
	store, err := OpenStore(IdentityTransform, tmpDir, 3)
	if err != nil {
		return nil, err
	}
	if err := store.Reset(rand64()); err != nil {
		store.Close()
		return nil, err
	}
	return &solverMPHBuilder{store: store, degree: degree, signed: true, width: width}, nil
}

func (b *solverMPHBuilder) Add(key uint64) error {
	kb := keyBytes(key)
	b.keys = append(b.keys, kb)
	return b.addOne(kb)
}

// addOne adds an already-buffered key's bytes to the store, re-deriving
// the signed fingerprint under the store's current seed (used both by
// Add and by the reseed-retry loop in Freeze).
func (b *solverMPHBuilder) addOne(kb []byte) error {
	if b.signed {
		return b.store.AddValue(kb, checkValue(kb, b.store.seed, b.width))
	}
	return b.store.Add(kb)
}

func (b *solverMPHBuilder) Freeze() (MPH, error) {
	width := b.width
	if !b.signed {
		n := b.store.Len()
		width = uint(1)
		if n > 1 {
			width = uint(bits.Len64(n - 1))
		}
	}

	var f *Function
	var err error
	for attempt := 0; ; attempt++ {
		f, err = AssembleSolver(b.store, b.degree, width)
		if err == nil {
			break
		}
		var dup *DuplicateSignatureError
		if !errors.As(err, &dup) {
			b.store.Close()
			return nil, err
		}
		if attempt >= maxReseedAttempts {
			b.store.Close()
			return nil, &DuplicateKeyError{Attempts: attempt + 1}
		}
		if rerr := reseedAndReaddLoop(b.store, b.keys, b.addOne); rerr != nil {
			b.store.Close()
			return nil, rerr
		}
	}
	b.store.Close()

	f.Signed = b.signed
	return &solverMPH{f: f}, nil
}

// solverMPH wraps a Function (keyed on []byte) behind the uint64-keyed
// MPH interface.
type solverMPH struct {
	f *Function
}

func (s *solverMPH) Find(k uint64) (uint64, bool) {
	return s.f.Find(keyBytes(k))
}

func (s *solverMPH) Len() int { return s.f.Len() }

func (s *solverMPH) DumpMeta(w io.Writer) { s.f.DumpMeta(w) }

func (s *solverMPH) MarshalBinary(w io.Writer) (int, error) {
	return s.f.MarshalBinary(w)
}

func newSolverMPH(buf []byte) (MPH, error) {
	f, err := newFunction(buf)
	if err != nil {
		return nil, err
	}
	return &solverMPH{f: f}, nil
}

// chdChunkedMPHBuilder adapts AssembleCHD to MPHBuilder. Unlike
// solverMPHBuilder, chunk size (not bucket size) governs the
// displacement search granularity (spec.md §4.4), so we set a larger
// bucket size on the store before iterating.
const chdChunkSize = 1 << 16

type chdChunkedMPHBuilder struct {
	store *BucketedHashStore

	// keys buffers every added key's encoded bytes; see the identical
	// field on solverMPHBuilder for why this is needed to recover from
	// a *DuplicateSignatureError.
	keys [][]byte
}

// NewCHDChunkedBuilder creates a MPHBuilder backed by the chunked CHD
// engine (chd_chunked.go): the same displacement-search idea as
// NewChdBuilder, generalized to run over disk-backed chunks instead of
// an in-memory key array.
func NewCHDChunkedBuilder(tmpDir string) (MPHBuilder, error) {
	store, err := OpenStore(IdentityTransform, tmpDir, 2)
	if err != nil {
		return nil, err
	}
	if err := store.Reset(rand64()); err != nil {
		store.Close()
		return nil, err
	}
	store.SetBucketSize(chdChunkSize)
	return &chdChunkedMPHBuilder{store: store}, nil
}

func (b *chdChunkedMPHBuilder) Add(key uint64) error {
	kb := keyBytes(key)
	b.keys = append(b.keys, kb)
	return b.store.Add(kb)
}

func (b *chdChunkedMPHBuilder) Freeze() (MPH, error) {
	var f *ChunkedFunction
	var err error
	for attempt := 0; ; attempt++ {
		f, err = AssembleCHD(b.store)
		if err == nil {
			break
		}
		var dup *DuplicateSignatureError
		if !errors.As(err, &dup) {
			b.store.Close()
			return nil, err
		}
		if attempt >= maxReseedAttempts {
			b.store.Close()
			return nil, &DuplicateKeyError{Attempts: attempt + 1}
		}
		addOne := func(kb []byte) error { return b.store.Add(kb) }
		if rerr := reseedAndReaddLoop(b.store, b.keys, addOne); rerr != nil {
			b.store.Close()
			return nil, rerr
		}
	}
	b.store.Close()
	return &chdChunkedMPH{f: f}, nil
}

type chdChunkedMPH struct {
	f *ChunkedFunction
}

func (c *chdChunkedMPH) Find(k uint64) (uint64, bool) {
	return c.f.Find(keyBytes(k))
}

func (c *chdChunkedMPH) Len() int { return c.f.Len() }

func (c *chdChunkedMPH) DumpMeta(w io.Writer) { c.f.DumpMeta(w) }

func (c *chdChunkedMPH) MarshalBinary(w io.Writer) (int, error) {
	return c.f.MarshalBinary(w)
}

func newCHDChunkedMPH(buf []byte) (MPH, error) {
	f, err := newChunkedFunction(buf)
	if err != nil {
		return nil, err
	}
	return &chdChunkedMPH{f: f}, nil
}

var _ MPHBuilder = &solverMPHBuilder{}
var _ MPH = &solverMPH{}
var _ MPHBuilder = &chdChunkedMPHBuilder{}
var _ MPH = &chdChunkedMPH{}
