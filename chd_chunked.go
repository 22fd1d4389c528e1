// chd_chunked.go - the CHD (Compress Hash Displace) bucket engine over
// BucketedHashStore chunks, per spec.md §4.4. This is distinct from the
// teacher's original chd.go/chdBuilder (kept as-is, operating on a
// single flat table of pre-hashed uint64 keys for DBWriter); this file
// generalizes the same displacement-search idea to run per chunk of a
// disk-backed key stream, with its coefficients compressed via
// EliasFano, as an alternative MPHF engine selectable alongside the
// random-graph solver (solver.go).
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
	"sort"
)

// chunkLambda is the small-bucket size used to partition a chunk's keys
// before displacement search (spec.md §4.4: "lambda ~= 5").
const chunkLambda = 5

// chdLoadFactor is the default load factor for the per-chunk prime-sized
// table.
const chdLoadFactor = 0.81

// maxCoeffSearch bounds the c1 search range per small bucket (c0 ranges
// over [0, P)).
const maxCoeffSearch = 1 << 16

// ChunkedCHD is the solved CHD state for one chunk (spec.md §4.4
// "Output per chunk").
//
// Per-bucket (c0 + c1*P) coefficients are not a monotone sequence in
// bucket order -- each bucket's displacement pair is found independently
// by search, so there is no reason successive buckets' coefficients
// increase. To still store them in the EliasFanoMonotoneList black box
// spec.md §6 calls for, each coefficient (individually bounded by
// CoeffBound = P*maxCoeffSearch) is shifted by its bucket's index times
// that bound before encoding: index*CoeffBound+coeff is then strictly
// increasing across buckets by construction, and Get(i) subtracts the
// same offset back out. This is the standard trick for storing a bounded
// (not sorted) integer sequence with the monotone-list primitive, the
// same one sux4j's indexed Elias-Fano long lists use for per-bucket CHD
// coefficients.
type ChunkedCHD struct {
	P          uint64 // prime table size
	LocalSeed  uint64
	Coeffs     *EliasFano // index*CoeffBound + (c0 + c1*P), strictly increasing
	CoeffBound uint64     // per-element bound used to make Coeffs monotone
	numBucks   int
	Holes      *bitVector // sparse marker of unused positions within [0,P)
	HoleRank   *rankIndex
	HoleCount  uint64 // cumulative holes contributed by this chunk
}

// coeffAt recovers the i-th bucket's actual (c0 + c1*P) coefficient from
// the index-shifted monotone encoding described above.
func (c *ChunkedCHD) coeffAt(i int) uint64 {
	return c.Coeffs.Get(i) - uint64(i)*c.CoeffBound
}

// chdSmallBucket groups a chunk's local key indices by their bucket
// selector (top hash word modulo numBuckets).
type chdSmallBucket struct {
	slot int
	keys []int // indices into the chunk's Bucket.Signatures/Values
}

// solveCHDChunk runs the displacement search for one chunk (a Bucket
// produced with a ~2^16 target size), retrying with a fresh chunk-local
// seed on failure.
func solveCHDChunk(b *Bucket, globalSeed uint64) (*ChunkedCHD, error) {
	size := b.Size
	base := bucketBaseSeed(globalSeed, b.Index)

	if size == 0 {
		p := uint64(2)
		bound := p * maxCoeffSearch
		holes := newBitVector(p)
		holes.Set(0)
		holes.Set(1)
		return &ChunkedCHD{
			P: p, LocalSeed: base,
			Coeffs: NewEliasFano(nil, bound), CoeffBound: bound, numBucks: 0,
			Holes: holes, HoleRank: newRankIndex(holes),
			HoleCount: p,
		}, nil
	}

	for attempt := 0; attempt < maxSolverAttempts; attempt++ {
		seed := base + uint64(attempt)*seedStep
		chd, ok := tryCHDChunk(b, seed)
		if ok {
			return chd, nil
		}
	}
	return nil, &UnsolvableError{Bucket: b.Index, Seed: base}
}

func tryCHDChunk(b *Bucket, seed uint64) (*ChunkedCHD, bool) {
	size := b.Size
	p := nextPrime(uint64(float64(size)/chdLoadFactor) + 1)
	numBuckets := (size + chunkLambda - 1) / chunkLambda

	buckets := make([]chdSmallBucket, numBuckets)
	for i := range buckets {
		buckets[i].slot = i
	}
	for i := 0; i < size; i++ {
		h := chunkHash(b, i, seed, 0)
		slot := int(h % uint64(numBuckets))
		buckets[slot].keys = append(buckets[slot].keys, i)
	}

	sort.Slice(buckets, func(i, j int) bool { return len(buckets[i].keys) > len(buckets[j].keys) })

	used := newBitVector(p)
	coeffs := make([]uint64, numBuckets)

	for _, bucket := range buckets {
		found := false
	search:
		for c1 := uint64(0); c1 < maxCoeffSearch && !found; c1++ {
			for c0 := uint64(0); c0 < p; c0++ {
				if chdBucketFits(b, bucket.keys, seed, p, c0, c1, used) {
					markBucket(b, bucket.keys, seed, p, c0, c1, used)
					coeffs[bucket.slot] = c0 + c1*p
					found = true
					break search
				}
			}
		}
		if !found {
			return nil, false
		}
	}

	holeCount := countZeros(used, p)
	holes := newBitVector(p)
	for i := uint64(0); i < p; i++ {
		if !used.IsSet(i) {
			holes.Set(i)
		}
	}
	holeIdx := newRankIndex(holes)

	// Shift each bucket's coefficient by its index*bound so the encoded
	// sequence is strictly increasing (see ChunkedCHD's doc comment).
	bound := p * maxCoeffSearch
	mono := make([]uint64, numBuckets)
	for i, c := range coeffs {
		mono[i] = uint64(i)*bound + c
	}
	ef := NewEliasFano(mono, uint64(numBuckets)*bound)

	return &ChunkedCHD{
		P: p, LocalSeed: seed, Coeffs: ef, CoeffBound: bound, numBucks: numBuckets,
		Holes: holes, HoleRank: holeIdx, HoleCount: holeCount,
	}, true
}

// chdBucketFits checks whether (c0,c1) places every key of the bucket on
// a position that is unused both globally ('used') and among the
// bucket's own keys.
func chdBucketFits(b *Bucket, keys []int, seed, p, c0, c1 uint64, used *bitVector) bool {
	var local []uint64
	for _, i := range keys {
		h1 := chunkHash(b, i, seed, 1) % p
		h2 := 1 + chunkHash(b, i, seed, 2)%(p-1)
		pos := (h1 + c0*h2 + c1) % p
		if used.IsSet(pos) {
			return false
		}
		for _, l := range local {
			if l == pos {
				return false
			}
		}
		local = append(local, pos)
	}
	return true
}

func markBucket(b *Bucket, keys []int, seed, p, c0, c1 uint64, used *bitVector) {
	for _, i := range keys {
		h1 := chunkHash(b, i, seed, 1) % p
		h2 := 1 + chunkHash(b, i, seed, 2)%(p-1)
		pos := (h1 + c0*h2 + c1) % p
		used.Set(pos)
	}
}

// chunkHash derives an independent hash word for key i within chunk b,
// domain-separated by 'which' (0: small-bucket selector, 1: h1, 2: h2).
func chunkHash(b *Bucket, i int, seed uint64, which uint64) uint64 {
	if b.SigWords == 3 {
		return chunkHashSig3(b.AsSig3(i), seed, which)
	}
	return chunkHashSig2(b.AsSig2(i), seed, which)
}

// chunkHashSig2/3 are the signature-only forms of chunkHash, reused at
// query time (ChunkedFunction.Find) where there is no Bucket, only the
// queried key's own signature.
func chunkHashSig2(sig Sig2, seed, which uint64) uint64 {
	return rehash(sig, seed+which*seedStep)
}

func chunkHashSig3(sig Sig3, seed, which uint64) uint64 {
	return rehash3(sig, seed+which*seedStep)
}

func countZeros(bv *bitVector, limit uint64) uint64 {
	var z uint64
	for i := uint64(0); i < limit; i++ {
		if !bv.IsSet(i) {
			z++
		}
	}
	return z
}

// FindFromHashes evaluates the chunk's CHD form for key index-independent hash
// words (h, used at query time from the original key, not the original
// bucket index), returning a compact value in [0, size-this-chunk).
func (c *ChunkedCHD) FindFromHashes(hSel, h1, h2 uint64) uint64 {
	slot := hSel % uint64(max(1, c.numBucks))
	coeff := c.coeffAt(int(slot))
	c0 := coeff % c.P
	c1 := coeff / c.P
	pos := (h1 + c0*h2 + c1) % c.P
	rank := c.HoleRank.Rank(pos)
	return pos - rank
}

// nextPrime returns the smallest prime >= n.
func nextPrime(n uint64) uint64 {
	if n < 2 {
		return 2
	}
	if n == 2 {
		return 2
	}
	if n%2 == 0 {
		n++
	}
	for !isPrime(n) {
		n += 2
	}
	return n
}

func isPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := uint64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}
