// bucket.go - Bucket: a logical group of signatures sharing a top-bit
// prefix of signature[0].
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

// Bucket is a logical group of signatures sharing a top-bit prefix of
// signature[0], as produced by BucketedHashStore.Iter(). See spec.md §3.
type Bucket struct {
	// Index is the bucket's ordinal position in the global bucket order.
	Index uint64

	// Size is the number of signatures in the bucket.
	Size int

	// SigWords is 2 (Sig2) or 3 (Sig3).
	SigWords int

	// Signatures holds the sorted sequence of signatures; only the
	// first SigWords entries of each element are meaningful.
	Signatures [][3]uint64

	// Values holds the user value (or assigned ordinal) parallel to
	// Signatures.
	Values []uint64
}

// Sig0 returns the first signature word for record i -- the word whose
// top bits determine bucket membership and whose rehash derives the
// hyperedge for the random-graph solver.
func (b *Bucket) Sig0(i int) uint64 {
	return b.Signatures[i][0]
}

// AsSig2 reinterprets record i as a Sig2 (valid when SigWords == 2).
func (b *Bucket) AsSig2(i int) Sig2 {
	return Sig2{b.Signatures[i][0], b.Signatures[i][1]}
}

// AsSig3 reinterprets record i as a Sig3 (valid when SigWords == 3).
func (b *Bucket) AsSig3(i int) Sig3 {
	return Sig3{b.Signatures[i][0], b.Signatures[i][1], b.Signatures[i][2]}
}
