// store_test.go -- test suite for BucketedHashStore
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

func TestStoreBasic(t *testing.T) {
	assert := newAsserter(t)

	s, err := OpenStore(IdentityTransform, "", 2)
	assert(err == nil, "open: %s", err)
	defer s.Close()

	err = s.Reset(rand64())
	assert(err == nil, "reset: %s", err)

	for _, w := range keyw {
		err = s.Add([]byte(w))
		assert(err == nil, "add %s: %s", w, err)
	}
	assert(s.Len() == uint64(len(keyw)), "len mismatch; exp %d, saw %d", len(keyw), s.Len())
}

// Every bucket the iterator yields must be internally self-consistent,
// and iterating must visit every key exactly once, in strictly
// increasing bucket-index order.
func TestStoreIterCoversAllKeys(t *testing.T) {
	assert := newAsserter(t)

	s, err := OpenStore(IdentityTransform, "", 2)
	assert(err == nil, "open: %s", err)
	defer s.Close()

	assert(s.Reset(rand64()) == nil, "reset failed")
	for _, w := range keyw {
		assert(s.Add([]byte(w)) == nil, "add %s failed", w)
	}

	it, err := s.Iter()
	assert(err == nil, "iter: %s", err)

	seen := 0
	var lastIdx uint64
	first := true
	for it.Next() {
		b := it.Bucket()
		if !first {
			assert(b.Index > lastIdx, "bucket index not increasing: %d <= %d", b.Index, lastIdx)
		}
		first = false
		lastIdx = b.Index
		assert(b.Size == len(b.Signatures), "bucket %d: size %d != len(sigs) %d", b.Index, b.Size, len(b.Signatures))
		assert(b.Size == len(b.Values), "bucket %d: size %d != len(values) %d", b.Index, b.Size, len(b.Values))
		seen += b.Size
	}
	assert(it.Err() == nil, "iterator error: %s", it.Err())
	assert(seen == len(keyw), "iterator saw %d keys, want %d", seen, len(keyw))
}

// bucketIndexOf must agree with the bucket index the iterator actually
// assigns each record to -- the query path depends on this.
func TestBucketIndexOfAgreesWithIter(t *testing.T) {
	assert := newAsserter(t)

	s, err := OpenStore(IdentityTransform, "", 2)
	assert(err == nil, "open: %s", err)
	defer s.Close()

	assert(s.Reset(rand64()) == nil, "reset failed")
	for i := 0; i < 5000; i++ {
		assert(s.Add(keyBytes(uint64(i))) == nil, "add %d failed", i)
	}
	s.SetBucketSize(64)

	it, err := s.Iter()
	assert(err == nil, "iter: %s", err)

	nb := s.numBuckets()
	for it.Next() {
		b := it.Bucket()
		for i := 0; i < b.Size; i++ {
			got := bucketIndexOf(b.Sig0(i), nb)
			assert(got == b.Index, "bucketIndexOf disagrees: computed %d, iterator put it in %d", got, b.Index)
		}
	}
	assert(it.Err() == nil, "iterator error: %s", it.Err())
}

func TestStoreDuplicateDetection(t *testing.T) {
	assert := newAsserter(t)

	s, err := OpenStore(IdentityTransform, "", 2)
	assert(err == nil, "open: %s", err)
	defer s.Close()

	assert(s.Reset(rand64()) == nil, "reset failed")
	// Adding the same key twice forces a genuine signature collision.
	assert(s.Add([]byte("dup")) == nil, "add failed")
	assert(s.Add([]byte("dup")) == nil, "add failed")

	it, err := s.Iter()
	assert(err == nil, "iter: %s", err)

	for it.Next() {
		it.Bucket()
	}
	_, isDup := it.Err().(*DuplicateSignatureError)
	assert(isDup, "expected a *DuplicateSignatureError, got %v", it.Err())
}
