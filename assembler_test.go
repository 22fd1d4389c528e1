// assembler_test.go -- test suite for the parallel bucket-solve pipeline.
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
	"errors"
	"testing"
)

// runPipeline must deliver results strictly in ascending bucket-index
// order regardless of how long any individual solve() call takes.
func TestRunPipelineOrdersResults(t *testing.T) {
	assert := newAsserter(t)

	s, err := OpenStore(IdentityTransform, "", 2)
	assert(err == nil, "open store: %s", err)
	defer s.Close()

	assert(s.Reset(rand64()) == nil, "reset failed")
	for i := 0; i < 20000; i++ {
		assert(s.Add(keyBytes(uint64(i))) == nil, "add %d failed", i)
	}
	s.SetBucketSize(64)

	it, err := s.Iter()
	assert(err == nil, "iter: %s", err)

	results, err := runPipeline(it, func(b *Bucket) (uint64, error) {
		// Each result is its bucket's index, so any reordering by the
		// worker pool shows up as result[i] != i.
		return b.Index, nil
	})
	assert(err == nil, "runPipeline failed: %s", err)

	for i, v := range results {
		assert(v == uint64(i), "result[%d] = %d, want %d", i, v, i)
	}
}

// An error from any worker must propagate out of runPipeline.
func TestRunPipelinePropagatesError(t *testing.T) {
	assert := newAsserter(t)

	s, err := OpenStore(IdentityTransform, "", 2)
	assert(err == nil, "open store: %s", err)
	defer s.Close()

	assert(s.Reset(rand64()) == nil, "reset failed")
	for _, w := range keyw {
		assert(s.Add([]byte(w)) == nil, "add %s failed", w)
	}
	s.SetBucketSize(2)

	it, err := s.Iter()
	assert(err == nil, "iter: %s", err)

	boom := errors.New("boom")
	_, err = runPipeline(it, func(b *Bucket) (int, error) {
		if b.Index == 0 {
			return 0, boom
		}
		return 0, nil
	})
	assert(err != nil, "expected an error from runPipeline")
}

func TestAssemblerThreadsBounded(t *testing.T) {
	assert := newAsserter(t)

	n := assemblerThreads()
	assert(n >= 1 && n <= 4, "assemblerThreads() = %d, want in [1,4]", n)
}
