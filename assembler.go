// assembler.go - the parallel assembler: drives per-bucket solving
// across worker goroutines, then reorders results by bucket index
// before concatenating them into the final artifact. See spec.md §4.5.
//
// The teacher's bbhash.go concurrent() shows the producer/worker shape
// this is grounded on (split work across goroutines, synchronize with a
// WaitGroup); this generalizes it into three genuinely concurrent
// pipeline stages (bounded channels, not a single barrier-synchronized
// fan-out) and uses golang.org/x/sync/errgroup for first-error
// propagation across all three, instead of a hand-rolled error channel.
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
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// assemblerThreads returns T = min(4, hardware_concurrency), per
// spec.md §4.5.
func assemblerThreads() int {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

type bucketResult[T any] struct {
	idx uint64
	val T
}

// runPipeline drives 'it' through 'solve' across T worker goroutines,
// returning results ordered by ascending bucket index. The bucket
// channel and the result channel are both bounded (capacity 8T) so a
// slow sink throttles workers and a slow producer throttles them in
// turn -- no unbounded buffering (spec.md §4.5 "Backpressure").
func runPipeline[T any](it *BucketIterator, solve func(*Bucket) (T, error)) ([]T, error) {
	threads := assemblerThreads()
	cap := 8 * threads

	bucketCh := make(chan *Bucket, cap)
	resultCh := make(chan bucketResult[T], cap)

	g, ctx := errgroup.WithContext(context.Background())

	// Stage 1: bucket producer (single task).
	g.Go(func() error {
		defer close(bucketCh)
		for it.Next() {
			b := it.Bucket()
			select {
			case bucketCh <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return it.Err()
	})

	// Stage 2: workers.
	var workerWG sync.WaitGroup
	workerWG.Add(threads)
	for i := 0; i < threads; i++ {
		g.Go(func() error {
			defer workerWG.Done()
			for {
				select {
				case b, ok := <-bucketCh:
					if !ok {
						return nil
					}
					v, err := solve(b)
					if err != nil {
						return err
					}
					select {
					case resultCh <- bucketResult[T]{idx: b.Index, val: v}:
					case <-ctx.Done():
						return ctx.Err()
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}

	go func() {
		workerWG.Wait()
		close(resultCh)
	}()

	// Stage 3: reordering sink (single task). Releases entries in
	// strictly increasing bucket.index order.
	var out []T
	g.Go(func() error {
		pending := make(map[uint64]T)
		var next uint64
		for {
			select {
			case r, ok := <-resultCh:
				if !ok {
					return nil
				}
				pending[r.idx] = r.val
				for {
					v, have := pending[next]
					if !have {
						break
					}
					out = append(out, v)
					delete(pending, next)
					next++
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AssembleSolver builds the solver-based MPHF/function artifact for
// every bucket the store yields, using the random-graph solver
// (solver.go) and packing results into a Function.
func AssembleSolver(store *BucketedHashStore, degree Degree, width uint) (*Function, error) {
	it, err := store.Iter()
	if err != nil {
		return nil, err
	}

	globalSeed := store.seed
	results, err := runPipeline(it, func(b *Bucket) (*SolvedBucket, error) {
		return solveBucket(b, degree, width, globalSeed)
	})
	if err != nil {
		return nil, err
	}

	return buildSolverFunction(results, globalSeed, store.sigWords, degree, store.numBuckets(), width, store.Len())
}

// AssembleCHD builds the CHD-chunked function artifact for every chunk
// the store yields (store.bucketSize should be set to the chunk size,
// ~2^16, before calling Iter()).
func AssembleCHD(store *BucketedHashStore) (*ChunkedFunction, error) {
	it, err := store.Iter()
	if err != nil {
		return nil, err
	}

	globalSeed := store.seed
	results, err := runPipeline(it, func(b *Bucket) (*ChunkedCHD, error) {
		return solveCHDChunk(b, globalSeed)
	})
	if err != nil {
		return nil, err
	}

	return buildChunkedFunction(results, globalSeed, store.sigWords), nil
}
