// errors.go - public errors exposed by mph
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
	"fmt"
)

func errShortWrite(who string, n int) error {
	return fmt.Errorf("%s: incomplete write; exp 8, saw %d", who, n)
}

var (
	// ErrMPHFail is returned when the gamma value provided to Freeze() is too small to
	// build a minimal perfect hash table.
	ErrMPHFail = errors.New("failed to build MPH")

	// ErrFrozen is returned when attempting to add new records to an already frozen DB
	// It is also returned when trying to freeze a DB that's already frozen.
	ErrFrozen = errors.New("DB already frozen")

	// ErrValueTooLarge is returned if the value-length is larger than 2^32-1 bytes
	ErrValueTooLarge = errors.New("value is larger than 2^32-1 bytes")

	// ErrExists is returned if a duplicate key is added to the DB
	ErrExists = errors.New("key exists in DB")

	// ErrNoKey is returned when a key cannot be found in the DB
	ErrNoKey = errors.New("No such key")

	// Header too small for unmarshalling
	ErrTooSmall = errors.New("not enough data to unmarshal")

	// ErrClosed is returned when a BucketedHashStore is used after Close()
	ErrClosed = errors.New("store is closed")

	// ErrSeedExhausted names the exhaustion of a bucket's local seeds.
	// No code path in this package returns it: a bucket whose
	// maxSolverAttempts local seeds all fail is reported as
	// *UnsolvableError.
	ErrSeedExhausted = errors.New("local seed space exhausted")

	// ErrInvalidValueWidth is returned when a supplied value exceeds the
	// declared value width for a function.
	ErrInvalidValueWidth = errors.New("value exceeds declared width")
)

// DuplicateSignatureError signals that two distinct keys produced an
// identical signature under the store's current seed. It is recovered
// internally by the builder (reseed + retry, budget 3); see
// engine_adapter.go's reseedAndReaddLoop.
type DuplicateSignatureError struct {
	Bucket uint64
}

func (e *DuplicateSignatureError) Error() string {
	return fmt.Sprintf("duplicate signature in bucket %d", e.Bucket)
}

// DuplicateKeyError is surfaced to the caller when a signature collision
// survives more than the reseed-retry budget -- i.e. the input key set
// itself contains a genuine duplicate.
type DuplicateKeyError struct {
	Attempts int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key detected after %d reseed attempts", e.Attempts)
}

// UnsolvableError is returned by solveBucket (and solveCHDChunk) when
// every one of the maxSolverAttempts stepped local seeds fails for a
// bucket; a failure at a single seed is retried internally. It
// propagates to the caller of AssembleSolver/AssembleCHD.
type UnsolvableError struct {
	Bucket uint64
	Seed   uint64
}

func (e *UnsolvableError) Error() string {
	return fmt.Sprintf("solver: unsolvable system for bucket %d at seed %#x", e.Bucket, e.Seed)
}
