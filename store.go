// store.go - BucketedHashStore: external-memory shard store that digests
// keys into signatures and regroups them into balanced buckets on disk.
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
	"bufio"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const numShards = 256

// defaultBucketSize is the expected bucket size used by the random-graph
// solver core (spec.md §3: "typically 1500 for the solver core").
const defaultBucketSize = 1500

// Transform maps an arbitrary key into the byte sequence the store
// hashes. Callers that already have []byte keys can pass IdentityTransform.
type Transform func(key interface{}) []byte

// IdentityTransform treats the key as an already-encoded []byte.
func IdentityTransform(key interface{}) []byte {
	return key.([]byte)
}

// BucketedHashStore streams (signature, value) pairs into 256 on-disk
// shards (chosen by the top 8 bits of the signature) and later regroups
// them into logical buckets of a chosen expected size. See spec.md §4.2.
type BucketedHashStore struct {
	mu sync.Mutex

	dir       string
	transform Transform
	sigWords  int // 2 (Sig2) or 3 (Sig3)
	recSize   int // sigWords*8 + 8 (value word)

	shardFiles [numShards]*os.File
	shardBuf   [numShards]*bufio.Writer

	seed       uint64
	bucketSize int
	n          uint64

	checked    bool // report DuplicateSignature rather than silently accept
	hasValues  bool
	closed     bool
	iterOpened bool
}

// OpenStore creates a BucketedHashStore backed by 256 append-only shard
// files under tempDir. sigWords selects Sig2 (2) or Sig3 (3) signatures.
func OpenStore(transform Transform, tempDir string, sigWords int) (*BucketedHashStore, error) {
	if sigWords != 2 && sigWords != 3 {
		return nil, fmt.Errorf("store: invalid signature width %d", sigWords)
	}
	if transform == nil {
		transform = IdentityTransform
	}

	dir, err := os.MkdirTemp(tempDir, "sux-store-*")
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	s := &BucketedHashStore{
		dir:        dir,
		transform:  transform,
		sigWords:   sigWords,
		recSize:    sigWords*8 + 8,
		bucketSize: defaultBucketSize,
		checked:    true,
	}

	if err := s.openShards(); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	return s, nil
}

func (s *BucketedHashStore) openShards() error {
	for i := 0; i < numShards; i++ {
		fn := filepath.Join(s.dir, fmt.Sprintf("shard-%03d", i))
		fd, err := os.OpenFile(fn, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("store: temp shard: %w", err)
		}
		s.shardFiles[i] = fd
		s.shardBuf[i] = bufio.NewWriterSize(fd, 64*1024)
	}
	return nil
}

// SetBucketSize chooses the logical bucket size used on iteration.
func (s *BucketedHashStore) SetBucketSize(b int) {
	s.mu.Lock()
	s.bucketSize = b
	s.mu.Unlock()
}

// Reset discards any buffered signatures and truncates all shards,
// setting the current seed. Used to recover from a DuplicateSignature
// error by reseeding and re-adding the original keys.
func (s *BucketedHashStore) Reset(seed uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	for i := 0; i < numShards; i++ {
		if _, err := s.shardFiles[i].Seek(0, 0); err != nil {
			return err
		}
		if err := s.shardFiles[i].Truncate(0); err != nil {
			return err
		}
		s.shardBuf[i].Reset(s.shardFiles[i])
	}

	s.seed = seed
	s.n = 0
	s.iterOpened = false
	return nil
}

// Add hashes 'key' under the current seed and appends (signature, ordinal)
// to the shard chosen by the top 8 signature bits, where ordinal is the
// number of keys added before it.
func (s *BucketedHashStore) Add(key interface{}) error {
	return s.AddValue(key, uint64(s.n))
}

// AddValue is like Add but records an explicit ordinal/value for the key
// instead of the running count.
func (s *BucketedHashStore) AddValue(key interface{}, val uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.iterOpened {
		return fmt.Errorf("store: Add after Iter()")
	}

	kb := s.transform(key)
	words := s.hashWords(kb)

	shard := words[0] >> 56
	buf := s.shardBuf[shard]

	var rec [3*8 + 8]byte
	for i, w := range words {
		putU64(rec[i*8:i*8+8], w)
	}
	putU64(rec[s.sigWords*8:s.sigWords*8+8], val)

	if _, err := buf.Write(rec[:s.recSize]); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	s.n++
	return nil
}

func (s *BucketedHashStore) hashWords(key []byte) []uint64 {
	if s.sigWords == 3 {
		sig := hashKey3(key, s.seed)
		return sig[:]
	}
	sig := hashKey(key, s.seed)
	return sig[:]
}

// Close removes the temporary shard files. Using the store after Close
// is a programmer error.
func (s *BucketedHashStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	for i := 0; i < numShards; i++ {
		s.shardFiles[i].Close()
	}
	s.closed = true
	return os.RemoveAll(s.dir)
}

// Len returns the number of signatures currently buffered.
func (s *BucketedHashStore) Len() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// numBuckets computes NB = 2^ceil(log2(n/B)), per spec.md §4.2, with a
// floor of 1.
func (s *BucketedHashStore) numBuckets() int {
	if s.n == 0 || s.bucketSize <= 0 {
		return 1
	}
	target := (s.n + uint64(s.bucketSize) - 1) / uint64(s.bucketSize)
	if target <= 1 {
		return 1
	}
	log2 := bits.Len64(target - 1)
	return 1 << uint(log2)
}

// rec is one decoded (signature, value) pair read back from a shard.
type rec struct {
	words [3]uint64
	val   uint64
}

func less(a, b *rec, sigWords int) bool {
	for i := 0; i < sigWords; i++ {
		if a.words[i] != b.words[i] {
			return a.words[i] < b.words[i]
		}
	}
	return false
}

func equalSig(a, b *rec, sigWords int) bool {
	for i := 0; i < sigWords; i++ {
		if a.words[i] != b.words[i] {
			return false
		}
	}
	return true
}

// BucketIterator yields buckets in strictly increasing index order. It
// closes pending writes on creation; callers must consume a bucket
// (via Bucket()) before calling Next() again -- the returned Bucket may
// share a reused backing buffer.
type BucketIterator struct {
	s        *BucketedHashStore
	nb       int
	groupLen int // shards per bucket (NB < 256) ; 1 otherwise
	perShard int // buckets per shard (NB >= 256) ; 1 otherwise

	shard int
	pend  []rec // records loaded for the current shard-group, sorted

	subIdx int // which sub-bucket within pend we're about to emit

	cur *Bucket
	err error
	dup *DuplicateSignatureError
}

// Iter closes pending writes, then returns an iterator that yields
// buckets in strictly increasing index order.
func (s *BucketedHashStore) Iter() (*BucketIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	for i := 0; i < numShards; i++ {
		if err := s.shardBuf[i].Flush(); err != nil {
			return nil, fmt.Errorf("store: flush shard %d: %w", i, err)
		}
		if _, err := s.shardFiles[i].Seek(0, 0); err != nil {
			return nil, err
		}
	}

	s.iterOpened = true

	nb := s.numBuckets()
	it := &BucketIterator{s: s, nb: nb}
	if nb >= numShards {
		it.perShard = nb / numShards
	} else {
		it.groupLen = numShards / nb
	}
	return it, nil
}

// Next advances to the next bucket. It returns false when iteration is
// exhausted or an error (including *DuplicateSignatureError) occurred --
// callers must check Err() to distinguish the two.
func (it *BucketIterator) Next() bool {
	if it.err != nil {
		return false
	}

	if it.perShard > 0 {
		return it.nextFromShard()
	}
	return it.nextFromGroup()
}

// nextFromShard handles NB >= 256: one shard contributes 'perShard'
// consecutive bucket indices, derived from the next bits of
// signature[0] below the top byte.
func (it *BucketIterator) nextFromShard() bool {
	for {
		if it.pend == nil {
			if it.shard >= numShards {
				return false
			}
			recs, err := it.s.readShard(it.shard)
			if err != nil {
				it.err = err
				return false
			}
			it.pend = recs
			it.subIdx = 0
		}

		if it.subIdx >= it.perShard {
			it.shard++
			it.pend = nil
			continue
		}

		extraBits := bits.Len(uint(it.perShard - 1))
		shift := 64 - 8 - extraBits
		want := uint64(it.subIdx)

		lo := sort.Search(len(it.pend), func(i int) bool {
			return ((it.pend[i].words[0] >> uint(shift)) & ((1 << uint(extraBits)) - 1)) >= want
		})
		hi := sort.Search(len(it.pend), func(i int) bool {
			return ((it.pend[i].words[0] >> uint(shift)) & ((1 << uint(extraBits)) - 1)) > want
		})

		idx := uint64(it.shard)*uint64(it.perShard) + want
		it.subIdx++

		b, dupErr := makeBucket(idx, it.pend[lo:hi], it.s.sigWords, it.s.checked)
		if dupErr != nil {
			it.err = dupErr
			return false
		}
		it.cur = b
		return true
	}
}

// nextFromGroup handles NB < 256: groupLen consecutive shards are merged
// into a single logical bucket.
func (it *BucketIterator) nextFromGroup() bool {
	if it.shard >= numShards {
		return false
	}

	groupIdx := it.shard / it.groupLen
	var all []rec
	for i := 0; i < it.groupLen; i++ {
		recs, err := it.s.readShard(it.shard + i)
		if err != nil {
			it.err = err
			return false
		}
		all = append(all, recs...)
	}
	it.shard += it.groupLen

	sort.Slice(all, func(i, j int) bool { return less(&all[i], &all[j], it.s.sigWords) })

	b, dupErr := makeBucket(uint64(groupIdx), all, it.s.sigWords, it.s.checked)
	if dupErr != nil {
		it.err = dupErr
		return false
	}
	it.cur = b
	return true
}

// Bucket returns the bucket produced by the last successful Next() call.
func (it *BucketIterator) Bucket() *Bucket {
	return it.cur
}

// Err returns the error (if any) that stopped iteration, including a
// *DuplicateSignatureError when the store is checked.
func (it *BucketIterator) Err() error {
	return it.err
}

func makeBucket(idx uint64, recs []rec, sigWords int, checked bool) (*Bucket, *DuplicateSignatureError) {
	for i := 1; i < len(recs); i++ {
		if equalSig(&recs[i-1], &recs[i], sigWords) {
			if checked {
				return nil, &DuplicateSignatureError{Bucket: idx}
			}
		}
	}

	b := &Bucket{
		Index:    idx,
		Size:     len(recs),
		SigWords: sigWords,
	}
	b.Signatures = make([][3]uint64, len(recs))
	b.Values = make([]uint64, len(recs))
	for i, r := range recs {
		b.Signatures[i] = r.words
		b.Values[i] = r.val
	}
	return b, nil
}

// readShard loads every record of shard 'idx' into memory and sorts it
// by signature (ascending on signature[0], stable on ties across the
// full signature) -- spec.md §4.2 bucket-iteration steps 1-2.
func (s *BucketedHashStore) readShard(idx int) ([]rec, error) {
	fd := s.shardFiles[idx]
	st, err := fd.Stat()
	if err != nil {
		return nil, fmt.Errorf("store: stat shard %d: %w", idx, err)
	}

	n := int(st.Size()) / s.recSize
	if n == 0 {
		return nil, nil
	}

	adviseSequential(fd.Fd())
	buf := make([]byte, n*s.recSize)
	if _, err := fd.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("store: read shard %d: %w", idx, err)
	}

	recs := make([]rec, n)
	for i := 0; i < n; i++ {
		off := i * s.recSize
		for w := 0; w < s.sigWords; w++ {
			recs[i].words[w] = getU64(buf[off+w*8 : off+w*8+8])
		}
		recs[i].val = getU64(buf[off+s.sigWords*8 : off+s.sigWords*8+8])
	}

	sort.SliceStable(recs, func(i, j int) bool { return less(&recs[i], &recs[j], s.sigWords) })
	return recs, nil
}

// bucketIndexOf computes the same logical bucket index that Iter()
// assigns to a record whose first signature word is h0, for a store
// with nb buckets. Used at query time to locate a key's bucket without
// re-reading the store.
func bucketIndexOf(h0 uint64, nb int) uint64 {
	shard := h0 >> 56
	if nb >= numShards {
		perShard := nb / numShards
		extraBits := bits.Len(uint(perShard - 1))
		shift := 64 - 8 - extraBits
		sub := (h0 >> uint(shift)) & ((1 << uint(extraBits)) - 1)
		return shard*uint64(perShard) + sub
	}
	groupLen := numShards / nb
	return shard / uint64(groupLen)
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
