// eliasfano_test.go -- test suite for EliasFano
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
	"testing"
)

func TestEliasFanoGet(t *testing.T) {
	assert := newAsserter(t)

	vals := []uint64{0, 3, 3, 7, 20, 21, 21, 21, 1000}
	ef := NewEliasFano(vals, 2000)

	assert(ef.Len() == len(vals), "len mismatch; exp %d, saw %d", len(vals), ef.Len())
	for i, v := range vals {
		got := ef.Get(i)
		assert(got == v, "Get(%d): got %d, want %d", i, got, v)
	}
}

func TestEliasFanoEmpty(t *testing.T) {
	assert := newAsserter(t)

	ef := NewEliasFano(nil, 100)
	assert(ef.Len() == 0, "expected empty EliasFano, len %d", ef.Len())
}

// An empty EliasFano must round-trip through marshal/unmarshal too: its
// low bit-vector has zero words, which unmarshalBitVector must accept
// rather than treat as corrupt input.
func TestEliasFanoEmptyMarshal(t *testing.T) {
	assert := newAsserter(t)

	ef := NewEliasFano(nil, 100)

	var buf bytes.Buffer
	_, err := ef.marshal(&buf)
	assert(err == nil, "marshal failed: %s", err)

	ef2, n, err := unmarshalEliasFano(buf.Bytes())
	assert(err == nil, "unmarshal failed: %s", err)
	assert(n == buf.Len(), "unmarshal consumed %d bytes, want %d", n, buf.Len())
	assert(ef2.Len() == 0, "expected empty EliasFano after unmarshal, len %d", ef2.Len())
}

func TestEliasFanoMarshal(t *testing.T) {
	assert := newAsserter(t)

	vals := []uint64{1, 1, 5, 9, 9, 9, 40}
	ef := NewEliasFano(vals, 100)

	var buf bytes.Buffer
	_, err := ef.marshal(&buf)
	assert(err == nil, "marshal failed: %s", err)

	ef2, n, err := unmarshalEliasFano(buf.Bytes())
	assert(err == nil, "unmarshal failed: %s", err)
	assert(n == buf.Len(), "unmarshal consumed %d bytes, want %d", n, buf.Len())
	assert(ef2.Len() == ef.Len(), "len mismatch after unmarshal; exp %d, saw %d", ef.Len(), ef2.Len())

	for i, v := range vals {
		got := ef2.Get(i)
		assert(got == v, "Get(%d) after unmarshal: got %d, want %d", i, got, v)
	}
}
