// function_marshal.go -- marshal/unmarshal for the solver-based Function,
// following the same header-then-body shape as bbhash_marshal.go and
// chd_marshal.go.
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
	"fmt"
	"io"
)

// marshal writes the packed cell array: uint32 width, uint64 n, uint64
// nwords, then the raw words.
func (p *packedArray) marshal(w io.Writer) (int, error) {
	var hdr [20]byte
	le := binary.LittleEndian
	le.PutUint32(hdr[0:4], uint32(p.width))
	le.PutUint64(hdr[4:12], uint64(p.n))
	le.PutUint64(hdr[12:20], uint64(len(p.words)))

	n, err := writeAll(w, hdr[:])
	if err != nil {
		return n, err
	}
	m, err := writeAll(w, u64sToByteSlice(p.words))
	return n + m, err
}

func unmarshalPackedArray(buf []byte) (*packedArray, int, error) {
	if len(buf) < 20 {
		return nil, 0, ErrTooSmall
	}
	le := binary.LittleEndian
	width := le.Uint32(buf[0:4])
	n := le.Uint64(buf[4:12])
	nwords := le.Uint64(buf[12:20])

	need := 20 + int(nwords)*8
	if len(buf) < need {
		return nil, 0, ErrTooSmall
	}

	words := make([]uint64, nwords)
	copy(words, bsToUint64Slice(buf[20:need]))

	p := &packedArray{width: uint(width), n: int(n), words: words}
	return p, need, nil
}

// MarshalBinary encodes the Function into a binary form suitable for
// durable storage. See dbwriter.go's header for the surrounding file
// format; this body starts immediately after the generic MPH header.
func (f *Function) MarshalBinary(w io.Writer) (int, error) {
	var hdr [24]byte
	le := binary.LittleEndian

	hdr[0] = 1 // version
	hdr[1] = byte(f.sigWords)
	hdr[2] = byte(f.degree)
	hdr[3] = byte(f.width)
	if f.Signed {
		hdr[4] = 1
	}
	le.PutUint64(hdr[8:16], f.globalSeed)
	le.PutUint32(hdr[16:20], uint32(f.numBuckets))
	le.PutUint32(hdr[20:24], uint32(f.n))

	wr := newErrWriter(w)
	n, _ := wr.Write(hdr[:])

	offBytes := u64sToByteSlice(f.offsets)
	m, _ := wr.Write(offBytes)
	n += m

	m, _ = wr.Write(f.attempts)
	n += m

	cn, err := f.cells.marshal(wr)
	n += cn
	if err != nil {
		return n, err
	}

	return n, wr.Error()
}

// newFunction reconstructs a Function from a previously marshaled
// buffer (assumed memory-mapped).
func newFunction(buf []byte) (*Function, error) {
	if len(buf) < 24 {
		return nil, ErrTooSmall
	}
	le := binary.LittleEndian

	ver := buf[0]
	if ver != 1 {
		return nil, fmt.Errorf("mph: unsupported solver function version %d", ver)
	}
	sigWords := int(buf[1])
	degree := Degree(buf[2])
	width := uint(buf[3])
	signed := buf[4] != 0
	globalSeed := le.Uint64(buf[8:16])
	numBuckets := int(le.Uint32(buf[16:20]))
	n := int(le.Uint32(buf[20:24]))

	buf = buf[24:]

	noffsets := numBuckets + 1
	need := noffsets * 8
	if len(buf) < need {
		return nil, ErrTooSmall
	}
	offsets := make([]uint64, noffsets)
	copy(offsets, bsToUint64Slice(buf[:need]))
	buf = buf[need:]

	if len(buf) < numBuckets {
		return nil, ErrTooSmall
	}
	attempts := make([]byte, numBuckets)
	copy(attempts, buf[:numBuckets])
	buf = buf[numBuckets:]

	cells, _, err := unmarshalPackedArray(buf)
	if err != nil {
		return nil, err
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
		n:          n,
		Signed:     signed,
	}
	return f, nil
}
