// chd_chunked_marshal.go -- marshal/unmarshal for EliasFano, ChunkedCHD
// and the assembled ChunkedFunction.
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

func (ef *EliasFano) marshal(w io.Writer) (int, error) {
	var hdr [12]byte
	le := binary.LittleEndian
	le.PutUint32(hdr[0:4], uint32(ef.n))
	le.PutUint32(hdr[4:8], uint32(ef.lowBits))

	wr := newErrWriter(w)
	n, _ := wr.Write(hdr[:])

	m, _ := ef.low.MarshalBinary(wr)
	n += m
	m, _ = ef.high.MarshalBinary(wr)
	n += m

	return n, wr.Error()
}

func unmarshalEliasFano(buf []byte) (*EliasFano, int, error) {
	if len(buf) < 12 {
		return nil, 0, ErrTooSmall
	}
	le := binary.LittleEndian
	n := int(le.Uint32(buf[0:4]))
	lowBits := uint(le.Uint32(buf[4:8]))

	off := 12
	low, nlow, err := unmarshalBitVector(buf[off:])
	if err != nil {
		return nil, 0, err
	}
	off += int(nlow)

	high, nhigh, err := unmarshalBitVector(buf[off:])
	if err != nil {
		return nil, 0, err
	}
	off += int(nhigh)

	ef := &EliasFano{n: n, lowBits: lowBits, low: low, high: high, highIdx: newRankIndex(high)}
	return ef, off, nil
}

func (c *ChunkedCHD) marshal(w io.Writer) (int, error) {
	var hdr [36]byte
	le := binary.LittleEndian
	le.PutUint64(hdr[0:8], c.P)
	le.PutUint64(hdr[8:16], c.LocalSeed)
	le.PutUint32(hdr[16:20], uint32(c.numBucks))
	le.PutUint64(hdr[20:28], c.HoleCount)
	le.PutUint64(hdr[28:36], c.CoeffBound)

	wr := newErrWriter(w)
	n, _ := wr.Write(hdr[:])

	m, _ := c.Coeffs.marshal(wr)
	n += m
	m, _ = c.Holes.MarshalBinary(wr)
	n += m

	return n, wr.Error()
}

func unmarshalChunkedCHD(buf []byte) (*ChunkedCHD, int, error) {
	if len(buf) < 36 {
		return nil, 0, ErrTooSmall
	}
	le := binary.LittleEndian
	p := le.Uint64(buf[0:8])
	localSeed := le.Uint64(buf[8:16])
	numBucks := int(le.Uint32(buf[16:20]))
	holeCount := le.Uint64(buf[20:28])
	coeffBound := le.Uint64(buf[28:36])

	off := 36
	coeffs, ncoeffs, err := unmarshalEliasFano(buf[off:])
	if err != nil {
		return nil, 0, err
	}
	off += ncoeffs

	holes, nholes, err := unmarshalBitVector(buf[off:])
	if err != nil {
		return nil, 0, err
	}
	off += int(nholes)

	c := &ChunkedCHD{
		P: p, LocalSeed: localSeed, Coeffs: coeffs, CoeffBound: coeffBound, numBucks: numBucks,
		Holes: holes, HoleRank: newRankIndex(holes), HoleCount: holeCount,
	}
	return c, off, nil
}

// MarshalBinary encodes the ChunkedFunction for durable storage.
func (f *ChunkedFunction) MarshalBinary(w io.Writer) (int, error) {
	var hdr [24]byte
	le := binary.LittleEndian
	hdr[0] = 1
	hdr[1] = byte(f.sigWords)
	le.PutUint64(hdr[8:16], f.globalSeed)
	le.PutUint32(hdr[16:20], uint32(f.numChunks))
	le.PutUint32(hdr[20:24], uint32(f.n))

	wr := newErrWriter(w)
	n, _ := wr.Write(hdr[:])

	m, _ := wr.Write(u64sToByteSlice(f.chunkBase))
	n += m

	for _, c := range f.chunks {
		cn, err := c.marshal(wr)
		n += cn
		if err != nil {
			return n, err
		}
	}

	return n, wr.Error()
}

func newChunkedFunction(buf []byte) (*ChunkedFunction, error) {
	if len(buf) < 24 {
		return nil, ErrTooSmall
	}
	le := binary.LittleEndian
	ver := buf[0]
	if ver != 1 {
		return nil, fmt.Errorf("mph: unsupported chd-chunked function version %d", ver)
	}
	sigWords := int(buf[1])
	globalSeed := le.Uint64(buf[8:16])
	numChunks := int(le.Uint32(buf[16:20]))
	n := int(le.Uint32(buf[20:24]))

	buf = buf[24:]

	need := (numChunks + 1) * 8
	if len(buf) < need {
		return nil, ErrTooSmall
	}
	chunkBase := make([]uint64, numChunks+1)
	copy(chunkBase, bsToUint64Slice(buf[:need]))
	buf = buf[need:]

	chunks := make([]*ChunkedCHD, numChunks)
	for i := 0; i < numChunks; i++ {
		c, nc, err := unmarshalChunkedCHD(buf)
		if err != nil {
			return nil, err
		}
		chunks[i] = c
		buf = buf[nc:]
	}

	f := &ChunkedFunction{
		globalSeed: globalSeed,
		sigWords:   sigWords,
		chunks:     chunks,
		chunkBase:  chunkBase,
		numChunks:  numChunks,
		n:          uint64(n),
	}
	return f, nil
}
