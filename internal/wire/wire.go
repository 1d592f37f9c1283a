// Package wire frames every cached translation result (list page, point
// lookup, export) before it reaches a provider. The frame carries the
// generation observed when the result was computed, so a reader can drop an
// entry written before the key's last invalidation.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version    byte = 1
	kindSingle byte = 1
)

var (
	ErrCorrupt = errors.New("transcache: corrupt entry")
	magic4     = [...]byte{'T', 'R', 'C', 'C'}
)

const singleHeader = 4 + 1 + 1 + 8 + 4

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodeSingle frames one codec payload under generation gen:
// magic "TRCC"(4) | ver(1) | kind(1) | gen(u64 be) | vlen(u32 be) | payload(vlen)
func EncodeSingle(gen uint64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(singleHeader + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSingle)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

func DecodeSingle(b []byte) (gen uint64, payload []byte, err error) {
	if len(b) < singleHeader || !hasMagic(b) || b[4] != version || b[5] != kindSingle {
		return 0, nil, ErrCorrupt
	}

	off := 6

	gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// exact length: trailing bytes mean a foreign or truncated write
	if vlen < 0 || vlen != len(b)-off {
		return 0, nil, ErrCorrupt
	}

	return gen, b[off : off+vlen], nil
}
