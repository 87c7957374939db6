package fuse

import (
	"bytes"
	"encoding/binary"
)

// argReader pops individual FUSE arguments off of the data slice through a
// bounds-checked cursor. Any accessor that runs out of data panics with
// ErrInsufficientData, allowing for recovery at the decode entry point. No
// accessor assumes the buffer satisfies any struct alignment.
type argReader struct {
	data []byte
	off  int
}

// take consumes n bytes without copying. The returned slice aliases the
// receive buffer.
func (ar *argReader) take(n int) []byte {
	if n < 0 || len(ar.data)-ar.off < n {
		panic(ErrInsufficientData)
	}
	res := ar.data[ar.off : ar.off+n]
	ar.off += n
	return res
}

func (ar *argReader) U16() uint16 {
	return binary.NativeEndian.Uint16(ar.take(2))
}

func (ar *argReader) U32() uint32 {
	return binary.NativeEndian.Uint32(ar.take(4))
}

func (ar *argReader) U64() uint64 {
	return binary.NativeEndian.Uint64(ar.take(8))
}

func (ar *argReader) I64() int64 {
	return int64(ar.U64())
}

// Skip discards n bytes, typically padding.
func (ar *argReader) Skip(n int) {
	ar.take(n)
}

// String pops a NUL-terminated string. The terminator is consumed but not
// included in the result.
func (ar *argReader) String() string {
	buf := ar.data[ar.off:]
	nul := bytes.IndexByte(buf, 0)
	if nul == -1 {
		panic(ErrInsufficientData)
	}
	res := string(buf[:nul])
	ar.off += nul + 1
	return res
}

// Bytes pops n bytes. Unlike take, the result does not alias the receive
// buffer.
func (ar *argReader) Bytes(n int) []byte {
	res := make([]byte, n)
	copy(res, ar.take(n))
	return res
}

// Rest pops everything that remains.
func (ar *argReader) Rest() []byte {
	return ar.Bytes(len(ar.data) - ar.off)
}

// Remaining reports how many unread bytes are left.
func (ar *argReader) Remaining() int {
	return len(ar.data) - ar.off
}

// argWriter queues individual FUSE arguments onto a growing data slice.
type argWriter struct {
	buf []byte
}

func (aw *argWriter) U16(v uint16) {
	aw.buf = binary.NativeEndian.AppendUint16(aw.buf, v)
}

func (aw *argWriter) U32(v uint32) {
	aw.buf = binary.NativeEndian.AppendUint32(aw.buf, v)
}

func (aw *argWriter) U64(v uint64) {
	aw.buf = binary.NativeEndian.AppendUint64(aw.buf, v)
}

func (aw *argWriter) I32(v int32) {
	aw.U32(uint32(v))
}

func (aw *argWriter) I64(v int64) {
	aw.U64(uint64(v))
}

func (aw *argWriter) Bytes(b []byte) {
	aw.buf = append(aw.buf, b...)
}

// String writes s as a NUL-terminated C string.
func (aw *argWriter) String(s string) {
	aw.buf = append(aw.buf, s...)
	aw.buf = append(aw.buf, 0)
}

// Pad writes n zero bytes.
func (aw *argWriter) Pad(n int) {
	aw.buf = append(aw.buf, make([]byte, n)...)
}

// Len reports the number of bytes written so far.
func (aw *argWriter) Len() int { return len(aw.buf) }
