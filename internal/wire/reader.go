// Package wire implements the MySQL/MariaDB client/server packet framing
// (length:u24, seq:u8, payload) and the byte-level codec built on top of it:
// length-encoded integers and strings, the handshake dialogue, and the
// authentication plugins needed to register as a replica.
package wire

import (
	"bytes"
	"io"
)

const (
	headerSize    = 4
	maxPacketSize = 1<<24 - 1
	readChunk     = 4096 // minimum growth increment when the buffer is full
)

// packetReader turns the length-prefixed wire packet stream into a plain
// io.Reader, concatenating packets across a length==maxPacketSize boundary
// (§4.1: a packet whose payload is exactly 2^24-1 bytes signals continuation).
type packetReader struct {
	rd   io.Reader
	seq  *uint8
	last bool
	size int
}

func (r *packetReader) Read(p []byte) (int, error) {
	if r.size == 0 {
		if r.last {
			return 0, io.EOF
		}
		h := make([]byte, headerSize)
		if _, err := io.ReadFull(r.rd, h); err != nil {
			if err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		r.size = int(uint32(h[0]) | uint32(h[1])<<8 | uint32(h[2])<<16)
		*r.seq = h[3] + 1
		if r.size < maxPacketSize {
			r.last = true
			if r.size == 0 {
				return 0, io.EOF
			}
		}
	}
	n, err := io.LimitReader(r.rd, int64(r.size)).Read(p)
	r.size -= n
	if n > 0 {
		return n, nil
	}
	if err == io.EOF {
		return 0, io.ErrUnexpectedEOF
	}
	return 0, err
}

// Reader decodes MySQL wire-protocol values out of a reassembled logical
// packet (or event) stream. limit, when >= 0, bounds how many more bytes may
// be consumed before the current packet/event ends.
type Reader struct {
	rd    io.Reader
	Err   error
	buf   []byte
	off   int
	limit int
}

// NewReader wraps conn in a Reader that reassembles wire packets, tracking
// seq for the caller to reuse on the next write.
func NewReader(r io.Reader, seq *uint8) *Reader {
	return &Reader{rd: &packetReader{rd: r, seq: seq}, limit: -1}
}

// NewRawReader wraps an already-framed byte stream (e.g. a binlog file)
// with no packet reassembly.
func NewRawReader(r io.Reader) *Reader {
	return &Reader{rd: r, limit: -1}
}

// SetLimit bounds the number of bytes that may still be read from the
// current logical unit; -1 means unbounded.
func (r *Reader) SetLimit(n int) { r.limit = n }

// Limit returns the current limit.
func (r *Reader) Limit() int { return r.limit }

func (r *Reader) Read(p []byte) (int, error) {
	if len(r.buffer()) == 0 {
		if err := r.readMore(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.buffer())
	r.Skip(n)
	return n, nil
}

// readMore pulls at least one more byte from the underlying stream,
// compacting or growing the buffer first if there's no room left.
// Already-consumed bytes below off are dropped; once there's nothing left
// to compact, capacity doubles (with a minimum readChunk step) rather than
// growing by a fixed increment, so long-lived readers of many small
// packets don't keep reallocating at the same small size.
func (r *Reader) readMore() error {
	if r.Err != nil {
		return r.Err
	}
	if r.limit >= 0 && len(r.buf)-r.off >= r.limit {
		return io.EOF
	}
	if r.off == len(r.buf) {
		r.buf = r.buf[:0]
		r.off = 0
	} else if r.off > 0 {
		r.buf = append(r.buf[:0], r.buf[r.off:]...)
		r.off = 0
	}
	if len(r.buf) == cap(r.buf) {
		grown := make([]byte, len(r.buf), 2*cap(r.buf)+readChunk)
		copy(grown, r.buf)
		r.buf = grown
	}
	n, err := r.rd.Read(r.buf[len(r.buf):cap(r.buf)])
	r.buf = r.buf[:len(r.buf)+n]
	if err == io.EOF {
		return io.EOF
	}
	r.Err = err
	return r.Err
}

func (r *Reader) buffer() []byte {
	buf := r.buf[r.off:]
	if r.limit >= 0 && len(buf) > r.limit {
		return buf[:r.limit]
	}
	return buf
}

func (r *Reader) ensure(n int) error {
	if r.limit >= 0 && n > r.limit {
		r.Err = io.ErrUnexpectedEOF
		return r.Err
	}
	for r.Err == nil && n > len(r.buffer()) {
		if r.readMore() == io.EOF {
			r.Err = io.ErrUnexpectedEOF
			break
		}
	}
	return r.Err
}

// Peek returns the next byte without consuming it.
func (r *Reader) Peek() (byte, error) {
	if err := r.ensure(1); err != nil {
		return 0, err
	}
	return r.buffer()[0], nil
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) error {
	if r.Err != nil {
		return r.Err
	}
	if r.limit >= 0 && n > r.limit {
		r.Err = io.ErrUnexpectedEOF
		return r.Err
	}
	for n > 0 {
		if len(r.buffer()) == 0 {
			if r.readMore() == io.EOF {
				r.Err = io.ErrUnexpectedEOF
			}
			if r.Err != nil {
				return r.Err
			}
		}
		m := n
		if m > len(r.buffer()) {
			m = len(r.buffer())
		}
		r.off += m
		n -= m
		if r.limit >= 0 {
			r.limit -= m
		}
	}
	return nil
}

// Drain discards whatever remains of the current limited unit.
func (r *Reader) Drain() error {
	if r.Err == io.ErrUnexpectedEOF {
		r.Err = nil
	}
	for r.Err == nil {
		r.Skip(len(r.buffer()))
		if r.readMore() == io.EOF {
			return nil
		}
	}
	return r.Err
}

// More reports whether at least one more byte is available.
func (r *Reader) More() bool {
	if r.Err != nil {
		return false
	}
	if len(r.buffer()) > 0 || r.limit > 0 {
		return true
	}
	return r.readMore() == nil
}

// uintN reads an n-byte little-endian unsigned integer (n <= 8) and advances
// past it. Int1..Int8 are thin width-specific wrappers kept for callers that
// want a concrete return type instead of always widening to uint64.
func (r *Reader) uintN(n int) uint64 {
	if err := r.ensure(n); err != nil {
		return 0
	}
	buf := r.buffer()
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	r.Skip(n)
	return v
}

// Int1, Int2, Int3, Int4, Int6, Int8 read little-endian fixed-width integers.

func (r *Reader) Int1() uint8  { return uint8(r.uintN(1)) }
func (r *Reader) Int2() uint16 { return uint16(r.uintN(2)) }
func (r *Reader) Int3() uint32 { return uint32(r.uintN(3)) }
func (r *Reader) Int4() uint32 { return uint32(r.uintN(4)) }
func (r *Reader) Int6() uint64 { return r.uintN(6) }
func (r *Reader) Int8() uint64 { return r.uintN(8) }

// IntN reads a length-encoded integer.
func (r *Reader) IntN() uint64 {
	b := r.Int1()
	if r.Err != nil {
		return 0
	}
	switch b {
	case 0xfc:
		return uint64(r.Int2())
	case 0xfd:
		return uint64(r.Int3())
	case 0xfe:
		return r.Int8()
	default:
		return uint64(b)
	}
}

func (r *Reader) bytesInternal(n int) []byte {
	if err := r.ensure(n); err != nil {
		return nil
	}
	v := r.buffer()[:n]
	r.Skip(n)
	return v
}

// Bytes reads and copies n bytes.
func (r *Reader) Bytes(n int) []byte {
	return append([]byte(nil), r.bytesInternal(n)...)
}

// String reads n bytes as a string.
func (r *Reader) String(n int) string {
	return string(r.bytesInternal(n))
}

func (r *Reader) bytesNullInternal() []byte {
	if r.Err != nil {
		return nil
	}
	i := 0
	for {
		if i == len(r.buffer()) {
			if r.readMore() != nil {
				return nil
			}
		}
		if j := bytes.IndexByte(r.buffer()[i:], 0); j != -1 {
			v := r.buffer()[:i+j]
			r.Skip(i + j + 1)
			return v
		}
		i = len(r.buffer())
	}
}

// BytesNull reads a NUL-terminated byte string.
func (r *Reader) BytesNull() []byte { return append([]byte(nil), r.bytesNullInternal()...) }

// StringNull reads a NUL-terminated string.
func (r *Reader) StringNull() string { return string(r.bytesNullInternal()) }

func (r *Reader) bytesEOFInternal() []byte {
	for {
		if r.Err != nil {
			return nil
		}
		if r.readMore() == io.EOF {
			v := r.buffer()
			r.Skip(len(v))
			return v
		}
	}
}

// BytesEOF reads to the end of the current limited unit.
func (r *Reader) BytesEOF() []byte { return append([]byte(nil), r.bytesEOFInternal()...) }

// StringEOF reads to the end of the current limited unit as a string.
func (r *Reader) StringEOF() string { return string(r.bytesEOFInternal()) }

// StringN reads a length-encoded string.
func (r *Reader) StringN() string {
	l := r.IntN()
	if r.Err != nil {
		return ""
	}
	return r.String(int(l))
}
