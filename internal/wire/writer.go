package wire

import "io"

// Writer assembles MySQL wire packets, splitting payloads longer than
// maxPacketSize into a sequence of full packets followed by a (possibly
// empty) final short packet, per §4.1/§4.6.
type Writer struct {
	wd  io.Writer
	buf []byte
	seq *uint8
	Err error
}

// NewWriter wraps w, writing packets with sequence numbers from *seq.
func NewWriter(w io.Writer, seq *uint8) *Writer {
	return &Writer{wd: w, buf: make([]byte, 4, headerSize+maxPacketSize), seq: seq}
}

func (w *Writer) flush() error {
	if w.Err != nil {
		return w.Err
	}
	for len(w.buf) >= headerSize+maxPacketSize {
		w.buf[0], w.buf[1], w.buf[2], w.buf[3] = 0xff, 0xff, 0xff, *w.seq
		*w.seq++
		if _, w.Err = w.wd.Write(w.buf[:headerSize+maxPacketSize]); w.Err != nil {
			return w.Err
		}
		copy(w.buf[4:], w.buf[headerSize+maxPacketSize:])
		w.buf = w.buf[0 : headerSize+len(w.buf)-(headerSize+maxPacketSize)]
	}
	return nil
}

// Close flushes any buffered full packets and writes the final (possibly
// zero-length) packet, completing the logical unit. A zero-length final
// packet is required whenever the preceding packet was exactly
// maxPacketSize bytes (§8 boundary behavior).
func (w *Writer) Close() error {
	if err := w.flush(); err != nil {
		return err
	}
	payload := len(w.buf) - headerSize
	w.buf[0], w.buf[1], w.buf[2], w.buf[3] = byte(payload), byte(payload>>8), byte(payload>>16), *w.seq
	*w.seq++
	_, err := w.wd.Write(w.buf)
	return err
}

func (w *Writer) Write(b []byte) (n int, err error) {
	for {
		if err := w.flush(); err != nil {
			return 0, err
		}
		available := headerSize + maxPacketSize - len(w.buf)
		if len(b) < available {
			available = len(b)
		}
		w.buf = append(w.buf, b[:available]...)
		n += available
		b = b[available:]
		if len(b) == 0 {
			return n, nil
		}
	}
}

// putUint writes v as an n-byte little-endian unsigned integer (n <= 8).
// Int1..Int8 are thin width-specific wrappers around it.
func (w *Writer) putUint(v uint64, n int) error {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = byte(v)
		v >>= 8
	}
	_, err := w.Write(b)
	return err
}

func (w *Writer) Int1(v uint8) error  { return w.putUint(uint64(v), 1) }
func (w *Writer) Int2(v uint16) error { return w.putUint(uint64(v), 2) }
func (w *Writer) Int3(v uint32) error { return w.putUint(uint64(v), 3) }
func (w *Writer) Int4(v uint32) error { return w.putUint(uint64(v), 4) }
func (w *Writer) Int8(v uint64) error { return w.putUint(v, 8) }

// IntN writes a length-encoded integer.
func (w *Writer) IntN(v uint64) error {
	var b []byte
	switch {
	case v < 251:
		b = []byte{byte(v)}
	case v < 1<<16:
		b = []byte{0xFC, byte(v), byte(v >> 8)}
	case v < 1<<24:
		b = []byte{0xFD, byte(v), byte(v >> 8), byte(v >> 16)}
	default:
		b = []byte{0xFE, byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24), byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56)}
	}
	_, err := w.Write(b)
	return err
}

func (w *Writer) String(v string) error {
	_, err := w.Write([]byte(v))
	return err
}

func (w *Writer) StringNull(v string) error {
	if _, err := w.Write([]byte(v)); err != nil {
		return err
	}
	return w.Int1(0)
}

func (w *Writer) BytesNull(v []byte) error {
	if _, err := w.Write(v); err != nil {
		return err
	}
	return w.Int1(0)
}

func (w *Writer) Bytes1(v []byte) error {
	if err := w.Int1(uint8(len(v))); err != nil {
		return err
	}
	_, err := w.Write(v)
	return err
}

func (w *Writer) BytesN(v []byte) error {
	if err := w.IntN(uint64(len(v))); err != nil {
		return err
	}
	_, err := w.Write(v)
	return err
}

func (w *Writer) StringN(v string) error {
	if err := w.IntN(uint64(len(v))); err != nil {
		return err
	}
	_, err := w.Write([]byte(v))
	return err
}

// ComQuery frames and sends a COM_QUERY packet, closing the logical unit.
func (w *Writer) ComQuery(q string) error {
	w.Int1(ComQuery)
	w.String(q)
	return w.Close()
}
