package binlogfmt

import (
	"fmt"
	"hash/crc32"

	"github.com/mxproxy/corerouter/internal/wire"
)

// ChecksumSize is the trailing CRC32 occupied by every event once the FDE
// negotiates BINLOG_CHECKSUM_ALG_CRC32 (§4.4).
const ChecksumSize = 4

// DecodeEvent parses one event's header and, for the tracked kinds named in
// §3, its body; every other kind is left as a RawEvent holding its raw
// bytes so the router can forward it opaquely (§3: "All others pass through
// opaquely").
//
// checksumEnabled must reflect whether the stream's FDE reported CRC32
// checksums: when true, the trailing 4 bytes are excluded from the decoded
// body and are the caller's responsibility to verify (see VerifyCRC32).
func DecodeEvent(r *wire.Reader, checksumEnabled bool) (Event, error) {
	h := EventHeader{}
	if err := h.Decode(r); err != nil {
		return Event{}, err
	}
	bodySize := int(h.EventSize) - HeaderSize
	if checksumEnabled {
		bodySize -= ChecksumSize
	}
	if bodySize < 0 {
		return Event{}, fmt.Errorf("binlogfmt: event at type %s has impossible size %d", h.EventType, h.EventSize)
	}
	r.SetLimit(bodySize)

	var data interface{}
	var err error
	switch h.EventType {
	case FormatDescriptionEvent:
		fde := &FormatDescriptionEventData{}
		err = fde.Decode(r, h.EventSize)
		data = fde
	case RotateEvent:
		re := &RotateEventData{}
		err = re.Decode(r)
		data = re
	case QueryEvent:
		qe := &QueryEventData{}
		err = qe.Decode(r)
		data = qe
	case XIDEvent:
		xe := &XIDEventData{}
		err = xe.Decode(r)
		data = xe
	case MariaGTIDEvent:
		ge := &GTIDEventData{}
		err = ge.Decode(r)
		data = ge
	case MariaGTIDListEvent:
		gl := &GTIDListEventData{}
		err = gl.Decode(r)
		data = gl
	case MariaStartEncryptionEvent:
		se := &StartEncryptionEventData{}
		err = se.Decode(r)
		data = se
	case HeartbeatEvent:
		he := &HeartbeatEventData{}
		err = he.Decode(r)
		data = he
	case IgnorableEvent:
		ie := &IgnorableEventData{}
		err = ie.Decode(r)
		data = ie
	default:
		raw := &RawEvent{}
		raw.Body = r.Bytes(bodySize)
		err = r.Err
		data = raw
	}
	if err != nil {
		return Event{}, err
	}
	// Drain any trailing bytes the specific decoder didn't consume so the
	// reader is positioned at the checksum / next header.
	if e := r.Drain(); e != nil {
		return Event{}, e
	}
	return Event{Header: h, Data: data}, nil
}

// VerifyCRC32 computes CRC32 over header+body (everything but the trailing
// 4-byte checksum) and compares it to the value read from the stream
// (§4.4, §8 scenario 2). body must include the 19-byte header.
func VerifyCRC32(headerAndBody []byte, want uint32) bool {
	return crc32.ChecksumIEEE(headerAndBody) == want
}
