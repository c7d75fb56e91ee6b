package binlogrouter

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mxproxy/corerouter/internal/binlogcrypt"
	"github.com/mxproxy/corerouter/internal/binlogfmt"
	"github.com/mxproxy/corerouter/internal/metrics"
	"github.com/mxproxy/corerouter/internal/wire"
)

// semiSyncMagic is the first byte of the 2-byte (0xef, ack-flag) prefix
// prepended to an event when semi-sync replication is enabled (§4.1).
const semiSyncMagic = 0xef

// ReceiveEvent implements §4.4's reassembly/CRC/decrypt pipeline for one
// complete logical event already reassembled from wire packets. It strips
// any semi-sync prefix, verifies the CRC32 trailer when checksumEnabled,
// decrypts via encCtx when the router has an active encryption context,
// decodes the event, and finally hands it to HandleEvent.
//
// It returns the semi-sync ACK-requested flag so the caller can send the
// ACK packet back to the master once the event is durably written (§4.1,
// §4.5 step 7).
func (r *Router) ReceiveEvent(ctx context.Context, raw []byte, checksumEnabled bool, encCtx *binlogcrypt.Context, firstEncPos uint32, m *metrics.Registry) (ackRequested bool, err error) {
	if len(raw) >= 2 && raw[0] == semiSyncMagic {
		ackRequested = raw[1] != 0
		raw = raw[2:]
	}

	if len(raw) < binlogfmt.HeaderSize {
		return ackRequested, fatalErr("receive_event", fmt.Errorf("event shorter than header: %d bytes", len(raw)))
	}

	if checksumEnabled {
		if len(raw) < binlogfmt.ChecksumSize {
			return ackRequested, fatalErr("receive_event", fmt.Errorf("event too short for checksum trailer"))
		}
		body, trailer := raw[:len(raw)-binlogfmt.ChecksumSize], raw[len(raw)-binlogfmt.ChecksumSize:]
		want := uint32(trailer[0]) | uint32(trailer[1])<<8 | uint32(trailer[2])<<16 | uint32(trailer[3])<<24
		if !binlogfmt.VerifyCRC32(body, want) {
			if m != nil {
				m.BadCRC.Inc()
			}
			return ackRequested, &RouterError{Op: "verify_crc", Err: fmt.Errorf("CRC32 mismatch"), Fatal: true}
		}
	}

	pos := r.currentPos
	if encCtx != nil && pos >= firstEncPos {
		if err := encCtx.Decrypt(raw, pos); err != nil {
			return ackRequested, fatalErr("decrypt", err)
		}
	}

	r2 := wire.NewRawReader(bytes.NewReader(raw))
	ev, err := binlogfmt.DecodeEvent(r2, checksumEnabled)
	if err != nil {
		return ackRequested, wrapErr("decode_event", err)
	}

	if m != nil {
		m.Events.Inc()
	}

	if err := r.HandleEvent(ctx, ev, raw); err != nil {
		return ackRequested, err
	}
	return ackRequested, nil
}

// SemiSyncAck builds the ACK packet `{flag:0xef, position:u64le, file:bytes}`
// sent back to the master after a durable write when requested (§4.1).
// Per the §9 open question, the original sends the filename bytes with no
// terminating byte; that behavior is preserved here rather than silently
// "fixed" with a NUL terminator, since it matches what MySQL's own
// semi-sync plugin expects on the wire.
func SemiSyncAck(file string, pos uint64) []byte {
	buf := make([]byte, 1+8+len(file))
	buf[0] = semiSyncMagic
	for i := 0; i < 8; i++ {
		buf[1+i] = byte(pos >> (8 * i))
	}
	copy(buf[9:], file)
	return buf
}
