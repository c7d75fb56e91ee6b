package binlogrouter

import (
	"bytes"
	"fmt"
	"os"

	"github.com/mxproxy/corerouter/internal/binlogfmt"
	"github.com/mxproxy/corerouter/internal/wire"
)

// RecoverStatus is the 0/1/2 result taxonomy of §4.2 recover.
type RecoverStatus int

const (
	RecoverOK RecoverStatus = iota
	RecoverError
	RecoverTruncated
)

// Recover replays the current file from offset 4, validating each header
// and tracking transaction state, per §4.2 recover / §8 scenario 3. On a
// malformed event (including a header cut short by EOF), a next_pos
// mismatch or a transaction still open at EOF it returns the last known
// safe commit offset with RecoverError; when fix is true it also truncates
// the file to that offset and fsyncs, returning RecoverTruncated.
func (m *FileManager) Recover(name string, checksumEnabled bool, fix bool) (pos uint32, status RecoverStatus, err error) {
	path := m.Path(name)
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return 0, RecoverError, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, RecoverError, err
	}
	size := uint32(info.Size())

	pos = uint32(len(FileMagic))
	lastSafe := pos
	var trx PendingTrx

	for pos < size {
		hdrBuf := make([]byte, binlogfmt.HeaderSize)
		if _, rerr := f.ReadAt(hdrBuf, int64(pos)); rerr != nil {
			err = rerr
			break
		}
		hdr := binlogfmt.GetHeader(hdrBuf)
		if hdr.EventSize < binlogfmt.HeaderSize {
			err = fmt.Errorf("binlogrouter: recover: impossible event size %d at pos %d", hdr.EventSize, pos)
			break
		}
		if hdr.EventType != binlogfmt.RotateEvent && hdr.NextPos != pos+hdr.EventSize {
			err = fmt.Errorf("binlogrouter: recover: next_pos mismatch at pos %d: got %d want %d", pos, hdr.NextPos, pos+hdr.EventSize)
			break
		}

		body := make([]byte, hdr.EventSize)
		copy(body, hdrBuf)
		if _, rerr := f.ReadAt(body[binlogfmt.HeaderSize:], int64(pos)+int64(binlogfmt.HeaderSize)); rerr != nil {
			err = rerr
			break
		}

		r := wire.NewRawReader(bytes.NewReader(body))
		ev, derr := binlogfmt.DecodeEvent(r, checksumEnabled)
		if derr != nil {
			err = derr
			break
		}

		trackTransaction(&trx, ev, pos)
		if trx.State == TrxNone || trx.State == TrxCommitted {
			lastSafe = hdr.NextPos
		}

		if hdr.EventType == binlogfmt.RotateEvent {
			pos = hdr.NextPos
			break
		}
		pos = hdr.NextPos
	}

	// Reaching EOF with a transaction still open (no COMMIT/XID/standalone
	// close seen) means the process was killed mid-transaction: the file
	// is only safe up to the last closed transaction (§3 "After a crash,
	// the file is truncated to binlog_position", §8 scenario 3).
	if err == nil && (trx.State == TrxStarted || trx.State == TrxStandaloneSeen) {
		err = fmt.Errorf("binlogrouter: recover: incomplete transaction at pos %d", trx.StartPos)
	}

	if err != nil {
		status = RecoverError
		if fix {
			if terr := f.Truncate(int64(lastSafe)); terr != nil {
				return lastSafe, RecoverError, fmt.Errorf("recover: %v (truncate failed: %w)", err, terr)
			}
			if serr := f.Sync(); serr != nil {
				return lastSafe, RecoverError, serr
			}
			status = RecoverTruncated
		}
		return lastSafe, status, nil
	}
	return pos, RecoverOK, nil
}

// trackTransaction mirrors §4.5 step 5's state transitions.
func trackTransaction(trx *PendingTrx, ev binlogfmt.Event, pos uint32) {
	switch data := ev.Data.(type) {
	case *binlogfmt.GTIDEventData:
		*trx = PendingTrx{
			State:      TrxStarted,
			StartPos:   pos,
			Domain:     data.DomainID,
			Sequence:   data.Sequence,
			Standalone: data.IsStandalone(),
		}
		if trx.Standalone {
			trx.State = TrxStandaloneSeen
		}
	case *binlogfmt.QueryEventData:
		if data.IsBegin() {
			trx.State = TrxStarted
			trx.StartPos = pos
		} else if data.IsCommit() {
			trx.State = TrxCommitted
			trx.EndPos = ev.Header.NextPos
		} else if trx.State == TrxStandaloneSeen {
			trx.State = TrxCommitted
			trx.EndPos = ev.Header.NextPos
		}
	case *binlogfmt.XIDEventData:
		trx.State = TrxCommitted
		trx.EndPos = ev.Header.NextPos
	}
}
