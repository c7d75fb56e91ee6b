package binlogrouter

import (
	"context"
	"fmt"
	"time"

	"github.com/mxproxy/corerouter/internal/binlogfmt"
)

// HandleEvent implements §4.5 "Event handling → file & state updates" for
// one fully reassembled, checksum-verified event. raw is the complete
// on-disk representation (header+body+trailing checksum) as received from
// the master, already stripped of any semi-sync prefix.
func (r *Router) HandleEvent(ctx context.Context, ev binlogfmt.Event, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.record(time.Now(), 1, uint64(len(raw)))

	if _, ok := ev.Data.(*binlogfmt.HeartbeatEventData); ok {
		// step 2: heartbeats are never written; no reply time or other
		// state is recorded for them.
		return nil
	}

	if ev.Header.IsArtificial() {
		return r.handleArtificial(ev)
	}

	pos := r.currentPos
	if err := r.files.WriteEvent(pos, raw, r.binlogPos); err != nil {
		return fatalErr("write_event", err)
	}
	r.currentPos = ev.Header.NextPos
	r.lastEventPos = pos

	if err := r.updateTransactionState(ctx, ev, pos); err != nil {
		return err
	}
	return nil
}

// handleArtificial implements step 3: artificial events are never written;
// a fake ROTATE fills any file-sequence gap, a fake GTID_LIST pads with an
// IGNORABLE_EVENT if the target position exceeds the current EOF.
func (r *Router) handleArtificial(ev binlogfmt.Event) error {
	switch data := ev.Data.(type) {
	case *binlogfmt.RotateEventData:
		return r.fillRotationGap(data.NextBinlog, uint32(data.Position))
	case *binlogfmt.GTIDListEventData:
		if ev.Header.NextPos > r.currentPos {
			gap := ev.Header.NextPos - r.currentPos
			if err := r.files.WriteIgnorable(r.currentPos, gap); err != nil {
				return wrapErr("pad_gtid_list", err)
			}
			r.currentPos = ev.Header.NextPos
		}
	}
	return nil
}

// fillRotationGap implements §4.5 step 3 / §8 scenario 1: a fake ROTATE
// whose file sequence is N+k creates k-1 empty files named N+1..N+k-1
// (magic bytes only) before opening N+k.
func (r *Router) fillRotationGap(nextFile string, startPos uint32) error {
	curSeq, stem, err := parseSeq(r.currentFile)
	if err != nil {
		return wrapErr("fill_rotation_gap", err)
	}
	nextSeq, _, err := parseSeq(nextFile)
	if err != nil {
		return wrapErr("fill_rotation_gap", err)
	}
	for seq := curSeq + 1; seq < nextSeq; seq++ {
		name := fmt.Sprintf("%s.%06d", stem, seq)
		if err := r.files.CreateEmpty(name); err != nil {
			return wrapErr("fill_rotation_gap", err)
		}
	}
	pos, err := r.files.Rotate(nextFile)
	if err != nil {
		return fatalErr("rotate", err)
	}
	r.currentFile = nextFile
	r.currentPos = pos
	r.binlogPos = pos
	_ = startPos // the master's reported start position is always post-magic after a fill
	return nil
}

func parseSeq(name string) (seq uint64, stem string, err error) {
	i := len(name)
	for i > 0 && name[i-1] != '.' {
		i--
	}
	if i == 0 {
		return 0, "", fmt.Errorf("binlogrouter: malformed binlog file name %q", name)
	}
	stem = name[:i-1]
	var n uint64
	for _, c := range name[i:] {
		if c < '0' || c > '9' {
			return 0, "", fmt.Errorf("binlogrouter: malformed binlog file name %q", name)
		}
		n = n*10 + uint64(c-'0')
	}
	return n, stem, nil
}

// updateTransactionState implements §4.5 steps 5-7.
func (r *Router) updateTransactionState(ctx context.Context, ev binlogfmt.Event, pos uint32) error {
	closed := false
	switch data := ev.Data.(type) {
	case *binlogfmt.GTIDEventData:
		r.trx = PendingTrx{
			State:      TrxStarted,
			StartPos:   pos,
			Domain:     data.DomainID,
			ServerID:   ev.Header.ServerID,
			Sequence:   data.Sequence,
			Standalone: data.IsStandalone(),
		}
		r.lastMariaDBGTID = r.trx.GTIDString()
		if r.trx.Standalone {
			r.trx.State = TrxStandaloneSeen
		}
	case *binlogfmt.QueryEventData:
		switch {
		case data.IsBegin():
			r.trx.State = TrxStarted
			r.trx.StartPos = pos
		case data.IsCommit():
			r.trx.State = TrxCommitted
			closed = true
		case r.trx.State == TrxStandaloneSeen:
			r.trx.State = TrxCommitted
			closed = true
		}
	case *binlogfmt.XIDEventData:
		r.trx.State = TrxCommitted
		closed = true
	}

	if !closed {
		return nil
	}
	r.trx.EndPos = ev.Header.NextPos
	r.binlogPos = r.currentPos

	if r.gtids != nil && r.trx.Sequence != 0 {
		if err := r.gtids.Upsert(ctx, r.trx.Domain, r.trx.ServerID, r.trx.Sequence, r.currentFile, r.trx.StartPos, r.trx.EndPos); err != nil {
			return wrapErr("gtid_upsert", err)
		}
	}
	r.trx = PendingTrx{}
	r.notifySlaves()
	return nil
}

// notifySlaves wakes any slave whose send cursor is behind the new
// binlog_position (§4.5 step 6, §4.6). The actual send happens on the
// fanout goroutine; this only marks slaves as having pending data.
func (r *Router) notifySlaves() {
	for _, s := range r.slaves {
		s.mu.Lock()
		s.Catchup = s.File == r.currentFile && s.Pos < r.binlogPos
		s.mu.Unlock()
	}
}
