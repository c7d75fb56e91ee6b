package rwsplit

import (
	"context"
	"hash/crc32"

	"golang.org/x/sync/errgroup"
)

// SessionCmd is a command whose target is "all" (§4.8): a SET statement,
// USE, or similar, fanned out to every in-use backend.
type SessionCmd struct {
	Buffer           []byte
	ExpectedReplier  *Backend // the single backend whose reply reaches the client
}

// Dispatcher tracks per-session fan-out state across backends (§4.8, §5
// ordering guarantee: "a session command queued before a data query routes
// before that query on every in-use backend").
type Dispatcher struct {
	log              []SessionCmd
	expectedResponses int
}

// NewDispatcher returns an empty session-command log.
func NewDispatcher() *Dispatcher { return &Dispatcher{} }

// FanoutSessionCmd picks the targets for buf: every currently in-use
// backend, or the master (marked connected) if none are in use and
// reconnection is allowed. It records the command in the session-command
// log and returns the targets and the chosen replier; it does not send buf
// itself (SendToAll does that).
func (d *Dispatcher) FanoutSessionCmd(buf []byte, inUse []*Backend, master *Backend, masterReconnectionAllowed bool) (targets []*Backend, replier *Backend) {
	if len(inUse) == 0 {
		if !masterReconnectionAllowed {
			return nil, nil
		}
		master.SetConnected(true)
		inUse = []*Backend{master}
	}
	targets = append(targets, inUse...)

	// "Pick one replier (master if in use, else first)" (§4.8).
	for _, b := range inUse {
		if b.Role == RoleMaster {
			replier = b
			break
		}
	}
	if replier == nil {
		replier = inUse[0]
	}
	d.log = append(d.log, SessionCmd{Buffer: buf, ExpectedReplier: replier})
	d.expectedResponses++
	return targets, replier
}

// CanPipeline implements §4.8's concurrent-pipelining guard: a second
// normal read may be sent ahead of the first reply only when it targets the
// same backend as the previous plan, no transaction is open, no GTID sync
// is outstanding, and transaction_replay is either off or currently idle.
func CanPipeline(prev, next RoutingPlan, trxOpen bool, gtidSyncBusy bool, transactionReplayEnabled bool) bool {
	if trxOpen || gtidSyncBusy {
		return false
	}
	if transactionReplayEnabled && trxOpen {
		return false
	}
	if next.Target != TargetMaster && next.Target != TargetLastUsed {
		return false
	}
	return prev.Backend == next.Backend
}

// Checksum computes the replay checksum for one reply buffer under the
// configured mode (§4.9). result-only mode treats an OK packet (first byte
// 0x00 or 0xfe with a short payload) as contributing nothing so a retried
// auto-increment OK doesn't fail replay on a harmless value difference.
func Checksum(mode ChecksumMode, reply []byte, referencesLastInsertID bool) uint32 {
	if len(reply) == 0 {
		return 0
	}
	isOK := reply[0] == 0x00 || (reply[0] == 0xfe && len(reply) < 9)
	switch mode {
	case ChecksumResultOnly:
		if isOK {
			return 0
		}
	case ChecksumNoInsertID:
		if isOK || referencesLastInsertID {
			return 0
		}
	}
	return crc32.ChecksumIEEE(reply)
}

// FinalizeReply updates per-reply bookkeeping (§4.8 "per-reply bookkeeping"):
// decrements the outstanding response counter and, when a transaction is
// open, appends the statement and its checksum to the log.
func (d *Dispatcher) FinalizeReply(trx *Trx, stmtBuf, reply []byte, mode ChecksumMode, referencesLastInsertID bool) {
	if d.expectedResponses > 0 {
		d.expectedResponses--
	}
	if trx != nil {
		trx.AddStmt(stmtBuf, Checksum(mode, reply, referencesLastInsertID))
	}
}

func (d *Dispatcher) ExpectedResponses() int { return d.expectedResponses }

// SendToAll writes buf to every target concurrently via send, returning the
// first error encountered (the others still run to completion). This backs
// FanoutSessionCmd's "send to every in-use backend" step: the targets are
// independent connections, so there is no ordering requirement among them
// (§5 only orders a session command ahead of a later data query on each
// backend individually).
func SendToAll(ctx context.Context, targets []*Backend, buf []byte, send func(ctx context.Context, b *Backend, buf []byte) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, b := range targets {
		b := b
		g.Go(func() error {
			return send(ctx, b, buf)
		})
	}
	return g.Wait()
}
