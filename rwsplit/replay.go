package rwsplit

import (
	"hash/crc32"
	"time"

	"github.com/mxproxy/corerouter/internal/mysqlerr"
)

// ChecksumMode controls which parts of a reply feed the replay checksum
// (§4.9).
type ChecksumMode int

const (
	ChecksumFull ChecksumMode = iota
	ChecksumResultOnly
	ChecksumNoInsertID
)

// ReplayTrigger names why a replay started, purely for logging/metrics.
type ReplayTrigger int

const (
	ReplayTargetDisconnected ReplayTrigger = iota
	ReplayTargetMigrating
	ReplayIgnorableRollback
	ReplayChecksumMismatch
)

// Replay drives one transaction's re-execution against a new backend,
// following §4.9's five-step algorithm. It holds no network I/O itself —
// SendStmt is supplied by the caller so this type stays testable without a
// live backend.
type Replay struct {
	orig                 *Trx
	target               *Backend
	attempts             int
	maxAttempts          int
	timeout              time.Duration
	startedAt            time.Time
	interruptedQuery     []byte
	interruptedBytesSeen int // bytes of interruptedQuery's result the client already received
	restartOnMismatch    bool
}

// NewReplay snapshots trx as orig_trx and starts the replay clock (§4.9
// step 1). bytesSeen is how much of the interrupted query's result the
// client had already received before the failure, so Step can discard that
// many leading bytes of the replayed reply instead of resending them.
func NewReplay(trx *Trx, newTarget *Backend, interrupted []byte, bytesSeen int, maxAttempts int, timeout time.Duration, restartOnMismatch bool) *Replay {
	return &Replay{
		orig:                 trx,
		target:               newTarget,
		maxAttempts:          maxAttempts,
		timeout:              timeout,
		startedAt:            time.Now(),
		interruptedQuery:     interrupted,
		interruptedBytesSeen: bytesSeen,
		restartOnMismatch:    restartOnMismatch,
	}
}

// Step replays saved statements against send, comparing the checksum of
// each reply against the one recorded at capture time. It returns (done,
// remainder, err): done is true once every saved statement and the
// interrupted query, if any, has been replayed successfully; remainder is
// the part of the interrupted query's replayed reply the client has not
// already seen (§4.9 step 4: interruptedBytesSeen leading bytes of that
// reply are discarded before it reaches the client, since the client saw
// them from the original backend before the failure).
func (r *Replay) Step(send func(buf []byte) (reply []byte, err error)) (done bool, remainder []byte, err error) {
	r.attempts++
	if r.maxAttempts > 0 && r.attempts > r.maxAttempts {
		return false, nil, mysqlRouteErr("replay", mysqlerr.ReplayExhausted("trx_max_attempts exceeded"))
	}
	if r.timeout > 0 && time.Since(r.startedAt) > r.timeout {
		return false, nil, mysqlRouteErr("replay", mysqlerr.ReplayExhausted("trx_timeout exceeded"))
	}

	var replayed []Stmt
	for {
		stmt, ok := r.orig.PopStmt()
		if !ok {
			break
		}
		reply, serr := send(stmt.Buffer)
		if serr != nil {
			return false, nil, retryErr("replay", serr, stmt.Buffer)
		}
		if crc32.ChecksumIEEE(reply) != stmt.Checksum {
			if r.restartOnMismatch {
				// restart: put everything back in original order and retry
				// from the top on the next Step call.
				r.orig.Stmts = append(append(replayed, stmt), r.orig.Stmts...)
				return false, nil, nil
			}
			return false, nil, mysqlRouteErr("replay", mysqlerr.ReplayExhausted("checksum mismatch during replay"))
		}
		replayed = append(replayed, stmt)
	}

	if len(r.interruptedQuery) > 0 {
		reply, serr := send(r.interruptedQuery)
		if serr != nil {
			return false, nil, retryErr("replay", serr, r.interruptedQuery)
		}
		r.interruptedQuery = nil
		switch {
		case r.interruptedBytesSeen >= len(reply):
			remainder = nil
		default:
			remainder = reply[r.interruptedBytesSeen:]
		}
	}
	return true, remainder, nil
}

// Target is the backend the replay is running against.
func (r *Replay) Target() *Backend { return r.target }

// Unreplayable marks trx unreplayable once it exceeds trx_max_size (§4.9
// step 5) or holds more than maxStatements statements, a secondary
// statement-count guard that is off when maxStatements is 0: future
// failures on it close the session rather than retry.
func Unreplayable(trx *Trx, maxSize, maxStatements int) bool {
	if trx.Size > maxSize {
		trx.Unreplayable = true
	}
	if maxStatements > 0 && len(trx.Checksums) > maxStatements {
		trx.Unreplayable = true
	}
	return trx.Unreplayable
}

// ShouldReplay decides, per §4.9, whether a failure on an open transaction
// should trigger replay at all.
func ShouldReplay(trx *Trx, targetDown bool, migrating bool, ignorableRollback bool, retryOnDeadlock bool, checksumMismatch bool, retryOnMismatch bool) (bool, ReplayTrigger) {
	if trx == nil || trx.Unreplayable {
		return false, 0
	}
	switch {
	case targetDown:
		return true, ReplayTargetDisconnected
	case migrating:
		return true, ReplayTargetMigrating
	case ignorableRollback && retryOnDeadlock:
		return true, ReplayIgnorableRollback
	case checksumMismatch && retryOnMismatch:
		return true, ReplayChecksumMismatch
	}
	return false, 0
}
