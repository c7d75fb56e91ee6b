package rwsplit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mxproxy/corerouter/internal/mysqlerr"
)

// CausalMode is one of the seven causal_reads settings from §4.8.
type CausalMode int

const (
	CausalOff CausalMode = iota
	CausalLocal
	CausalGlobal
	CausalFast
	CausalFastGlobal
	CausalUniversal
	CausalFastUniversal
)

// SessionGTID is the session's replay cursor: the GTID that must have been
// applied on a slave before a causal read is safe.
type SessionGTID struct {
	Domain   uint32
	Sequence uint64
}

// CausalPlan is what the dispatcher does to satisfy causal-reads for one
// read, before it reaches a slave.
type CausalPlan struct {
	// WaitQuery, when non-empty, must be sent ahead of (local/global) or
	// fused with (fast path has none) the user's query.
	WaitQuery string
	// UseMaster forces the read onto the master instead of a slave (fast
	// modes with no fresh-enough candidate).
	UseMaster bool
	// Candidate is the chosen slave, or nil if UseMaster.
	Candidate *Backend
}

// PlanCausalRead implements §4.8's five causal-reads behaviors. probe
// is the result of `SELECT @@gtid_current_pos` on the master, used only by
// the universal/fast-universal modes; callers that haven't probed pass a
// zero-value SessionGTID and ignore it for the other modes.
func PlanCausalRead(mode CausalMode, sess SessionGTID, probe SessionGTID, timeout time.Duration, candidates []*Backend, policy SlavePolicy, now time.Time) CausalPlan {
	switch mode {
	case CausalOff:
		return CausalPlan{Candidate: selectSlave(candidates, policy, now)}

	case CausalLocal, CausalGlobal:
		b := selectSlave(candidates, policy, now)
		return CausalPlan{
			WaitQuery: masterGTIDWait(sess, timeout),
			Candidate: b,
		}

	case CausalUniversal:
		b := selectSlave(candidates, policy, now)
		return CausalPlan{
			WaitQuery: masterGTIDWait(probe, timeout),
			Candidate: b,
		}

	case CausalFast, CausalFastGlobal:
		b := freshSlave(candidates, sess, policy, now)
		if b == nil {
			return CausalPlan{UseMaster: true}
		}
		return CausalPlan{Candidate: b}

	case CausalFastUniversal:
		b := freshSlave(candidates, probe, policy, now)
		if b == nil {
			return CausalPlan{UseMaster: true}
		}
		return CausalPlan{Candidate: b}
	}
	return CausalPlan{UseMaster: true}
}

// freshSlave returns the best-scoring candidate whose observed gtid_pos for
// the domain is at or past sess.Sequence (§8: "no slave is selected whose
// observed gtid_pos[domain] < session.gtid.sequence").
func freshSlave(candidates []*Backend, sess SessionGTID, policy SlavePolicy, now time.Time) *Backend {
	var fresh []*Backend
	for _, b := range candidates {
		if b.GTIDPos(sess.Domain) >= sess.Sequence {
			fresh = append(fresh, b)
		}
	}
	return selectSlave(fresh, policy, now)
}

func masterGTIDWait(g SessionGTID, timeout time.Duration) string {
	return fmt.Sprintf("SELECT MASTER_GTID_WAIT('%d-%d', %.3f)", g.Domain, g.Sequence, timeout.Seconds())
}

// StmtExecuteWaitGuard builds the kill-on-timeout guard §4.8 requires ahead
// of COM_STMT_EXECUTE, since a multi-statement MASTER_GTID_WAIT prefix isn't
// possible there.
func StmtExecuteWaitGuard(g SessionGTID, timeout time.Duration) string {
	return fmt.Sprintf("IF MASTER_GTID_WAIT('%d-%d', %.3f) <> 0 THEN KILL CONNECTION_ID(); END IF",
		g.Domain, g.Sequence, timeout.Seconds())
}

// CausalTimeoutOutcome decides what happens when a causal-reads wait times
// out (§8 scenario 4): outside a transaction the query is re-routed to the
// master; inside a read-only transaction the client sees 1792/25006 instead
// because the transaction's reads must stay on one backend.
func CausalTimeoutOutcome(inReadOnlyTrx bool) (retryOnMaster bool, err *mysqlerr.Error) {
	if inReadOnlyTrx {
		return false, mysqlerr.ReadOnlyTransaction()
	}
	return true, nil
}

// GTIDProber issues the universal/fast-universal modes' `SELECT
// @@gtid_current_pos` probe against the master (§4.8). Concurrent sessions
// racing to probe the same master collapse into one round-trip via
// singleflight, since the answer within a few milliseconds is the same for
// every caller.
type GTIDProber struct {
	group singleflight.Group
	query func(ctx context.Context) (SessionGTID, error)
}

// NewGTIDProber wraps query, the caller's actual `SELECT @@gtid_current_pos`
// round-trip against the master connection.
func NewGTIDProber(query func(ctx context.Context) (SessionGTID, error)) *GTIDProber {
	return &GTIDProber{query: query}
}

// Probe returns the master's current global GTID horizon, deduplicating
// concurrent callers for masterKey (typically the master backend's name).
func (p *GTIDProber) Probe(ctx context.Context, masterKey string) (SessionGTID, error) {
	v, err, _ := p.group.Do(masterKey, func() (interface{}, error) {
		return p.query(ctx)
	})
	if err != nil {
		return SessionGTID{}, err
	}
	return v.(SessionGTID), nil
}
