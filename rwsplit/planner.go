package rwsplit

import "time"

// SlavePolicy selects among scoring strategies for slave candidates (§4.7
// table).
type SlavePolicy int

const (
	PolicyLeastGlobalConnections SlavePolicy = iota
	PolicyLeastRouterConnections
	PolicyLeastBehindMaster
	PolicyLeastCurrentOperations
	PolicyAdaptive
)

// PlannerState is the mutable session state the route planner reads and
// updates (§3 "Session" fields relevant to routing).
type PlannerState struct {
	Trx           *Trx
	LastPlan      *RoutingPlan
	ExecInfo      *ExecInfo
	GTIDSyncBusy  bool
	OptimisticTrx bool
}

// Plan implements §4.7's priority-ordered rules, turning a classified
// packet into a concrete RoutingPlan.
func Plan(state *PlannerState, info RouteInfo, candidates []*Backend, master *Backend, policy SlavePolicy, now time.Time) RoutingPlan {
	// Rule 1: multi-part packets always continue on the last-used target.
	if info.MultiPartPacket {
		return RoutingPlan{Target: TargetLastUsed, Backend: lastUsedBackend(state), PlanType: PlanNormal}
	}

	// Rule 2: inside an optimistic transaction, any write or trx-end event
	// forces migration back onto the master.
	if state.OptimisticTrx && state.Trx != nil {
		if info.IsTrxEnding || !info.IsReadOnly {
			return RoutingPlan{Target: TargetLastUsed, Backend: state.Trx.Target, PlanType: PlanOtrxEnd}
		}
		return RoutingPlan{Target: TargetLastUsed, Backend: state.Trx.Target, PlanType: PlanNormal}
	}

	// Rule 3: an ordinary read-only transaction starting under
	// optimistic_trx speculatively runs on a slave.
	if info.IsTrxStarting && info.IsReadOnly && state.OptimisticTrx {
		b := selectSlave(candidates, policy, now)
		return RoutingPlan{Target: TargetSlave, Backend: b, PlanType: PlanOtrxStart}
	}

	// Rule 4/5: the classifier's hint stands; resolve a concrete backend
	// unless it targets "all" (session commands, handled by dispatch).
	target := hintToTarget(info.TargetHint)
	if target == TargetAll {
		return RoutingPlan{Target: TargetAll, PlanType: PlanNormal}
	}

	if state.Trx != nil && state.Trx.Target != nil && state.Trx.Target.Connected() && !state.GTIDSyncBusy {
		return RoutingPlan{Target: TargetLastUsed, Backend: state.Trx.Target, PlanType: PlanNormal}
	}
	if info.IsPSContinuation && state.ExecInfo != nil {
		if b, ok := state.ExecInfo.Get(info.StmtID); ok {
			return RoutingPlan{Target: TargetNamed, Backend: b, PlanType: PlanNormal}
		}
	}

	switch target {
	case TargetNamed, TargetRlagMax:
		b := selectNamedOrLagBound(candidates, info.TargetHint)
		return RoutingPlan{Target: target, Backend: b, PlanType: PlanNormal}
	case TargetLastUsed:
		if b := lastUsedBackend(state); b != nil {
			return RoutingPlan{Target: TargetLastUsed, Backend: b, PlanType: PlanNormal}
		}
		return RoutingPlan{Target: TargetMaster, Backend: master, PlanType: PlanNormal}
	case TargetSlave:
		return RoutingPlan{Target: TargetSlave, Backend: selectSlave(candidates, policy, now), PlanType: PlanNormal}
	default:
		return RoutingPlan{Target: TargetMaster, Backend: master, PlanType: PlanNormal}
	}
}

func lastUsedBackend(state *PlannerState) *Backend {
	if state.LastPlan == nil {
		return nil
	}
	return state.LastPlan.Backend
}

func hintToTarget(hint string) RouteTarget {
	switch hint {
	case "all":
		return TargetAll
	case "named":
		return TargetNamed
	case "rlag-max":
		return TargetRlagMax
	case "last-used":
		return TargetLastUsed
	case "slave":
		return TargetSlave
	default:
		return TargetMaster
	}
}

func selectNamedOrLagBound(candidates []*Backend, name string) *Backend {
	for _, b := range candidates {
		if b.Name == name && b.Connected() {
			return b
		}
	}
	// fall back to the lowest-lag connected candidate
	var best *Backend
	for _, b := range candidates {
		if !b.Connected() {
			continue
		}
		if best == nil || b.replicationLagSecs < best.replicationLagSecs {
			best = b
		}
	}
	return best
}

// unconnectedPenalty is the §4.7 inflation factor applied to a candidate's
// raw score when it has no open connection, so already-connected backends
// win ties: "(s+5)·1.5".
func unconnectedPenalty(s float64) float64 {
	return (s + 5) * 1.5
}

func score(b *Backend, policy SlavePolicy) float64 {
	var s float64
	switch policy {
	case PolicyLeastGlobalConnections:
		s = float64(b.globalConns)
	case PolicyLeastRouterConnections:
		s = float64(b.routerConns)
	case PolicyLeastBehindMaster:
		s = float64(b.replicationLagSecs)
	case PolicyLeastCurrentOperations:
		s = float64(b.currentOps)
	case PolicyAdaptive:
		s = b.avgResponseMillis * float64(b.currentOps+1)
	}
	if !b.connected {
		s = unconnectedPenalty(s)
	}
	return s
}

// selectSlave scores every candidate and picks the minimum, breaking ties
// by the longest idle time since last write (§4.7).
func selectSlave(candidates []*Backend, policy SlavePolicy, now time.Time) *Backend {
	var best *Backend
	var bestScore float64
	var bestIdle time.Duration
	for _, b := range candidates {
		s := score(b, policy)
		idle := now.Sub(b.lastWrite)
		if best == nil || s < bestScore || (s == bestScore && idle > bestIdle) {
			best, bestScore, bestIdle = b, s, idle
		}
	}
	return best
}
