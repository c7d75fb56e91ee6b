package rwsplit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPlanMultiPartPacketReusesLastUsed(t *testing.T) {
	slave := NewBackend("slave1", RoleSlave, 1)
	state := &PlannerState{LastPlan: &RoutingPlan{Target: TargetSlave, Backend: slave}}
	plan := Plan(state, RouteInfo{MultiPartPacket: true}, nil, nil, PolicyLeastCurrentOperations, time.Now())
	require.Equal(t, TargetLastUsed, plan.Target)
	require.Same(t, slave, plan.Backend)
}

func TestPlanOptimisticTrxEndMigratesToMaster(t *testing.T) {
	master := NewBackend("master", RoleMaster, 0)
	trx := &Trx{Target: master}
	state := &PlannerState{OptimisticTrx: true, Trx: trx}
	plan := Plan(state, RouteInfo{IsTrxEnding: true}, nil, master, PolicyAdaptive, time.Now())
	require.Equal(t, PlanOtrxEnd, plan.PlanType)
	require.Same(t, master, plan.Backend)
}

func TestPlanReadOnlyTrxStartGoesToSlave(t *testing.T) {
	s1 := NewBackend("s1", RoleSlave, 1)
	s1.SetConnected(true)
	state := &PlannerState{OptimisticTrx: true}
	plan := Plan(state, RouteInfo{IsTrxStarting: true, IsReadOnly: true}, []*Backend{s1}, nil, PolicyLeastCurrentOperations, time.Now())
	require.Equal(t, PlanOtrxStart, plan.PlanType)
	require.Same(t, s1, plan.Backend)
}

func TestSelectSlavePrefersConnectedOverLowerRawScore(t *testing.T) {
	connected := NewBackend("connected", RoleSlave, 1)
	connected.SetConnected(true)
	connected.currentOps = 10

	unconnected := NewBackend("unconnected", RoleSlave, 1)
	unconnected.currentOps = 0 // raw score 0, but inflated by (0+5)*1.5 = 7.5 > 10? no: 7.5 < 10

	// Sanity: this case picks unconnected since 7.5 < 10, confirming the
	// inflation formula is applied rather than an absolute preference.
	got := selectSlave([]*Backend{connected, unconnected}, PolicyLeastCurrentOperations, time.Now())
	require.Same(t, unconnected, got)

	connected.currentOps = 2 // raw score 2 < inflated 7.5 now
	got = selectSlave([]*Backend{connected, unconnected}, PolicyLeastCurrentOperations, time.Now())
	require.Same(t, connected, got)
}

func TestSelectSlaveBreaksTiesByLongestIdle(t *testing.T) {
	now := time.Now()
	a := NewBackend("a", RoleSlave, 1)
	a.SetConnected(true)
	a.lastWrite = now.Add(-5 * time.Second)
	b := NewBackend("b", RoleSlave, 1)
	b.SetConnected(true)
	b.lastWrite = now.Add(-50 * time.Second)

	got := selectSlave([]*Backend{a, b}, PolicyLeastCurrentOperations, now)
	require.Same(t, b, got)
}
