// Package rwsplit implements the read/write splitting router: per-session
// route planning, transaction tracking and replay, causal-reads
// synchronization and slave-selection policies described in spec.md
// §3/§4.7-§4.10. It shares only the MySQL error codes (internal/mysqlerr)
// with binlogrouter; everything else here is new. The package does no
// network I/O of its own: sends go through functions the caller supplies.
package rwsplit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionID uniquely identifies one client session across its lifetime,
// independent of the enclosing framework's own connection numbering, so
// logs and replay diagnostics can correlate a session across a backend
// migration.
type SessionID string

// NewSessionID mints a fresh session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// Role is a backend's replication role.
type Role int

const (
	RoleMaster Role = iota
	RoleSlave
	RoleRelay
)

// Backend is a handle on one upstream connection (§3 "Backend").
type Backend struct {
	Name string
	Role Role
	Rank int

	mu                 sync.Mutex
	connected          bool
	globalConns        int
	routerConns        int
	replicationLagSecs int
	currentOps         int
	avgResponseMillis  float64
	lastWrite          time.Time
	pendingResponse    bool
	sessionCmdCursor   int // index into the session-command log last acked by this backend
	gtidPos            map[uint32]uint64 // per-domain observed GTID sequence (causal-reads fast modes)
}

// NewBackend constructs a Backend in the disconnected state.
func NewBackend(name string, role Role, rank int) *Backend {
	return &Backend{Name: name, Role: role, Rank: rank, gtidPos: make(map[uint32]uint64)}
}

func (b *Backend) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Backend) SetConnected(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = v
}

// ObserveGTID records the most recent GTID sequence this backend is known
// to have applied for domain, used by causal-reads fast modes (§4.8).
func (b *Backend) ObserveGTID(domain uint32, sequence uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sequence > b.gtidPos[domain] {
		b.gtidPos[domain] = sequence
	}
}

func (b *Backend) GTIDPos(domain uint32) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gtidPos[domain]
}

// RouteTarget identifies the kind of destination a RoutingPlan selects
// (§3 "RoutingPlan").
type RouteTarget int

const (
	TargetMaster RouteTarget = iota
	TargetSlave
	TargetNamed
	TargetAll
	TargetLastUsed
	TargetRlagMax
)

// PlanType distinguishes an ordinary route from one that is part of an
// optimistic transaction's lifecycle (§4.7 rule 2/3).
type PlanType int

const (
	PlanNormal PlanType = iota
	PlanOtrxStart
	PlanOtrxEnd
)

// RouteInfo is the classifier's per-packet output (§3 "RouteInfo"). The
// enclosing framework's query classifier is out of scope; this struct is
// the contract this router consumes.
type RouteInfo struct {
	Command            byte
	TypeMask           uint32
	TargetHint         string
	StmtID             uint32
	IsTrxStarting      bool
	IsTrxActive        bool
	IsTrxEnding        bool
	IsReadOnly         bool
	LoadDataActive     bool
	MultiPartPacket    bool
	IsPSContinuation   bool
}

// RoutingPlan is the route planner's output (§3 "RoutingPlan").
type RoutingPlan struct {
	Target       RouteTarget
	Backend      *Backend
	PlanType     PlanType
}

// Stmt is the in-flight statement state needed to resume after a
// mid-result failure (§3 "Stmt").
type Stmt struct {
	Buffer        []byte
	Checksum      uint32
	BytesSoFar    int
}

// Trx is the append-only transaction log (§3 "Transaction log (Trx)").
type Trx struct {
	Target     *Backend
	Stmts      []Stmt
	Checksums  []uint32
	Size       int
	ReadOnly   bool
	StartedAt  time.Time
	Unreplayable bool
}

// AddStmt appends a completed statement and its checksum to the log.
func (t *Trx) AddStmt(buf []byte, checksum uint32) {
	t.Stmts = append(t.Stmts, Stmt{Buffer: append([]byte(nil), buf...), Checksum: checksum})
	t.Checksums = append(t.Checksums, checksum)
	t.Size += len(buf)
}

// PopStmt removes and returns the oldest statement, used by transaction
// replay (§4.9 step 3). Order is preserved: PopStmt composed with AddStmt
// behaves as a FIFO (§8 round-trip property).
func (t *Trx) PopStmt() (Stmt, bool) {
	if len(t.Stmts) == 0 {
		return Stmt{}, false
	}
	s := t.Stmts[0]
	t.Stmts = t.Stmts[1:]
	return s, true
}

// ExecInfo tracks which backend a prepared statement last executed on, so
// COM_STMT_FETCH returns to the right place (§3 "ExecInfo").
type ExecInfo struct {
	mu    sync.Mutex
	byID  map[uint32]*Backend
}

func NewExecInfo() *ExecInfo { return &ExecInfo{byID: make(map[uint32]*Backend)} }

func (e *ExecInfo) Set(stmtID uint32, b *Backend) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byID[stmtID] = b
}

func (e *ExecInfo) Get(stmtID uint32) (*Backend, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.byID[stmtID]
	return b, ok
}

// Close removes a prepared statement's entry, e.g. on COM_STMT_CLOSE
// (§3 invariant: "A COM_STMT_CLOSE removes the entry from ExecInfo").
func (e *ExecInfo) Close(stmtID uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.byID, stmtID)
}
