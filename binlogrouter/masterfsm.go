package binlogrouter

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mxproxy/corerouter/internal/masterini"
)

// cacheGroup collapses concurrent identical cache writes/reads into one:
// several slaves reconnecting around the same time can ask the proxy to
// answer the same cached master query (§4.3 "Cached master responses...so
// that the proxy can answer identical queries from slaves without a live
// master") before the first write has landed.
var cacheGroup singleflight.Group

// cacheReply persists reply under binlogdir/cache/<tag> atomically, so a
// cached state can later be replayed without a live master connection
// (§4.3).
func cacheReply(binlogDir, tag string, reply []byte) error {
	path := masterini.CachePath(binlogDir, tag)
	_, err, _ := cacheGroup.Do(path, func() (interface{}, error) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, reply, 0644); err != nil {
			return nil, err
		}
		return nil, os.Rename(tmp, path)
	})
	return err
}

// readCachedReply answers a slave's query from the on-disk cache without a
// live master connection, deduplicating concurrent readers of the same tag.
func readCachedReply(binlogDir, tag string) ([]byte, error) {
	path := masterini.CachePath(binlogDir, tag)
	v, err, _ := cacheGroup.Do("read:"+path, func() (interface{}, error) {
		return os.ReadFile(path)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// fsmStep is one row of the master-registration dialogue table (Design
// Note §9: "a table indexed by master_state, each entry a function taking
// the reply buffer and returning the next state and the next command to
// send"). query is the SQL or protocol command to send on entering the
// state; cacheTag, when non-empty, names the binlogdir/cache/<tag> slot
// the reply is persisted under (§4.3).
type fsmStep struct {
	query    string
	cacheTag string
	next     MasterState
	// optional is true for states the master may legitimately error on
	// without tearing down the connection (e.g. GTIDMODE against a server
	// without GTID support).
	optional bool
}

// fsmTable drives the linear dialogue of §4.3. Binary protocol steps
// (COM_REGISTER_SLAVE, COM_BINLOG_DUMP) are handled specially in Advance
// since they aren't simple SELECT/SET statements.
var fsmTable = map[MasterState]fsmStep{
	Authenticated:        {query: "SELECT UNIX_TIMESTAMP()", cacheTag: "ts", next: Timestamp},
	Timestamp:            {query: "SET @master_heartbeat_period=0", cacheTag: "", next: ServerIDState},
	ServerIDState:        {query: "SET @server_id=0", next: HeartbeatPeriod},
	HeartbeatPeriod:      {query: "SET @master_heartbeat_period=0", next: Checksum1},
	Checksum1:            {query: "SET @master_binlog_checksum='CRC32'", cacheTag: "chksum1", next: Checksum2},
	Checksum2:            {query: "SELECT @master_binlog_checksum", cacheTag: "chksum2", next: Mariadb10},
	Mariadb10:            {query: "SET @mariadb_slave_capability=4", next: Mariadb10GTIDDomain},
	Mariadb10GTIDDomain:  {query: "SET @slave_connect_state=''", next: GTIDMode},
	GTIDMode:             {query: "SELECT @@GLOBAL.GTID_MODE", cacheTag: "gtidmode", next: MasterUUID, optional: true},
	MasterUUID:           {query: "SELECT @@GLOBAL.SERVER_UUID", cacheTag: "uuid", next: SlaveUUID},
	SlaveUUID:            {query: "SET @slave_uuid=''", next: Latin1},
	Latin1:               {query: "SET NAMES latin1", next: UTF8},
	UTF8:                 {query: "SET NAMES utf8", next: Select1},
	Select1:              {query: "SELECT 1", next: SelectVersion},
	SelectVersion:        {query: "SELECT VERSION()", cacheTag: "selectver", next: SelectVersionComment},
	SelectVersionComment: {query: "SELECT @@version_comment LIMIT 1", cacheTag: "selectvercom", next: SelectHostname},
	SelectHostname:       {query: "SELECT @@hostname", next: MapState},
	MapState:             {query: "SELECT 1", next: RegisterReady},
	RegisterReady:        {query: "", next: Register},

	// MariaDB GTID sub-branch, taken instead of GTIDMODE when
	// mariadb10_master_gtid/mariadb10_slave_gtid is configured (§4.3
	// diagram's "[MARIADB10_REQUEST_GTID → GTID_STRICT → GTID_NO_DUP] :
	// GTIDMODE" branch).
	Mariadb10RequestGTID: {query: "SET @slave_connect_state='0-1-0'", next: GTIDStrict},
	GTIDStrict:           {query: "SET @slave_gtid_strict_mode=1", next: GTIDNoDup},
	GTIDNoDup:            {query: "SET @slave_gtid_ignore_duplicates=1", next: MasterUUID},

	// Optional semisync negotiation, taken between REGISTER and
	// REQUEST_BINLOGDUMP when semisync is configured.
	CheckSemisync:   {query: "SELECT @@GLOBAL.rpl_semi_sync_master_enabled", cacheTag: "semisync", next: RequestSemisync, optional: true},
	RequestSemisync: {query: "SET @rpl_semi_sync_slave = 1", next: RequestBinlogDump, optional: true},
}

// Advance sends the current state's query and processes the master's
// response, storing a cache entry when the state is cacheable and
// returning the next state. Binary-protocol states (REGISTER,
// REQUEST_BINLOGDUMP, BINLOGDUMP, SLAVE_STOPPED) are handled outside the
// table since they aren't SELECT/SET round-trips. An error in a
// non-optional state tears the connection down for reconnect (§4.3); an
// optional one's error is swallowed and treated as a successful no-op
// transition.
func (r *Router) Advance(binlogDir string, reply []byte, replyErr error) (MasterState, error) {
	switch r.masterState {
	case Mariadb10GTIDDomain:
		if replyErr != nil {
			return Unconnected, fatalErr("master_fsm", replyErr)
		}
		if r.cfg != nil && (r.cfg.Mariadb10MasterGTID || r.cfg.Mariadb10SlaveGTID) {
			r.masterState = Mariadb10RequestGTID
		} else {
			r.masterState = GTIDMode
		}
		return r.masterState, nil

	case Register:
		if replyErr != nil {
			return Unconnected, fatalErr("master_fsm", replyErr)
		}
		if r.semisync {
			r.masterState = CheckSemisync
		} else {
			r.masterState = RequestBinlogDump
		}
		return r.masterState, nil

	case RequestBinlogDump:
		// COM_BINLOG_DUMP is sent by the caller with (binlog_name,
		// current_pos); a success reply moves to the steady state.
		if replyErr != nil {
			return Unconnected, fatalErr("master_fsm", replyErr)
		}
		r.masterState = BinlogDump
		return r.masterState, nil

	case BinlogDump:
		// Steady state: every reply here is a binlog event, routed through
		// ReceiveEvent by the caller, not through Advance. A transport
		// error here triggers reconnect; it never tears the state down to
		// SLAVE_STOPPED on its own (only a storage fault does, via
		// MarkSlaveStopped).
		if replyErr != nil {
			return Unconnected, fatalErr("master_fsm", replyErr)
		}
		return BinlogDump, nil

	case SlaveStopped:
		// Terminal: no further replication happens until an operator
		// restarts the router (§7 "Storage" error policy).
		return SlaveStopped, fmt.Errorf("binlogrouter: master fsm halted in SLAVE_STOPPED")
	}

	step, ok := fsmTable[r.masterState]
	if !ok {
		return r.masterState, fmt.Errorf("binlogrouter: no FSM row for state %s", r.masterState)
	}
	if replyErr != nil && !step.optional {
		return Unconnected, fatalErr("master_fsm", replyErr)
	}
	if step.cacheTag != "" && replyErr == nil {
		if err := cacheReply(binlogDir, step.cacheTag, reply); err != nil {
			r.log.Warn("failed to persist cached master response", zap.String("tag", step.cacheTag), zap.Error(err))
		}
	}
	r.masterState = step.next
	return r.masterState, nil
}

// MarkSlaveStopped transitions into the terminal SLAVE_STOPPED state after
// an unrecoverable storage fault (§7: "move to SLAVE_STOPPED state so no
// further replication occurs until operator intervention").
func (r *Router) MarkSlaveStopped(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.masterState = SlaveStopped
	r.log.Error("binlog router halted", zap.Error(cause))
}

// CachedReply answers a query tag from binlogdir/cache without needing a
// live master connection, for a proxy instance that hasn't connected yet or
// lost its master mid-session.
func (r *Router) CachedReply(binlogDir, tag string) ([]byte, error) {
	return readCachedReply(binlogDir, tag)
}
