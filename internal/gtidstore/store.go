// Package gtidstore implements the persistent GTID index (§3, §6) backing
// both slave seeking and post-restart recovery of the last written file.
// It is grounded on the pure-Go modernc.org/sqlite driver, the same DSN
// idiom (WAL journal, busy_timeout pragma) used in the retrieval pack's
// other SQLite-backed store.
package gtidstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS gtid_maps (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	rep_domain INTEGER NOT NULL,
	server_id INTEGER NOT NULL,
	sequence INTEGER NOT NULL,
	binlog_file TEXT NOT NULL,
	start_pos INTEGER NOT NULL,
	end_pos INTEGER NOT NULL,
	UNIQUE(rep_domain, server_id, sequence, binlog_file)
);
`

// Entry is one row of the gtid_maps table (§6).
type Entry struct {
	ID         int64
	Domain     uint32
	ServerID   uint32
	Sequence   uint64
	BinlogFile string
	StartPos   uint32
	EndPos     uint32
}

// Store wraps the gtid_maps.db SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the GTID index at path, per §6:
// "<binlogdir>/gtid_maps.db".
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // instance-level lock (§5) serializes all access anyway
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Upsert writes a (domain, server_id, sequence, file) row, inserting on
// first sight and updating start_pos/end_pos on a later match — "GTID index
// is write-once per key; subsequent matching rows update start_pos/end_pos"
// (§3 invariant).
func (s *Store) Upsert(ctx context.Context, domain, serverID uint32, sequence uint64, file string, startPos, endPos uint32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gtid_maps (rep_domain, server_id, sequence, binlog_file, start_pos, end_pos)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(rep_domain, server_id, sequence, binlog_file)
		DO UPDATE SET start_pos = excluded.start_pos, end_pos = excluded.end_pos
	`, domain, serverID, sequence, file, startPos, endPos)
	return err
}

// Find looks up one GTID's location, used by a slave to seek (§3).
func (s *Store) Find(ctx context.Context, domain, serverID uint32, sequence uint64) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rep_domain, server_id, sequence, binlog_file, start_pos, end_pos
		FROM gtid_maps WHERE rep_domain = ? AND server_id = ? AND sequence = ?
	`, domain, serverID, sequence)
	return scanEntry(row)
}

// LastEntry returns the most recently inserted row, used after a restart to
// locate the last written file when mariadb10_master_gtid is enabled (§4.2
// init).
func (s *Store) LastEntry(ctx context.Context) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rep_domain, server_id, sequence, binlog_file, start_pos, end_pos
		FROM gtid_maps ORDER BY id DESC LIMIT 1
	`)
	return scanEntry(row)
}

func scanEntry(row *sql.Row) (Entry, bool, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Domain, &e.ServerID, &e.Sequence, &e.BinlogFile, &e.StartPos, &e.EndPos)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}
