package binlogrouter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mxproxy/corerouter/internal/binlogcrypt"
	"github.com/mxproxy/corerouter/internal/config"
	"github.com/mxproxy/corerouter/internal/gtidstore"
	"github.com/mxproxy/corerouter/internal/logging"
)

// Open wires a Router from a TOML config: opens (or creates) the GTID
// store, loads the encryption key file if configured, builds the file
// manager and runs Init to pick the starting file (§4.2 init).
func Open(cfg *config.BinlogRouter, base *zap.Logger) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.UUID == "" {
		cfg.UUID = uuid.New().String()
	}
	log := logging.Component(base, "binlogrouter")

	structure := Flat
	if cfg.BinlogStructure == "tree" {
		structure = Tree
	}
	domain := uint32(0) // resolved per-GTID at rotation time in tree mode
	files := NewFileManager(cfg.BinlogDir, "master", structure, domain, cfg.ServerID)

	gtids, err := gtidstore.Open(filepath.Join(cfg.BinlogDir, "gtid_maps.db"))
	if err != nil {
		return nil, fmt.Errorf("binlogrouter: open gtid store: %w", err)
	}

	var keyFile *binlogcrypt.KeyFile
	if cfg.EncryptBinlog {
		keyFile, err = binlogcrypt.LoadKeyFile(cfg.EncryptionKeyFile)
		if err != nil {
			gtids.Close()
			return nil, fmt.Errorf("binlogrouter: load encryption key file: %w", err)
		}
	}

	r := NewRouter(cfg, log, files, gtids, keyFile)
	if err := r.Init(context.Background()); err != nil {
		gtids.Close()
		return nil, err
	}
	return r, nil
}

// Init implements §4.2 init: pick the starting file. Without
// mariadb10_master_gtid, scan the directory for the highest-numbered
// <filestem>.NNNNNN, or create <filestem>.000001 if none exist. With it,
// resolve the last GTID index entry's (domain, server_id, file) instead.
// Before opening it for writing, an existing file is run through Recover so
// a prior crash mid-transaction is handled per §3's invariant: truncated
// back to binlog_position when transaction_safety is on, or refused
// outright when it's off.
func (r *Router) Init(ctx context.Context) error {
	var name string

	if r.cfg.Mariadb10MasterGTID && r.gtids != nil {
		entry, ok, err := r.gtids.LastEntry(ctx)
		if err != nil {
			return fmt.Errorf("binlogrouter: init: gtid lookup: %w", err)
		}
		if ok {
			name = entry.BinlogFile
		}
	}

	if name == "" {
		seq, err := r.highestExistingSeq()
		if err != nil {
			return fmt.Errorf("binlogrouter: init: scan dir: %w", err)
		}
		if seq == 0 {
			seq = 1
		}
		name = r.files.FileName(seq)
	}

	if _, statErr := os.Stat(r.files.Path(name)); statErr == nil {
		_, status, recErr := r.files.Recover(name, r.checksumEnabled, r.cfg.TransactionSafety)
		if recErr != nil {
			return fmt.Errorf("binlogrouter: init: recover %s: %w", name, recErr)
		}
		if status == RecoverError {
			return fmt.Errorf("binlogrouter: init: %s has an incomplete transaction and transaction_safety is off; refusing to start", name)
		}
	} else if !os.IsNotExist(statErr) {
		return fmt.Errorf("binlogrouter: init: stat %s: %w", name, statErr)
	}

	pos, err := r.files.OpenCurrent(name)
	if err != nil {
		return fmt.Errorf("binlogrouter: init: %w", err)
	}
	r.currentFile = name
	r.currentPos = pos
	r.binlogPos = pos
	r.masterState = Unconnected
	return nil
}

// highestExistingSeq scans binlogdir for <filestem>.NNNNNN and returns the
// highest sequence found, or 0 if none exist.
func (r *Router) highestExistingSeq() (uint64, error) {
	entries, err := os.ReadDir(r.cfg.BinlogDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	prefix := "master."
	var seqs []uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimPrefix(e.Name(), prefix), 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, n)
	}
	if len(seqs) == 0 {
		return 0, nil
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] > seqs[j] })
	return seqs[0], nil
}

// Close releases the GTID store and the current file handle.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	if err := r.files.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if r.gtids != nil {
		if err := r.gtids.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
