// Package config decodes the TOML configuration for both routers into
// plain struct fields via github.com/BurntSushi/toml.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// BinlogRouter is the `[binlog_router]` table (§6 "Configuration recognized").
type BinlogRouter struct {
	ServerID      uint32 `toml:"server_id"`
	MasterID      uint32 `toml:"master_id"`
	UUID          string `toml:"uuid"`
	MasterUUID    string `toml:"master_uuid"`

	Mariadb10Compatibility bool `toml:"mariadb10-compatibility"`
	Mariadb10SlaveGTID     bool `toml:"mariadb10_slave_gtid"`
	Mariadb10MasterGTID    bool `toml:"mariadb10_master_gtid"`

	TransactionSafety bool `toml:"transaction_safety"`
	Semisync          bool `toml:"semisync"`

	Heartbeat         int  `toml:"heartbeat"`
	SendSlaveHeartbeat bool `toml:"send_slave_heartbeat"`

	EncryptBinlog       bool   `toml:"encrypt_binlog"`
	EncryptionAlgorithm string `toml:"encryption_algorithm"` // aes_cbc | aes_ctr
	EncryptionKeyFile   string `toml:"encryption_key_file"`

	BinlogStructure string `toml:"binlog_structure"` // flat | tree
	ShortBurst      int    `toml:"shortburst"`
	LongBurst       int    `toml:"longburst"`
	BurstSize       int    `toml:"burstsize"`

	BinlogDir                string `toml:"binlogdir"`
	SSLCertVerificationDepth int    `toml:"ssl_cert_verification_depth"`
}

// Validate checks the enum-shaped fields the router dispatches on.
func (c *BinlogRouter) Validate() error {
	switch c.EncryptionAlgorithm {
	case "", "aes_cbc", "aes_ctr":
	default:
		return fmt.Errorf("config: invalid encryption_algorithm %q", c.EncryptionAlgorithm)
	}
	switch c.BinlogStructure {
	case "", "flat", "tree":
	default:
		return fmt.Errorf("config: invalid binlog_structure %q", c.BinlogStructure)
	}
	if c.BinlogDir == "" {
		return fmt.Errorf("config: binlogdir is required")
	}
	return nil
}

// RWSplit is the `[rwsplit]` table (§6).
type RWSplit struct {
	UseSQLVariablesIn    string `toml:"use_sql_variables_in"` // all | master
	SlaveSelectionCriteria string `toml:"slave_selection_criteria"`
	MasterFailureMode   string `toml:"master_failure_mode"` // fail_instantly | fail_on_write | error_on_write

	CausalReads        string `toml:"causal_reads"` // none|local|global|fast|fast_global|universal|fast_universal
	CausalReadsTimeout string `toml:"causal_reads_timeout"`

	MaxReplicationLag   int  `toml:"max_replication_lag"`
	MaxSlaveConnections int  `toml:"max_slave_connections"`
	SlaveConnections    int  `toml:"slave_connections"`
	RetryFailedReads    bool `toml:"retry_failed_reads"`

	StrictMultiStmt  bool `toml:"strict_multi_stmt"`
	StrictSPCalls    bool `toml:"strict_sp_calls"`
	StrictTmpTables  bool `toml:"strict_tmp_tables"`

	MasterAcceptReads bool `toml:"master_accept_reads"`
	MasterReconnection bool `toml:"master_reconnection"`

	DelayedRetry        bool   `toml:"delayed_retry"`
	DelayedRetryTimeout string `toml:"delayed_retry_timeout"`

	TransactionReplay                  bool   `toml:"transaction_replay"`
	TransactionReplayMaxSize           int    `toml:"transaction_replay_max_size"`
	TransactionReplayTimeout           string `toml:"transaction_replay_timeout"`
	TransactionReplayAttempts          int    `toml:"transaction_replay_attempts"`
	TransactionReplayRetryOnDeadlock   bool   `toml:"transaction_replay_retry_on_deadlock"`
	TransactionReplayRetryOnMismatch   bool   `toml:"transaction_replay_retry_on_mismatch"`
	TransactionReplaySafeCommit        bool   `toml:"transaction_replay_safe_commit"`
	TransactionReplayChecksum          string `toml:"transaction_replay_checksum"` // full|result_only|no_insert_id

	OptimisticTrx          bool `toml:"optimistic_trx"`
	LazyConnect             bool `toml:"lazy_connect"`
	ReusePreparedStatements bool `toml:"reuse_prepared_statements"`
}

// Validate checks the enum-shaped fields the route planner dispatches on.
func (c *RWSplit) Validate() error {
	switch c.MasterFailureMode {
	case "", "fail_instantly", "fail_on_write", "error_on_write":
	default:
		return fmt.Errorf("config: invalid master_failure_mode %q", c.MasterFailureMode)
	}
	switch c.CausalReads {
	case "", "none", "local", "global", "fast", "fast_global", "universal", "fast_universal":
	default:
		return fmt.Errorf("config: invalid causal_reads %q", c.CausalReads)
	}
	switch c.TransactionReplayChecksum {
	case "", "full", "result_only", "no_insert_id":
	default:
		return fmt.Errorf("config: invalid transaction_replay_checksum %q", c.TransactionReplayChecksum)
	}
	switch c.UseSQLVariablesIn {
	case "", "all", "master":
	default:
		return fmt.Errorf("config: invalid use_sql_variables_in %q", c.UseSQLVariablesIn)
	}
	return nil
}

// LoadBinlogRouter decodes a `[binlog_router]` TOML document from path.
func LoadBinlogRouter(path string) (*BinlogRouter, error) {
	var doc struct {
		Router BinlogRouter `toml:"binlog_router"`
	}
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}
	if err := doc.Router.Validate(); err != nil {
		return nil, err
	}
	return &doc.Router, nil
}

// LoadRWSplit decodes a `[rwsplit]` TOML document from path.
func LoadRWSplit(path string) (*RWSplit, error) {
	var doc struct {
		Split RWSplit `toml:"rwsplit"`
	}
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}
	if err := doc.Split.Validate(); err != nil {
		return nil, err
	}
	return &doc.Split, nil
}

func decodeFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = toml.Decode(string(data), v)
	return err
}
