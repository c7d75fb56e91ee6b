// Command corerouter is a demonstration harness for the two routing cores.
// The binlog-router subcommand opens a binlog router from its TOML config
// (recovering and choosing the starting binlog file), registers its
// metrics, logs the starting position and waits for a termination signal;
// it does not connect to a master or serve replicas. The rwsplit
// subcommand loads and validates a read/write splitter config and logs its
// main settings.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mxproxy/corerouter/binlogrouter"
	"github.com/mxproxy/corerouter/internal/config"
	"github.com/mxproxy/corerouter/internal/logging"
	"github.com/mxproxy/corerouter/internal/metrics"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:   "corerouter",
		Short: "MySQL/MariaDB binlog router and read/write splitter",
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug-level logging")

	root.AddCommand(binlogRouterCmd(&debug))
	root.AddCommand(rwsplitCmd(&debug))
	return root
}

func binlogRouterCmd(debug *bool) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "binlog-router",
		Short: "open the binlog router and report its starting binlog position",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBinlogRouter(cmd.Context(), configPath, *debug)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "binlog_router.toml", "path to the binlog router TOML config")
	return cmd
}

func rwsplitCmd(debug *bool) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "rwsplit",
		Short: "validate and report a read/write splitter configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRWSplit(cmd.Context(), configPath, *debug)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "rwsplit.toml", "path to the read/write splitter TOML config")
	return cmd
}

func runBinlogRouter(ctx context.Context, configPath string, debug bool) error {
	log, err := logging.New(debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.LoadBinlogRouter(configPath)
	if err != nil {
		return fmt.Errorf("corerouter: loading %s: %w", configPath, err)
	}

	router, err := binlogrouter.Open(cfg, log)
	if err != nil {
		return fmt.Errorf("corerouter: opening binlog router: %w", err)
	}
	defer router.Close()

	reg, err := metrics.NewRegistry(prometheus.DefaultRegisterer, cfg.UUID)
	if err != nil {
		return fmt.Errorf("corerouter: registering metrics: %w", err)
	}
	_ = reg

	file, pos := router.BinlogPosition()
	log.Info("binlog router ready",
		zap.String("file", file),
		zap.Uint32("pos", pos),
		zap.String("binlog_dir", cfg.BinlogDir),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func runRWSplit(_ context.Context, configPath string, debug bool) error {
	log, err := logging.New(debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.LoadRWSplit(configPath)
	if err != nil {
		return fmt.Errorf("corerouter: loading %s: %w", configPath, err)
	}

	log.Info("read/write splitter configuration loaded",
		zap.String("master_failure_mode", cfg.MasterFailureMode),
		zap.String("causal_reads", cfg.CausalReads),
		zap.Bool("transaction_replay", cfg.TransactionReplay),
		zap.Bool("optimistic_trx", cfg.OptimisticTrx),
	)
	return nil
}
