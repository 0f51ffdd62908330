// Command kvs-server runs the TCP key-value server: it opens a data
// directory with the configured storage backend, starts a bounded
// worker pool, and dispatches one request per connection until it
// receives an interrupt.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kvstash/kvstash/internal/config"
	"github.com/kvstash/kvstash/internal/engine"
	"github.com/kvstash/kvstash/internal/engine/boltengine"
	"github.com/kvstash/kvstash/internal/logging"
	"github.com/kvstash/kvstash/internal/pool"
	"github.com/kvstash/kvstash/internal/server"
)

var (
	cfgFile string
	flags   config.Config
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	flags = cfg

	cmd := &cobra.Command{
		Use:   "kvs-server",
		Short: "Run the kvstash TCP server",
		RunE:  runServer,
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&flags.Addr, "addr", cfg.Addr, "address to listen on")
	cmd.Flags().StringVar(&flags.Engine, "engine", cfg.Engine, "storage backend: kvs or sled")
	cmd.Flags().StringVar(&flags.Pool, "pool", cfg.Pool, "worker pool type: shared")
	cmd.Flags().IntVar(&flags.Threads, "threads", cfg.Threads, "number of worker threads")
	cmd.Flags().StringVar(&flags.Dir, "dir", cfg.Dir, "data directory")
	cmd.Flags().Int64Var(&flags.CompactThresholdBytes, "compact-threshold-bytes", cfg.CompactThresholdBytes, "dead-byte compaction trigger")
	cmd.Flags().Float64Var(&flags.CompactRatio, "compact-ratio", cfg.CompactRatio, "dead/live ratio compaction trigger")
	cmd.Flags().BoolVar(&flags.SyncWrites, "sync-writes", cfg.SyncWrites, "fsync every append")
	cmd.Flags().StringVar(&flags.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")

	return cmd
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg := flags
	if cfgFile != "" {
		data, err := os.ReadFile(cfgFile)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := cfg.Parse(data); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}

	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("set log level: %w", err)
	}
	cmd.SilenceUsage = true

	eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	workers := pool.New(cfg.Threads)
	defer workers.Shutdown()

	srv := server.New(eng, workers)

	go serveMetrics(cfg.Addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logging.Info("shutting down")
		srv.Close()
	}()

	logging.Info("kvstash server starting",
		zap.String("addr", cfg.Addr),
		zap.String("engine", cfg.Engine),
		zap.String("pool", cfg.Pool),
		zap.Int("threads", cfg.Threads),
	)
	return srv.Serve(cfg.Addr)
}

func openEngine(cfg config.Config) (engine.Engine, error) {
	switch cfg.Engine {
	case "sled":
		return boltengine.Open(cfg.Dir)
	case "kvs", "":
		return engine.Open(engine.Config{
			Dir:                   cfg.Dir,
			SyncWrites:            cfg.SyncWrites,
			CompactThresholdBytes: cfg.CompactThresholdBytes,
			CompactRatio:          cfg.CompactRatio,
		})
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

// serveMetrics exposes the prometheus registry on the metrics port,
// which is the server's listen port plus one, so a single --addr flag
// is enough to locate both the data port and the metrics port.
func serveMetrics(addr string) {
	metricsAddr, err := metricsAddrFor(addr)
	if err != nil {
		logging.Warn("metrics server disabled", zap.Error(err))
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logging.Info("metrics listening", zap.String("addr", metricsAddr))
	if err := http.ListenAndServe(metricsAddr, mux); err != nil {
		logging.Warn("metrics server stopped", zap.Error(err))
	}
}
