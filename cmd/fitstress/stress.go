package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fitbod/fitstress/internal/config"
	"github.com/fitbod/fitstress/internal/dataset"
	"github.com/fitbod/fitstress/internal/metrics"
	"github.com/fitbod/fitstress/internal/stress"
	"github.com/fitbod/fitstress/internal/transport"
)

func newStressCmd() *cobra.Command {
	var (
		cfgPath string
		cfg     = &config.Config{}
	)

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Drive concurrent signed traffic against a live server and verify consistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Precedence: defaults < file < env < flags. Flags were
			// bound directly into cfg, so re-apply only the unset
			// layers underneath them.
			merged := &config.Config{}
			if cfgPath != "" {
				if err := config.LoadFile(cfgPath, merged); err != nil {
					return err
				}
			}
			config.LoadFromEnv(merged)
			overlayFlags(cmd, cfg, merged)
			merged.ApplyDefaults()
			if err := merged.Validate(); err != nil {
				return err
			}
			return runStress(merged)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "optional yaml config file")
	cmd.Flags().StringVar(&cfg.Addr, "addr", "", "server address (host:port)")
	cmd.Flags().StringVar(&cfg.WorkoutsPath, "workouts", "", "template workout CSV path")
	cmd.Flags().StringVar(&cfg.CredentialsPath, "credentials", "", "credentials CSV path")
	cmd.Flags().IntVar(&cfg.Threads, "threads", 0, "worker thread count (default: NumCPU)")
	cmd.Flags().IntVar(&cfg.BatchSize, "batch-size", 0, "users sampled per batch")
	cmd.Flags().BoolVar(&cfg.ReadOnly, "read-only", false, "issue only list requests; skip validation and the final pass")
	cmd.Flags().IntVar(&cfg.MetricsPort, "metrics-port", 0, "serve prometheus metrics on this port (0 disables)")
	cmd.Flags().Float64Var(&cfg.MaxJobsPerSec, "max-jobs-per-sec", 0, "cap dispatch rate (0 = unthrottled)")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", "", "zap log level")
	return cmd
}

// overlayFlags copies every flag the user set on the command line over dst.
func overlayFlags(cmd *cobra.Command, flags, dst *config.Config) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if set("addr") {
		dst.Addr = flags.Addr
	}
	if set("workouts") {
		dst.WorkoutsPath = flags.WorkoutsPath
	}
	if set("credentials") {
		dst.CredentialsPath = flags.CredentialsPath
	}
	if set("threads") {
		dst.Threads = flags.Threads
	}
	if set("batch-size") {
		dst.BatchSize = flags.BatchSize
	}
	if set("read-only") {
		dst.ReadOnly = flags.ReadOnly
	}
	if set("metrics-port") {
		dst.MetricsPort = flags.MetricsPort
	}
	if set("max-jobs-per-sec") {
		dst.MaxJobsPerSec = flags.MaxJobsPerSec
	}
	if set("log-level") {
		dst.LogLevel = flags.LogLevel
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", level, err)
	}
	return zcfg.Build()
}

func runStress(cfg *config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	creds, err := dataset.LoadCredentials(cfg.CredentialsPath)
	if err != nil {
		return err
	}
	templates, err := dataset.LoadTemplates(cfg.WorkoutsPath)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	users := stress.BuildStates(creds, templates)
	sampler, err := stress.NewSampler(stress.DrawEngagementScores(len(users), rng), rng)
	if err != nil {
		return err
	}

	var sink metrics.Sink = metrics.NewPrometheusSink()
	if cfg.MetricsPort > 0 {
		metrics.Serve(cfg.MetricsPort, logger)
	}

	client := transport.NewClient(cfg.Addr, logger, sink)
	counters := &stress.Counters{}

	// The signal handler only flips the flag; the manager honors it at the
	// next batch boundary.
	var stop atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("termination signal received", zap.String("signal", sig.String()))
		stop.Store(true)
	}()

	fail := func(msg string, fields ...zap.Field) {
		logger.Fatal(msg, fields...)
	}
	pool := stress.NewPool(cfg.Threads, client, counters, cfg.ReadOnly, logger, fail)

	mgr, err := stress.NewManager(stress.ManagerConfig{
		BatchSize:     cfg.BatchSize,
		ReadOnly:      cfg.ReadOnly,
		MaxJobsPerSec: cfg.MaxJobsPerSec,
	}, users, sampler, pool, counters, &stop, rng, logger)
	if err != nil {
		return err
	}

	logger.Info("starting stress run",
		zap.String("addr", cfg.Addr),
		zap.Int("users", len(users)),
		zap.Int("threads", cfg.Threads),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Bool("read_only", cfg.ReadOnly),
	)

	ctx := context.Background()
	mgr.Run(ctx)

	if cfg.ReadOnly {
		logger.Info("read-only run complete, skipping verification")
		return nil
	}
	return stress.Verify(ctx, users, client, logger)
}
