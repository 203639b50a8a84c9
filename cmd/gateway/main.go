package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"casinogw/internal/backoff"
	"casinogw/internal/config"
	"casinogw/internal/debuglog"
	"casinogw/internal/forward"
	"casinogw/internal/gateway"
	"casinogw/internal/metrics"
	"casinogw/internal/network"
	"casinogw/internal/nonce"
	"casinogw/internal/pprofutil"
	"casinogw/internal/proto"
	"casinogw/internal/session"
	"casinogw/internal/stream"
	"casinogw/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "listen addr (host:port); overrides GATEWAY_LISTEN_ADDR")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *debug || cfg.Debug {
		debuglog.SetEnabled(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg, stdout); err != nil {
		fmt.Fprintf(stderr, "gateway: %v\n", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()
	prof, err := pprofutil.Start(pprofutil.Options{
		Enabled:     cfg.PprofEnabled,
		Addr:        cfg.PprofAddr,
		AllowPublic: cfg.PprofAllowPublic,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = prof.Close(sctx)
	}()

	m := metrics.New()
	ledger, err := network.New(network.Options{
		BaseURL:           cfg.LedgerHTTPURL,
		Origin:            cfg.Origin,
		SubmitTimeout:     cfg.SubmitTimeout,
		HealthTimeout:     cfg.HealthTimeout,
		MaxSubmissionSize: cfg.MaxSubmissionSize,
		Metrics:           m,
	})
	if err != nil {
		return err
	}
	seq := nonce.New(ledger, m)
	retries := cfg.MaxRetries
	if retries == 0 {
		// forward.Options reads zero as its default.
		retries = -1
	}
	fwd := forward.New(ledger, forward.Options{
		MaxRetries: retries,
		Backoff:    backoff.Policy{Base: cfg.RetryBase, Multiplier: 2, Max: cfg.RetryMax, Jitter: cfg.RetryJitter},
		EntryTTL:   cfg.IdempotencyTTL,
		Metrics:    m,
	})
	streams := func() session.StreamClient {
		return stream.New(stream.Options{
			BaseURL:       cfg.LedgerWSURL,
			Origin:        cfg.Origin,
			Backoff:       backoff.Policy{Base: cfg.ReconnectBase, Multiplier: 2, Max: cfg.ReconnectMax},
			PendingCap:    cfg.PendingEventCap,
			OnTransaction: seq.Observe,
			Metrics:       m,
		})
	}
	coord := session.New(session.Deps{
		Submitter:    ledger,
		Accounts:     ledger,
		Sequencer:    seq,
		Forwarder:    fwd,
		Streams:      streams,
		Instructions: proto.CasinoInstructions{},
		Metrics:      m,
	}, session.Options{
		InitialDeposit: cfg.InitialDeposit,
		EventWait:      cfg.EventWaitTimeout,
		IdleTimeout:    cfg.SessionIdleTimeout,
		SweepEvery:     cfg.SessionSweep,
		RatePoints:     cfg.SessionRatePoints,
		RateWindow:     cfg.SessionRateWindow,
		RateBlock:      cfg.SessionRateBlock,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gateway.New(coord, ledger, m, gateway.Options{MaxConnsPerIP: cfg.MaxConnsPerIP}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if !ledger.HealthCheck(ctx) {
		debuglog.Logf("ledger %s not reachable yet", cfg.LedgerHTTPURL)
	}
	fmt.Fprintf(stdout, "READY addr=%s ledger=%s\n", cfg.ListenAddr, cfg.LedgerHTTPURL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		coord.Run(gctx)
		return nil
	})
	g.Go(func() error {
		fwd.Run(gctx, cfg.IdempotencySweep)
		return nil
	})
	err = g.Wait()
	if cfg.MetricsSnapshotPath != "" {
		if werr := m.WriteSnapshot(cfg.MetricsSnapshotPath); werr != nil {
			debuglog.Logf("write metrics snapshot failed: %v", werr)
		}
	}
	return err
}
