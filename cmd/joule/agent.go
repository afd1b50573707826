package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benaskins/joule/internal/api"
	"github.com/benaskins/joule/internal/config"
	"github.com/benaskins/joule/internal/energy"
	"github.com/benaskins/joule/internal/history"
	"github.com/benaskins/joule/internal/journal"
	"github.com/benaskins/joule/internal/metrics"
	"github.com/benaskins/joule/internal/power"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the energy accounting agent",
	Long:  "Sample CPU and GPU power, learn idle baselines, integrate workload power into a joule ledger and serve the control API.",
	RunE:  runAgent,
}

var agentAddr string

func init() {
	agentCmd.Flags().StringVar(&agentAddr, "api-addr", "", "TCP address for the API (default 127.0.0.1:8787)")
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if agentAddr != "" {
		cfg.APIAddr = agentAddr
	}

	slog.Info("joule agent starting",
		"cpu_tdp_w", cfg.CPUTDPW,
		"smoothing", cfg.SmoothingAlpha,
		"sample_hz", cfg.SampleHz,
		"idle_learn_w", cfg.IdleLearnW)
	warnIfNotLoopback(cfg.APIAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	adapter := power.NewAdapter(cfg.CPUTDPW)
	defer adapter.Close()

	ledger := &energy.Ledger{}
	ring := history.New(cfg.History)

	samplerOpts := []energy.SamplerOption{energy.OnSample(ring.Add)}
	apiOpts := []api.Option{api.WithHistory(ring)}

	if cfg.MetricsEnabled() {
		rec := metrics.New(ledger.Balance)
		samplerOpts = append(samplerOpts,
			energy.OnSample(rec.ObserveSample),
			energy.OnOverrun(rec.ObserveOverrun))
		apiOpts = append(apiOpts, api.WithMetrics(rec))
	}

	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return err
		}
		defer j.Close()
		slog.Info("debit journal enabled", "path", cfg.Journal)
		apiOpts = append(apiOpts, api.WithJournal(j))
	}

	sampler := energy.NewSampler(adapter, ledger, cfg, samplerOpts...)
	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		sampler.Run(ctx)
	}()

	ln, err := net.Listen("tcp", cfg.APIAddr)
	if err != nil {
		return fmt.Errorf("binding API: %w", err)
	}

	srv := api.NewServer(sampler, ledger, apiOpts...)

	// Start API in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	slog.Info("joule agent ready", "addr", ln.Addr().String())

	serveErr := waitForShutdown(sigCh, errCh)

	// Graceful shutdown
	cancel()
	<-samplerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	slog.Info("joule agent stopped", "bucket_j", ledger.Balance())
	return agentExitError(serveErr, shutdownErr)
}

// waitForShutdown blocks until a signal arrives or the API server stops,
// returning the server's error in the latter case.
func waitForShutdown(sigCh <-chan os.Signal, errCh <-chan error) error {
	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
		return nil
	case err := <-errCh:
		if err != nil {
			slog.Error("API server error", "error", err)
			return err
		}
		return errors.New("API server stopped unexpectedly")
	}
}

func agentExitError(serveErr, shutdownErr error) error {
	var errs []error
	if serveErr != nil {
		errs = append(errs, fmt.Errorf("API server: %w", serveErr))
	}
	if shutdownErr != nil {
		slog.Warn("API shutdown incomplete", "error", shutdownErr)
		errs = append(errs, fmt.Errorf("shutting down API: %w", shutdownErr))
	}
	return errors.Join(errs...)
}

// warnIfNotLoopback logs when the API is bound beyond the local host. The
// API has no authentication.
func warnIfNotLoopback(addr string) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return
	}
	if host == "localhost" {
		return
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return
	}
	slog.Warn("API bound to a non-loopback address without authentication", "addr", addr)
}
