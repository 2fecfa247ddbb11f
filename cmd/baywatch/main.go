// cmd/baywatch/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/baywatch/internal/api"
	"github.com/tamzrod/baywatch/internal/bus"
	"github.com/tamzrod/baywatch/internal/config"
	"github.com/tamzrod/baywatch/internal/health"
	"github.com/tamzrod/baywatch/internal/occupancy"
	"github.com/tamzrod/baywatch/internal/stream/rtsp"
	"github.com/tamzrod/baywatch/internal/supervisor"
	"github.com/tamzrod/baywatch/internal/writer"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: baywatch <config.yaml>")
		os.Exit(2)
	}

	if err := run(os.Args[1]); err != nil {
		slog.Error("baywatch exited", "err", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if err := config.Prepare(cfg, os.LookupEnv); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	b := cfg.Baywatch

	log := newLogger(b.Log, os.Stdout)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Event bus
	// --------------------

	pub, err := bus.New(ctx, bus.Config{
		Kind:        b.Bus.Kind,
		URL:         b.Bus.URL,
		TopicPrefix: b.Bus.TopicPrefix,
		ClientID:    b.Bus.ClientID,
	}, log)
	if err != nil {
		return err
	}
	events := bus.NewAsync(pub, 256, log)
	defer events.Close()

	// --------------------
	// Status memory export (optional per bay)
	// --------------------

	statusWriters, closeWriters, err := writer.BuildStatusWriters(cfg)
	if err != nil {
		return fmt.Errorf("status writers: %w", err)
	}
	defer closeWriters()

	// --------------------
	// Bays
	// --------------------

	reg, err := supervisor.Build(cfg, supervisor.Deps{
		Dialer: rtsp.NewDialer(log),
		Logger: log,
		OnChange: func(c occupancy.Change) {
			events.Status(bus.EventFromChange(c))
		},
		StatusWriters: statusWriters,
	})
	if err != nil {
		return fmt.Errorf("bay build failed: %w", err)
	}

	agg := health.NewAggregator(health.Config{
		BaysTotal:                   reg.Len(),
		BayIDs:                      reg.IDs(),
		AssumedDowntimePerReconnect: b.Monitor.AssumedDowntimePerReconnect(),
		Rules:                       health.DefaultRules,
	}, health.WithLogger(log))

	sup, err := supervisor.New(supervisor.Config{
		PollInterval:      b.Monitor.PollInterval(),
		SampleTimeout:     b.Monitor.SampleTimeout(),
		StatusLogInterval: b.Monitor.StatusLogInterval(),
	}, reg, agg, supervisor.WithLogger(log))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: b.API.Listen,
		Handler: api.NewRouter(&api.Handler{
			Bays:    reg,
			Health:  agg,
			Config:  cfg,
			Env:     os.LookupEnv,
			Version: version,
			Started: time.Now(),
			Log:     log,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	// --------------------
	// Run
	// --------------------

	g, gctx := errgroup.WithContext(ctx)

	reg.StartAll(gctx)
	log.Info("baywatch started", "bays", reg.Len(), "version", version, "bus", b.Bus.Kind)

	g.Go(func() error {
		sup.Run(gctx)
		return nil
	})
	g.Go(func() error {
		agg.Run(gctx, b.Monitor.HealthCheckInterval(), events.Health)
		return nil
	})
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	if stopErr := reg.StopAll(b.Monitor.StopTimeout()); stopErr != nil {
		log.Warn("stream workers did not stop cleanly", "err", stopErr)
	}
	log.Info("baywatch stopped")
	return err
}
