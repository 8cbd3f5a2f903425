package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atlasbahamas/atlas/internal/config"
	"github.com/atlasbahamas/atlas/internal/database"
	"github.com/atlasbahamas/atlas/internal/logging"
	"github.com/atlasbahamas/atlas/internal/server"
	"github.com/atlasbahamas/atlas/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("atlas exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, "atlas", telemetry.Options{
		Endpoint:     cfg.OTELEndpoint,
		Insecure:     cfg.OTELInsecure,
		Sampler:      cfg.OTELSampler,
		SamplerRatio: cfg.OTELSamplerArg,
	}, logger)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := cfg.NewRedisClient(logger)
	if rdb != nil {
		defer rdb.Close()
	}

	srv, err := server.New(db, cfg, rdb, logger)
	if err != nil {
		return err
	}
	if err := server.BootstrapAdmin(srv.Users(), cfg.Bootstrap, logger); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sweeper := srv.Sweeper()
	sweeper.Start(ctx, cfg.HousekeepingInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("atlas listening", "addr", cfg.Addr, "db", cfg.DatabasePath, "redis", rdb != nil)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		sweeper.Stop()
		srv.Shutdown()
		if terr := shutdownTracing(shutdownCtx); terr != nil {
			logger.Warn("tracer shutdown", "error", terr)
		}
		return err
	})
	return g.Wait()
}
