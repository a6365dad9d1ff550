package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"prism-board/api"
	"prism-board/board"
	"prism-board/config"
	"prism-board/domain"
	"prism-board/persistence"
	"prism-board/storage"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board over HTTP and keep it in sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	parser, err := cfg.LegacyParser()
	if err != nil {
		return err
	}
	seed, err := seedFunc(cfg)
	if err != nil {
		return err
	}

	cache, err := storage.OpenCache(ctx, cfg.StorageCache())
	if err != nil {
		return fmt.Errorf("open local cache: %w", err)
	}
	defer cache.Close()

	remote, err := openRemote(ctx, cfg, logger)
	if err != nil {
		return err
	}
	opts := persistence.Options{
		Cache:          cache,
		Backend:        cfg.Remote.Backend,
		Seed:           seed,
		Logger:         logger,
		WriteTimeout:   cfg.Sync.WriteTimeout,
		StartupTimeout: cfg.Sync.StartupTimeout,
	}
	if remote != nil {
		opts.Remote = remote
	}
	orch := persistence.New(opts)
	store := board.New(board.Options{Persister: orch, Parser: parser, Logger: logger})

	if err := orch.Start(ctx, store.Adopt); err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	api.Register(e, store, logger)

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTP.Addr).Info("listening")
		if err := e.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	if cfg.Sync.FlushOnShutdown {
		if err := orch.Flush(shutdownCtx); err != nil {
			logger.WithError(err).Warn("final remote write failed")
		}
	}
	return orch.Close()
}

// openRemote returns nil when the session should run offline.
func openRemote(ctx context.Context, cfg *config.Config, logger *log.Logger) (storage.Remote, error) {
	remote, err := storage.OpenRemote(ctx, cfg.StorageRemote(), cfg.Board.ID, logger)
	switch {
	case err == nil:
		return remote, nil
	case errors.Is(err, storage.ErrRemoteNotConfigured):
		if cfg.Remote.Backend != "" && cfg.Remote.Backend != "none" {
			logger.WithError(err).Warn("remote backend selected without connection settings")
		}
		return nil, nil
	default:
		logger.WithError(err).WithField("backend", cfg.Remote.Backend).Error("remote unavailable, running offline")
		return nil, nil
	}
}

func seedFunc(cfg *config.Config) (func() *domain.Board, error) {
	var tpl *domain.SeedTemplate
	if cfg.Seed.File != "" {
		var err error
		if tpl, err = domain.LoadSeedTemplate(cfg.Seed.File); err != nil {
			return nil, err
		}
	}
	return func() *domain.Board {
		return domain.NewSeed(domain.SeedOptions{
			ID:       cfg.Board.ID,
			Name:     cfg.Board.Name,
			Now:      time.Now(),
			Template: tpl,
		})
	}, nil
}
