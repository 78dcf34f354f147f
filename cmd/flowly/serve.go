package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flowly/flowly/internal/adapters/repository/memory"
	"github.com/flowly/flowly/internal/adapters/repository/postgres"
	"github.com/flowly/flowly/internal/adapters/repository/redis"
	"github.com/flowly/flowly/internal/adapters/repository/sqlite"
	"github.com/flowly/flowly/internal/adapters/rest"
	"github.com/flowly/flowly/internal/adapters/websocket"
	"github.com/flowly/flowly/internal/app/services"
	"github.com/flowly/flowly/internal/config"
	"github.com/flowly/flowly/internal/core/checkpoint"
	"github.com/flowly/flowly/internal/core/graph"
	"github.com/flowly/flowly/internal/logging"
	"github.com/flowly/flowly/pkg/serialization"
)

func newServeCmd() *cobra.Command {
	var (
		addr    string
		load    string
		restore bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a flow over HTTP",
		Long: `Starts the HTTP API with a WebSocket event stream at /events. Settings
come from FLOWLY_* environment variables or a .env file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger, err := logging.New(cfg.Server.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger, load, restore)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides FLOWLY_ADDR)")
	cmd.Flags().StringVar(&load, "load", "", "load this flow document at startup")
	cmd.Flags().BoolVar(&restore, "restore", true, "restore the latest checkpoint at startup")
	return cmd
}

type closer func() error

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, load string, restore bool) error {
	saver, closeSaver, err := openSaver(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSaver(); err != nil {
			logger.Warn("failed to close checkpoint store", zap.Error(err))
		}
	}()

	store := graph.NewStore(graph.WithLogger(logger.Named("store")))
	svc := services.NewCheckpointService(saver, cfg.Server.FlowID,
		services.WithCheckpointLogger(logger.Named("checkpoints")))

	switch {
	case load != "":
		doc, err := readDocument(load)
		if err != nil {
			return err
		}
		if err := store.LoadDocument(doc); err != nil {
			return fmt.Errorf("failed to load %s: %w", load, err)
		}
	case restore:
		latest, err := svc.Latest(ctx)
		switch {
		case errors.Is(err, checkpoint.ErrCheckpointNotFound):
		case err != nil:
			return err
		default:
			if err := store.LoadDocument(&latest.Document); err != nil {
				return fmt.Errorf("failed to restore checkpoint %s: %w", latest.ID, err)
			}
			logger.Info("restored checkpoint", zap.String("checkpoint_id", latest.ID))
		}
	}
	store.SetGlobalReadOnly(cfg.Server.ReadOnly)
	services.ObserveGraphSize(store)

	hub := websocket.NewHub(logger.Named("events"))
	hub.Attach(store)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	api := rest.NewServer(store,
		rest.WithCheckpoints(svc),
		rest.WithEvents(websocket.NewHandler(hub, originChecker(cfg.Server.AllowedOrigins), logger.Named("events"))),
		rest.WithLogger(logger.Named("http")),
		rest.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		rest.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
	)

	autosaveDone := make(chan struct{})
	autoCtx, stopAutosave := context.WithCancel(context.Background())
	if cfg.Checkpoint.AutosaveInterval > 0 {
		auto := services.NewAutosaver(store, svc,
			services.WithLocker(api.Locker()),
			services.WithAutosaveLogger(logger.Named("autosave")))
		go func() {
			defer close(autosaveDone)
			auto.Run(autoCtx, cfg.Checkpoint.AutosaveInterval)
		}()
	} else {
		close(autosaveDone)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting flowly server",
			zap.String("addr", srv.Addr),
			zap.String("flow_id", cfg.Server.FlowID),
			zap.String("store", cfg.Checkpoint.Store),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown did not complete", zap.Error(err))
		_ = srv.Close()
	}
	stopHub()

	// the autosaver flushes once more on the way out
	stopAutosave()
	<-autosaveDone
	return runErr
}

// openSaver builds the checkpoint store named by cfg.
func openSaver(ctx context.Context, cfg *config.Config) (checkpoint.Saver, closer, error) {
	codec, err := serialization.CodecByName(cfg.Checkpoint.Codec)
	if err != nil {
		return nil, nil, err
	}
	ser := serialization.NewSerializer(serialization.Config{
		Codec:       codec,
		Compression: serialization.CompressionType(cfg.Checkpoint.Compression),
	})
	noop := func() error { return nil }

	switch cfg.Checkpoint.Store {
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, cfg.Checkpoint.SQLitePath, ser)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.Checkpoint.PostgresURL, ser)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { s.Close(); return nil }, nil
	case config.StoreRedis:
		s := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Checkpoint.TTL),
			redis.WithSerializer(ser),
		)
		return s, s.Close, nil
	default:
		return memory.NewCheckpointSaver(memory.Config{TTL: cfg.Checkpoint.TTL, Serializer: ser}), noop, nil
	}
}

// originChecker accepts websocket upgrades from the configured origins. With
// none configured every origin is accepted.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}
