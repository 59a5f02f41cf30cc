// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/matchroom/internal/auth"
	"github.com/jason-s-yu/matchroom/internal/cache"
	"github.com/jason-s-yu/matchroom/internal/config"
	"github.com/jason-s-yu/matchroom/internal/database"
	"github.com/jason-s-yu/matchroom/internal/handlers"
	"github.com/jason-s-yu/matchroom/internal/middleware"
	"github.com/jason-s-yu/matchroom/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if cfg.JWTPrivateKeyPath != "" {
		err = auth.InitFromPath(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.TokenExpireTime)
	} else {
		logger.Warn("No JWT key files configured, signing with a generated key pair.")
		err = auth.Init(cfg.TokenExpireTime)
	}
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(cfg.PostgresDSN(), logger.WithField("component", "migrate")); err != nil {
		logger.Fatalf("migrate: %v", err)
	}
	pool, err := database.Connect(ctx, cfg.PostgresDSN())
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	store := database.NewStore(pool)

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	hub := handlers.NewHub(logger.WithField("component", "hub"))
	mgr := room.NewManager(room.Deps{
		Store:    store,
		Beatmaps: store,
		Users:    store,
		Events:   cache.NewEventLog(rdb, cfg.RoomEventQueue),
		Hub:      hub,
		Logger:   logger.WithField("component", "rooms"),
	}, room.Config{
		LeaseTimeout:      cfg.LeaseTimeout,
		ForceStartTimeout: cfg.ForceStartTimeout,
	})

	mux := http.NewServeMux()
	mux.Handle("/rooms", middleware.LogMiddleware(logger)(
		handlers.ListRoomsHandler(mgr),
	))
	mux.Handle("/ws", middleware.LogMiddleware(logger)(
		handlers.RoomWSHandler(logger, mgr, hub, cfg.WSMessagesPerSecond),
	))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		mgr.Shutdown(shutdownCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server exited: %v", err)
	}
}
