// cmd/historian/main.go drains the room event queue into postgres.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/matchroom/internal/cache"
	"github.com/jason-s-yu/matchroom/internal/config"
	"github.com/jason-s-yu/matchroom/internal/database"
	"github.com/jason-s-yu/matchroom/internal/historian"
	"github.com/jason-s-yu/matchroom/internal/models"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.PostgresDSN())
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	source := func(ctx context.Context, timeout time.Duration, max int) ([]models.RoomEvent, error) {
		return cache.PopRoomEvents(ctx, rdb, cfg.RoomEventQueue, timeout, max)
	}
	svc := historian.New(source, database.NewStore(pool), cfg.HistorianBatchSize, cfg.HistorianFlush,
		logger.WithField("queue", cfg.RoomEventQueue))

	if err := svc.Run(ctx); err != nil {
		logger.Errorf("historian exited: %v", err)
	}
}
