package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"talentCorner/internal/config"
	"talentCorner/internal/database"
	"talentCorner/internal/mailer"
	"talentCorner/internal/metrics"
	"talentCorner/internal/notify"
	"talentCorner/internal/tasks"
	"talentCorner/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	sender, err := mailer.NewSMTPSender(cfg.Mail)
	if err != nil {
		log.Fatalf("init smtp sender: %v", err)
	}
	defer sender.Close()

	renderer, err := notify.NewRenderer(cfg.Notify)
	if err != nil {
		log.Fatalf("load mail templates: %v", err)
	}
	publisher := notify.NewRedisPublisher(redisClient)
	service := notify.NewService(db, notify.NewDispatcher(sender, cfg.Mail, logger), renderer, publisher, logger)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeNotifyCampaign, worker.NewNotifyTaskHandler(service, publisher, logger))

	logger.Info("worker service started",
		slog.String("redis_addr", cfg.Redis.Addr()),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
