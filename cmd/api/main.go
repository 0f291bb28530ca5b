package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"talentCorner/internal/api"
	"talentCorner/internal/auth"
	"talentCorner/internal/config"
	"talentCorner/internal/database"
	"talentCorner/internal/importer"
	"talentCorner/internal/mailer"
	"talentCorner/internal/notify"
	"talentCorner/internal/ranking"
	"talentCorner/internal/records"
	"talentCorner/internal/report"
	"talentCorner/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := cfg.API.NewLogger(os.Stdout)
	slog.SetDefault(logger)
	logger.Info("api bootstrapping",
		slog.String("db_host", cfg.Database.Host),
		slog.Int("db_port", cfg.Database.Port),
		slog.String("db_name", cfg.Database.Name),
		slog.String("storage_driver", cfg.Storage.Driver),
	)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	logger.Info("database migrated")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	queue := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer queue.Close()

	objects, err := storage.New(*cfg)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}
	// 本地存储时由 API 自己提供文件下载。
	local, _ := objects.(*storage.LocalStore)

	privPEM, err := os.ReadFile(cfg.Auth.PrivateKeyPath)
	if err != nil {
		log.Fatalf("read jwt private key: %v", err)
	}
	pubPEM, err := os.ReadFile(cfg.Auth.PublicKeyPath)
	if err != nil {
		log.Fatalf("read jwt public key: %v", err)
	}
	tokens, err := auth.NewAuthService(privPEM, pubPEM, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
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
	dispatcher := notify.NewDispatcher(sender, cfg.Mail, logger)
	progress := notify.NewRedisPublisher(redisClient)
	notifier := notify.NewService(db, dispatcher, renderer, progress, logger)

	limiter := api.NewRedisLimiter(redisClient)
	store := records.NewStore(db, objects, storage.NewScanner(cfg.Clamd.Addr), cfg.Storage.URLTTL, logger)

	deps := api.Dependencies{
		Tokens:         tokens,
		InternalSecret: cfg.API.InternalSecret,
		MaxUploadMB:    cfg.API.MaxUploadMB,
		Auth: api.NewAuthHandler(
			auth.NewAccounts(db, cfg.Auth.OTPTTL),
			tokens,
			limiter,
			limiter,
			renderer,
			dispatcher,
			cfg.Auth,
			cfg.API.CookieDomain,
		),
		Import:     api.NewImportHandler(importer.NewPipeline(db, logger), store),
		Candidates: api.NewCandidateHandler(store, local, cfg.API.MaxUploadMB),
		Rankings:   api.NewRankingHandler(ranking.NewEngine(db, logger)),
		Notify:     api.NewNotifyHandler(notifier, queue),
		Reports:    api.NewReportHandler(report.NewReporter(db, logger)),
		Ws:         api.NewWsHandler(progress, tokens, logger, cfg.API.AllowedOrigins),
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           api.NewRouter(deps, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("api shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
