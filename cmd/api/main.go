package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"tg-contract-scanner/internal/adapters/repo"
	"tg-contract-scanner/internal/infra/config"
	"tg-contract-scanner/internal/infra/db"
	httpinfra "tg-contract-scanner/internal/infra/http"
	"tg-contract-scanner/internal/infra/metrics"
	"tg-contract-scanner/internal/infra/queue"
)

func main() {
	cfg := config.Load()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.APIToken == "" {
		log.Warn().Msg("api: API_TOKEN не задан, /api/v1 будет отвечать 401")
	}
	pool, err := db.Connect(ctx, cfg.DB())
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	store := repo.NewPostgres(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}
	jobs, closeQueue, err := queue.Open(queue.Options{
		Backend:   cfg.Queues.Backend,
		Key:       cfg.Queues.Extract,
		Redis:     redisClient,
		RabbitURL: cfg.Queues.RabbitURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("api: не удалось открыть очередь задач")
	}
	defer closeQueue()

	logger := log.With().Str("component", "api").Logger()
	srv := httpinfra.NewServer(logger)
	(&api{channels: store, reports: store, jobs: jobs, log: logger, now: time.Now}).mount(srv.Router, cfg.APIToken)

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			log.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	log.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
