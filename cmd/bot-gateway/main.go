package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-contract-scanner/internal/adapters/bot"
	"tg-contract-scanner/internal/adapters/repo"
	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/cache"
	"tg-contract-scanner/internal/infra/config"
	"tg-contract-scanner/internal/infra/db"
	httpserver "tg-contract-scanner/internal/infra/http"
	"tg-contract-scanner/internal/infra/log"
	"tg-contract-scanner/internal/infra/metrics"
	"tg-contract-scanner/internal/infra/queue"
)

const (
	updateDedupTTL = time.Hour
	pollTimeout    = 30
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось открыть очередь задач")
	}
	defer closeQueue()

	var channels domain.ChannelRepo
	if cfg.PGDSN != "" {
		pool, err := db.Connect(ctx, cfg.DB())
		if err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: не удалось подключиться к БД")
		}
		defer pool.Close()
		channels = repo.NewPostgres(pool)
	}

	botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, &http.Client{
		// long polling держит запрос до pollTimeout секунд
		Timeout: pollTimeout*time.Second + cfg.Enrich.HTTPTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось создать бота")
	}

	h := bot.NewHandler(botAPI, log.Component(logger, "bot"), jobs, channels)
	handle := dedupHandler(h, redisClient, logger)

	srv := httpserver.NewServer(log.Component(logger, "http"))
	srv.Router.With(httpserver.WebhookSecretMiddleware(cfg.Telegram.WebhookSecret)).
		Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
			var update tgbotapi.Update
			if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			handle(r.Context(), update)
			w.WriteHeader(http.StatusOK)
		})

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("bot-gateway: HTTP сервер остановлен")
			stop()
		}
	}()

	if cfg.Telegram.WebhookURL == "" {
		logger.Info().Msg("bot-gateway: webhook не задан, используем long polling")
		go poll(ctx, botAPI, handle)
	} else {
		logger.Info().Str("url", cfg.Telegram.WebhookURL).Msg("bot-gateway: ожидаем webhook")
	}

	<-ctx.Done()
	logger.Info().Msg("bot-gateway: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// dedupHandler отбрасывает повторную доставку одного апдейта, если доступен Redis.
func dedupHandler(h *bot.Handler, client *redis.Client, logger zerolog.Logger) func(context.Context, tgbotapi.Update) {
	if client == nil {
		return h.HandleUpdate
	}
	seen := cache.NewRedis(client, "bot:update:")
	return func(ctx context.Context, upd tgbotapi.Update) {
		err := seen.Once(ctx, strconv.Itoa(upd.UpdateID), updateDedupTTL, func() error {
			h.HandleUpdate(ctx, upd)
			return nil
		})
		if err != nil {
			logger.Warn().Err(err).Int("update_id", upd.UpdateID).Msg("bot-gateway: dedup unavailable")
			h.HandleUpdate(ctx, upd)
		}
	}
}

func poll(ctx context.Context, botAPI *tgbotapi.BotAPI, handle func(context.Context, tgbotapi.Update)) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := botAPI.GetUpdatesChan(u)
	defer botAPI.StopReceivingUpdates()
	for {
		select {
		case <-ctx.Done():
			return
		case upd := <-updates:
			handle(ctx, upd)
		}
	}
}
