package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tg-contract-scanner/internal/adapters/mtproto"
	"tg-contract-scanner/internal/adapters/offchain"
	"tg-contract-scanner/internal/adapters/repo"
	"tg-contract-scanner/internal/adapters/solanatracker"
	"tg-contract-scanner/internal/adapters/telegram"
	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/cache"
	"tg-contract-scanner/internal/infra/config"
	"tg-contract-scanner/internal/infra/db"
	applog "tg-contract-scanner/internal/infra/log"
	"tg-contract-scanner/internal/infra/metrics"
	"tg-contract-scanner/internal/infra/queue"
	"tg-contract-scanner/internal/solana"
	"tg-contract-scanner/internal/usecase/enrich"
	"tg-contract-scanner/internal/usecase/extract"
	"tg-contract-scanner/internal/usecase/poll"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	if cfg.PGDSN == "" {
		logger.Fatal().Msg("collector: не указан PG_DSN")
	}
	pool, err := db.Connect(ctx, cfg.DB())
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	migrateCtx, migrateCancel := context.WithTimeout(ctx, 30*time.Second)
	err = repoAdapter.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: миграции не применены")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("collector: redis недоступен")
		}
	}

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("collector: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, &http.Client{Timeout: cfg.Enrich.HTTPTimeout})
	if err != nil {
		logger.Fatal().Err(err).Msg("collector: не удалось создать бота")
	}
	notifier := telegram.NewNotifier(botAPI, cfg.Poll.SendInterval, applog.Component(logger, "notifier"))

	var jobs domain.JobQueue
	if redisClient != nil || cfg.Queues.RabbitURL != "" {
		q, closeQueue, err := queue.Open(queue.Options{
			Backend:   cfg.Queues.Backend,
			Key:       cfg.Queues.Extract,
			Redis:     redisClient,
			RabbitURL: cfg.Queues.RabbitURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("collector: не удалось открыть очередь задач")
		}
		defer closeQueue()
		jobs = q
	}

	httpClient := &http.Client{Timeout: cfg.Enrich.HTTPTimeout}
	rpc := solana.NewHTTPClient(cfg.Solana.RPCURL,
		solana.WithTimeout(cfg.Enrich.HTTPTimeout),
		solana.WithMaxRetries(cfg.Solana.RPCRetries),
	)
	enricher := enrich.NewService(enrich.Deps{
		Market:    solanatracker.NewClient(cfg.SolanaTracker.BaseURL, cfg.SolanaTracker.APIKey, httpClient, applog.Component(logger, "solanatracker")),
		Accounts:  rpc,
		Offchain:  offchain.NewFetcher(httpClient),
		PDACache:  newCache(redisClient, "pda", logger),
		MetaCache: newCache(redisClient, "offchain", logger),
		Releasers: []func(){rpc.CloseIdleConnections, httpClient.CloseIdleConnections},
	}, enrich.Config{
		MinMarketCap: cfg.Enrich.MinMarketCap,
		Concurrency:  cfg.Enrich.Concurrency,
		CacheTTL:     cfg.Enrich.CacheTTL,
	}, applog.Component(logger, "enrich"))

	polling := len(cfg.Poll.SourceChannels) > 0 && cfg.Poll.DestChatID != 0
	if !polling && jobs == nil {
		logger.Fatal().Msg("collector: нечего делать, задайте SOURCE_CHANNELS и DEST_CHAT_ID или очередь задач")
	}

	clientCfg := mtproto.ClientConfig{
		APIID:   cfg.Telegram.APIID,
		APIHash: cfg.Telegram.APIHash,
		Storage: mtproto.NewSessionDB(repoAdapter, cfg.MTProto.SessionName),
		Options: []mtproto.Option{
			mtproto.WithCatalog(repoAdapter),
			mtproto.WithRPS(cfg.MTProto.GlobalRPS),
			mtproto.WithHistoryCap(cfg.MTProto.HistoryCap),
			mtproto.WithCallTimeout(cfg.MTProto.CallTimeout),
		},
	}

	logger.Info().Strs("channels", cfg.Poll.SourceChannels).Bool("jobs", jobs != nil).Msg("collector: запуск")
	err = mtproto.Run(ctx, clientCfg, applog.Component(logger, "mtproto"), func(ctx context.Context, src *mtproto.Source) error {
		extractor := extract.New(src, solana.NewValidator(), extract.Config{
			Window:      cfg.Poll.LookbackWindow,
			Concurrency: cfg.Poll.ScanConcurrency,
		}, applog.Component(logger, "extract"))

		g, ctx := errgroup.WithContext(ctx)
		if polling {
			loop := poll.NewLoop(extractor, func() poll.EnrichSession { return enricher.Open() }, notifier, repoAdapter, poll.Config{
				Channels:   cfg.Poll.SourceChannels,
				DestChatID: cfg.Poll.DestChatID,
				Interval:   cfg.Poll.Interval,
				Backoff:    cfg.Poll.Backoff,
			}, applog.Component(logger, "poll"))
			g.Go(func() error { return loop.Run(ctx) })
		}
		if jobs != nil {
			worker := poll.NewWorker(jobs, extractor, notifier, extractor.Window(), applog.Component(logger, "worker"))
			g.Go(func() error { return worker.Run(ctx) })
		}
		return g.Wait()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("collector: остановлен с ошибкой")
	}
	logger.Info().Msg("collector: остановлен")
}

// newCache собирает кэш неустаревающих данных: память процесса и, если есть, Redis.
func newCache(client *redis.Client, name string, logger zerolog.Logger) domain.Cache {
	local := cache.NewMemory()
	if client == nil {
		return cache.NewLayered(local, nil, logger)
	}
	return cache.NewLayered(local, cache.NewRedis(client, "scanner:"+name+":"), applog.Component(logger, "cache"))
}
