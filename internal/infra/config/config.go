package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"tg-contract-scanner/internal/infra/db"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	APIToken    string `envconfig:"API_TOKEN"`

	Telegram struct {
		Token         string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL    string `envconfig:"TG_WEBHOOK_URL"`
		WebhookSecret string `envconfig:"TG_WEBHOOK_SECRET"`
		APIID         int    `envconfig:"TG_API_ID"`
		APIHash       string `envconfig:"TG_API_HASH"`
	} `envconfig:""`

	MTProto struct {
		SessionName string        `envconfig:"MTPROTO_SESSION_NAME" default:"default"`
		GlobalRPS   int           `envconfig:"MTPROTO_GLOBAL_RPS" default:"20"`
		HistoryCap  int           `envconfig:"MTPROTO_HISTORY_LIMIT" default:"2000"`
		CallTimeout time.Duration `envconfig:"MTPROTO_CALL_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Poll struct {
		SourceChannels  []string      `envconfig:"SOURCE_CHANNELS"`
		DestChatID      int64         `envconfig:"DEST_CHAT_ID"`
		Interval        time.Duration `envconfig:"POLL_INTERVAL" default:"5m"`
		Backoff         time.Duration `envconfig:"POLL_BACKOFF" default:"1m"`
		SendInterval    time.Duration `envconfig:"SEND_INTERVAL" default:"1s"`
		LookbackWindow  time.Duration `envconfig:"LOOKBACK_WINDOW" default:"3h"`
		ScanConcurrency int           `envconfig:"SCAN_CONCURRENCY" default:"4"`
	} `envconfig:""`

	Enrich struct {
		MinMarketCap float64       `envconfig:"MIN_MARKET_CAP" default:"10000"`
		Concurrency  int           `envconfig:"ENRICH_CONCURRENCY" default:"8"`
		HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
		CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"0s"`
	} `envconfig:""`

	Solana struct {
		RPCURL     string `envconfig:"SOLANA_RPC_URL" default:"https://api.mainnet-beta.solana.com"`
		RPCRetries int    `envconfig:"SOLANA_RPC_RETRIES" default:"2"`
	} `envconfig:""`

	SolanaTracker struct {
		BaseURL string `envconfig:"SOLANATRACKER_URL" default:"https://data.solanatracker.io"`
		APIKey  string `envconfig:"SOLANATRACKER_API_KEY"`
	} `envconfig:""`

	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"5"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Queues struct {
		Backend   string `envconfig:"QUEUE_BACKEND" default:"redis"`
		RabbitURL string `envconfig:"RABBITMQ_URL"`
		Extract   string `envconfig:"EXTRACT_QUEUE_KEY" default:"extract_jobs"`
	} `envconfig:""`
}

// DB возвращает параметры пула Postgres.
func (c AppConfig) DB() db.Config {
	return db.Config{DSN: c.PGDSN, MaxConns: c.PGMaxConns}
}

// Load загружает конфиг из окружения. Файл .env необязателен.
func Load() AppConfig {
	cfg, err := load()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

func load() (AppConfig, error) {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	cfg.Poll.SourceChannels = cleanList(cfg.Poll.SourceChannels)
	cfg.Queues.Backend = strings.ToLower(strings.TrimSpace(cfg.Queues.Backend))
	return cfg, nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
