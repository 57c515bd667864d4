package domain

import (
	"context"
	"time"
)

// MessageSource читает историю каналов Telegram.
type MessageSource interface {
	// ResolveChannel находит канал по алиасу, ссылке или числовому идентификатору.
	ResolveChannel(ctx context.Context, ref string) (Channel, error)
	// IterHistory перебирает сообщения канала от новых к старым, пока yield возвращает true.
	// limit <= 0 означает отсутствие ограничения.
	IterHistory(ctx context.Context, channel Channel, limit int, yield func(Post) bool) error
}

// MarketDataClient выполняет пакетный запрос капитализации по списку адресов.
type MarketDataClient interface {
	FetchMarketData(ctx context.Context, addresses []string) (MarketSnapshot, error)
}

// AccountFetcher читает сырые данные аккаунта Solana. Для отсутствующего аккаунта возвращает (nil, nil).
type AccountFetcher interface {
	GetAccountData(ctx context.Context, address string) ([]byte, error)
}

// MetadataFetcher загружает off-chain JSON метаданных по URI.
type MetadataFetcher interface {
	FetchOffchain(ctx context.Context, uri string) (OffchainMetadata, error)
}

// Notifier доставляет текст в чат назначения.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Cache хранилище ключ-значение для чистых (неустаревающих) данных.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ChannelRepo хранит каталог известных каналов-источников.
type ChannelRepo interface {
	UpsertChannel(ctx context.Context, channel Channel) (Channel, error)
	ListChannels(ctx context.Context) ([]Channel, error)
	GetChannelByTGID(ctx context.Context, tgChannelID int64) (Channel, error)
}

// ReportRepo сохраняет журнал отправленных отчётов.
type ReportRepo interface {
	SaveReports(ctx context.Context, cycleID string, records []MergedRecord) error
}

// ReportQuery читает журнал отчётов, новые записи первыми.
type ReportQuery interface {
	ListReports(ctx context.Context, address string, limit int) ([]TokenReport, error)
}

// SessionRepo хранит MTProto-сессии.
type SessionRepo interface {
	LoadMTProtoSession(ctx context.Context, name string) ([]byte, error)
	StoreMTProtoSession(ctx context.Context, name string, data []byte) error
}
