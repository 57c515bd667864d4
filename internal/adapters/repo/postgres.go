package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-contract-scanner/internal/adapters/repo/migrations"
	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ChannelRepo = (*Postgres)(nil)
	_ domain.ReportRepo  = (*Postgres)(nil)
	_ domain.SessionRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Migrate применяет встроенные миграции по порядку номеров.
func (p *Postgres) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := p.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// LoadMTProtoSession загружает сохранённую MTProto-сессию.
func (p *Postgres) LoadMTProtoSession(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if name == "" {
		name = "default"
	}

	var data []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT data FROM mtproto_sessions WHERE name = $1`, name).Scan(&data)
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_load", "mtproto_sessions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// StoreMTProtoSession сохраняет MTProto-сессию.
func (p *Postgres) StoreMTProtoSession(ctx context.Context, name string, data []byte) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if name == "" {
		name = "default"
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO mtproto_sessions (name, data, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
`, name, append([]byte(nil), data...))
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_store", "mtproto_sessions", start, err)
	return err
}

const channelColumns = `id, tg_channel_id, access_hash, alias, title, created_at`

func scanChannel(row pgx.Row) (domain.Channel, error) {
	var ch domain.Channel
	err := row.Scan(&ch.ID, &ch.TGChannelID, &ch.AccessHash, &ch.Alias, &ch.Title, &ch.CreatedAt)
	return ch, err
}

// UpsertChannel добавляет канал в каталог или обновляет его данные.
func (p *Postgres) UpsertChannel(ctx context.Context, channel domain.Channel) (domain.Channel, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	ch, err := scanChannel(p.pool.QueryRow(ctx, `
INSERT INTO channels (tg_channel_id, access_hash, alias, title)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tg_channel_id) DO UPDATE
SET access_hash = EXCLUDED.access_hash, alias = EXCLUDED.alias, title = EXCLUDED.title, updated_at = now()
RETURNING `+channelColumns,
		channel.TGChannelID, channel.AccessHash, strings.ToLower(channel.Alias), channel.Title))
	metrics.ObserveNetworkRequest("postgres", "channels_upsert", "channels", start, err)
	return ch, err
}

// ListChannels возвращает каталог каналов по алфавиту.
func (p *Postgres) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+channelColumns+` FROM channels ORDER BY lower(coalesce(nullif(title, ''), alias))`)
	metrics.ObserveNetworkRequest("postgres", "channels_list", "channels", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var channels []domain.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// GetChannelByTGID ищет канал по идентификатору Telegram.
func (p *Postgres) GetChannelByTGID(ctx context.Context, tgChannelID int64) (domain.Channel, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	ch, err := scanChannel(p.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE tg_channel_id = $1`, tgChannelID))
	metrics.ObserveNetworkRequest("postgres", "channels_get", "channels", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Channel{}, domain.ErrNotFound
	}
	return ch, err
}

// SaveReports записывает отправленные токены одного цикла одной пачкой.
func (p *Postgres) SaveReports(ctx context.Context, cycleID string, records []domain.MergedRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, rec := range records {
		var postedAt *time.Time
		if !rec.PostedAt.IsZero() {
			t := rec.PostedAt.UTC()
			postedAt = &t
		}
		channels := rec.Channels
		if channels == nil {
			channels = []string{}
		}
		batch.Queue(`
INSERT INTO token_reports (cycle_id, address, name, symbol, market_cap, channels, link, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (cycle_id, address) DO NOTHING
`, cycleID, rec.Token.Address, rec.Token.Name, rec.Token.Symbol, rec.Token.MarketCap, channels, rec.Link, postedAt)
	}

	start := time.Now()
	err := p.pool.SendBatch(ctx, batch).Close()
	metrics.ObserveNetworkRequest("postgres", "token_reports_insert", "token_reports", start, err)
	if err != nil {
		return fmt.Errorf("save reports: %w", err)
	}
	return nil
}

// ListReports возвращает последние записи журнала. Пустой address выключает фильтр.
func (p *Postgres) ListReports(ctx context.Context, address string, limit int) ([]domain.TokenReport, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT cycle_id, address, name, symbol, market_cap, channels, link, posted_at, reported_at
FROM token_reports
WHERE $1 = '' OR address = $1
ORDER BY reported_at DESC, id DESC
LIMIT $2`, address, limit)
	metrics.ObserveNetworkRequest("postgres", "token_reports_select", "token_reports", start, err)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []domain.TokenReport
	for rows.Next() {
		var (
			r        domain.TokenReport
			postedAt *time.Time
		)
		if err := rows.Scan(&r.CycleID, &r.Address, &r.Name, &r.Symbol, &r.MarketCap, &r.Channels, &r.Link, &postedAt, &r.ReportedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if postedAt != nil {
			r.PostedAt = *postedAt
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
