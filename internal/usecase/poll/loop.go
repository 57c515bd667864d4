// Package poll запускает периодический цикл сканирования и разовые задачи оператора.
package poll

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/metrics"
	"tg-contract-scanner/internal/usecase/extract"
	"tg-contract-scanner/internal/usecase/report"
)

// Scanner ищет упоминания адресов в каналах.
type Scanner interface {
	Scan(ctx context.Context, ref string) (extract.ScanResult, error)
	ScanMany(ctx context.Context, refs []string) (extract.ScanResult, error)
}

// EnrichSession сессия обогащения, закрываемая в конце цикла.
type EnrichSession interface {
	Summary(ctx context.Context, addresses []string) ([]domain.EnrichedToken, error)
	Close() error
}

// Config параметры цикла.
type Config struct {
	Channels   []string
	DestChatID int64
	Interval   time.Duration
	Backoff    time.Duration
	ChunkLimit int
}

// Loop выполняет цикл: сканирование, обогащение, склейка, форматирование, доставка.
type Loop struct {
	scanner  Scanner
	open     func() EnrichSession
	notifier domain.Notifier
	reports  domain.ReportRepo
	cfg      Config
	log      zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewLoop создаёт цикл. reports может быть nil.
func NewLoop(scanner Scanner, open func() EnrichSession, notifier domain.Notifier, reports domain.ReportRepo, cfg Config, logger zerolog.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	if cfg.ChunkLimit <= 0 {
		cfg.ChunkLimit = report.ChunkLimit
	}
	return &Loop{
		scanner:  scanner,
		open:     open,
		notifier: notifier,
		reports:  reports,
		cfg:      cfg,
		log:      logger,
		sleep:    sleepCtx,
	}
}

// Run повторяет циклы до отмены контекста. Ошибка цикла не останавливает процесс:
// после неё выдерживается более короткая пауза Backoff.
func (l *Loop) Run(ctx context.Context) error {
	for {
		start := time.Now()
		err := l.safeCycle(ctx)
		metrics.ObserveCycle(start, err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := l.cfg.Interval
		if err != nil {
			wait = l.cfg.Backoff
			l.log.Error().Err(err).Dur("backoff", wait).Msg("poll: cycle failed")
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *Loop) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll: panic: %v", r)
			l.log.Error().Str("stack", string(debug.Stack())).Msg("poll: cycle panicked")
		}
	}()
	return l.RunCycle(ctx)
}

// RunCycle выполняет один полный цикл. Ошибки доставки отдельных частей
// логируются и не прерывают отправку остальных.
func (l *Loop) RunCycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	log := l.log.With().Str("cycle_id", cycleID).Logger()

	scan, err := l.scanner.ScanMany(ctx, l.cfg.Channels)
	if err != nil {
		return fmt.Errorf("scan channels: %w", err)
	}

	sess := l.open()
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn().Err(err).Msg("poll: close enrich session")
		}
	}()
	tokens, err := sess.Summary(ctx, scan.Addresses())
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}

	records := report.Merge(tokens, scan.Mentions)
	chunks := report.FormatTokens(records, l.cfg.ChunkLimit)
	failed := 0
	for i, chunk := range chunks {
		if err := l.notifier.Send(ctx, l.cfg.DestChatID, chunk); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			log.Error().Err(err).Int("chunk", i).Msg("poll: chunk delivery failed")
		}
	}

	if l.reports != nil && len(records) > 0 && failed < len(chunks) {
		if err := l.reports.SaveReports(ctx, cycleID, records); err != nil {
			log.Warn().Err(err).Msg("poll: save reports failed")
		}
	}

	log.Info().
		Int("messages", scan.Messages).
		Int("mentions", len(scan.Mentions)).
		Int("tokens", len(tokens)).
		Int("chunks", len(chunks)).
		Int("failed_chunks", failed).
		Strs("failed_channels", scan.FailedChannels).
		Msg("poll: cycle completed")
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
