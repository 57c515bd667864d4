// Package extract находит адреса токенов в недавних сообщениях каналов.
package extract

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/metrics"
)

// ErrChannelNotFound возвращается, если канал не удалось найти по ссылке.
var ErrChannelNotFound = domain.ErrChannelNotFound

// ErrAllChannelsFailed возвращается ScanMany, когда не прочитан ни один канал.
var ErrAllChannelsFailed = errors.New("extract: all channels failed")

const DefaultWindow = 3 * time.Hour

// Outcome различает успешный результат и пустые исходы.
type Outcome int

const (
	Found Outcome = iota
	NoMessages
	NoContracts
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NoMessages:
		return "no_messages"
	case NoContracts:
		return "no_contracts"
	default:
		return "unknown"
	}
}

// ScanResult итог одного прохода. Ошибка чтения возвращается отдельно.
type ScanResult struct {
	Outcome        Outcome
	Mentions       []domain.ContractMention
	Messages       int
	FailedChannels []string
}

// Addresses возвращает адреса упоминаний в порядке результата.
func (r ScanResult) Addresses() []string {
	out := make([]string, 0, len(r.Mentions))
	for _, m := range r.Mentions {
		out = append(out, m.Address)
	}
	return out
}

// Extractor сканирует каналы за окно Window.
type Extractor struct {
	source      domain.MessageSource
	validator   Validator
	window      time.Duration
	concurrency int
	now         func() time.Time
	log         zerolog.Logger
}

// Config параметры Extractor.
type Config struct {
	Window      time.Duration
	Concurrency int
}

// New создаёт Extractor. Validator хранит кэш валидных адресов между проходами.
func New(source domain.MessageSource, validator Validator, cfg Config, logger zerolog.Logger) *Extractor {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Extractor{
		source:      source,
		validator:   validator,
		window:      cfg.Window,
		concurrency: cfg.Concurrency,
		now:         time.Now,
		log:         logger,
	}
}

// Window возвращает окно сканирования.
func (e *Extractor) Window() time.Duration { return e.window }

// Scan читает один канал. Для повторного адреса остаётся первое (самое свежее) упоминание.
func (e *Extractor) Scan(ctx context.Context, ref string) (ScanResult, error) {
	now := e.now()
	posts, err := e.collect(ctx, ref, now.Add(-e.window))
	if err != nil {
		return ScanResult{}, err
	}
	result := ScanResult{Messages: len(posts)}
	seen := make(map[string]struct{})
	for _, post := range posts {
		for _, addr := range ExtractContracts(e.validator, post.Text) {
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			result.Mentions = append(result.Mentions, newMention(addr, post, now))
		}
	}
	result.Outcome = outcomeOf(result)
	metrics.MentionsFound.Add(float64(len(result.Mentions)))
	return result, nil
}

// ScanMany читает каналы параллельно и объединяет упоминания одного адреса:
// каналы и ссылки накапливаются, время берётся самое раннее.
// Ошибка отдельного канала логируется и не мешает остальным.
func (e *Extractor) ScanMany(ctx context.Context, refs []string) (ScanResult, error) {
	now := e.now()
	cutoff := now.Add(-e.window)
	perChannel := make([][]domain.Post, len(refs))
	failed := make([]bool, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			posts, err := e.collect(gctx, ref, cutoff)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed[i] = true
				metrics.ChannelScanErrors.Inc()
				e.log.Error().Err(err).Str("channel", ref).Msg("extract: channel scan failed")
				return nil
			}
			perChannel[i] = posts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ScanResult{}, err
	}

	var result ScanResult
	for i, ref := range refs {
		if failed[i] {
			result.FailedChannels = append(result.FailedChannels, ref)
		}
	}
	if len(refs) > 0 && len(result.FailedChannels) == len(refs) {
		return ScanResult{}, fmt.Errorf("%w: %d channels", ErrAllChannelsFailed, len(refs))
	}

	index := make(map[string]int)
	for _, posts := range perChannel {
		result.Messages += len(posts)
		for _, post := range posts {
			for _, addr := range ExtractContracts(e.validator, post.Text) {
				pos, ok := index[addr]
				if !ok {
					index[addr] = len(result.Mentions)
					result.Mentions = append(result.Mentions, newMention(addr, post, now))
					continue
				}
				mergeMention(&result.Mentions[pos], post, now)
			}
		}
	}
	result.Outcome = outcomeOf(result)
	metrics.MentionsFound.Add(float64(len(result.Mentions)))
	return result, nil
}

func (e *Extractor) collect(ctx context.Context, ref string, cutoff time.Time) ([]domain.Post, error) {
	channel, err := e.source.ResolveChannel(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	var posts []domain.Post
	err = e.source.IterHistory(ctx, channel, 0, func(p domain.Post) bool {
		if p.PublishedAt.Before(cutoff) {
			return false
		}
		posts = append(posts, p)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	e.log.Debug().Str("channel", channel.Name()).Int("messages", len(posts)).Msg("extract: channel read")
	return posts, nil
}

func newMention(addr string, post domain.Post, now time.Time) domain.ContractMention {
	m := domain.ContractMention{
		Address:  addr,
		Channels: []string{post.Channel},
		PostedAt: post.PublishedAt,
		Age:      FormatAge(now.Sub(post.PublishedAt)),
	}
	if post.URL != "" {
		m.Links = []string{post.URL}
	}
	return m
}

func mergeMention(m *domain.ContractMention, post domain.Post, now time.Time) {
	if !slices.Contains(m.Channels, post.Channel) {
		m.Channels = append(m.Channels, post.Channel)
	}
	if post.URL != "" && !slices.Contains(m.Links, post.URL) {
		m.Links = append(m.Links, post.URL)
	}
	if post.PublishedAt.Before(m.PostedAt) {
		m.PostedAt = post.PublishedAt
		m.Age = FormatAge(now.Sub(post.PublishedAt))
	}
}

func outcomeOf(r ScanResult) Outcome {
	switch {
	case r.Messages == 0:
		return NoMessages
	case len(r.Mentions) == 0:
		return NoContracts
	default:
		return Found
	}
}
