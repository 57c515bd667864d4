package mtproto

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/metrics"
)

// ErrChannelNotFound возвращается, когда ссылка не указывает на известный канал.
var ErrChannelNotFound = domain.ErrChannelNotFound

const (
	pageSize       = 100
	chatIDOffset   = 1_000_000_000_000
	defaultHistory = 2000
	defaultTimeout = 30 * time.Second
)

var aliasRe = regexp.MustCompile(`(?i)^(?:@|https?://t\.me/|t\.me/)?([a-z0-9_]{4,32})/?$`)

// historyAPI подмножество tg.Client, которое нужно источнику.
type historyAPI interface {
	ContactsResolveUsername(ctx context.Context, request *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	MessagesGetHistory(ctx context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
}

// Source читает историю каналов через MTProto.
type Source struct {
	api        historyAPI
	catalog    domain.ChannelRepo
	limiter    *rate.Limiter
	historyCap int
	timeout    time.Duration
	log        zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option настраивает Source.
type Option func(*Source)

// WithCatalog подключает каталог каналов: найденные каналы сохраняются в нём,
// а числовые идентификаторы ищутся по нему.
func WithCatalog(repo domain.ChannelRepo) Option {
	return func(s *Source) { s.catalog = repo }
}

// WithRPS ограничивает частоту запросов к MTProto.
func WithRPS(rps int) Option {
	return func(s *Source) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

// WithHistoryCap задаёт предел сообщений для чтения без явного лимита.
func WithHistoryCap(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.historyCap = n
		}
	}
}

// WithCallTimeout ограничивает длительность одного RPC-вызова.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSource создаёт источник поверх API клиента gotd.
func NewSource(api historyAPI, logger zerolog.Logger, opts ...Option) *Source {
	s := &Source{
		api:        api,
		limiter:    rate.NewLimiter(rate.Limit(20), 20),
		historyCap: defaultHistory,
		timeout:    defaultTimeout,
		log:        logger,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.MessageSource = (*Source)(nil)

// ParseRef разбирает ссылку на канал: алиас, t.me-ссылку или числовой chat id.
// Возвращает нормализованный алиас либо идентификатор канала Telegram.
func ParseRef(ref string) (alias string, tgID int64, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", 0, ErrChannelNotFound
	}
	if id, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		if id < 0 {
			id = -id
			if id > chatIDOffset {
				id -= chatIDOffset
			}
		}
		if id == 0 {
			return "", 0, ErrChannelNotFound
		}
		return "", id, nil
	}
	m := aliasRe.FindStringSubmatch(ref)
	if len(m) != 2 {
		return "", 0, fmt.Errorf("%w: %q", ErrChannelNotFound, ref)
	}
	return strings.ToLower(m[1]), 0, nil
}

// ResolveChannel находит канал по алиасу или числовому идентификатору.
func (s *Source) ResolveChannel(ctx context.Context, ref string) (domain.Channel, error) {
	alias, tgID, err := ParseRef(ref)
	if err != nil {
		return domain.Channel{}, err
	}
	if tgID != 0 {
		if s.catalog == nil {
			return domain.Channel{}, fmt.Errorf("%w: %d", ErrChannelNotFound, tgID)
		}
		ch, err := s.catalog.GetChannelByTGID(ctx, tgID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Channel{}, fmt.Errorf("%w: %d", ErrChannelNotFound, tgID)
		}
		return ch, err
	}

	if err := s.wait(ctx); err != nil {
		return domain.Channel{}, err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	start := time.Now()
	resolved, err := s.api.ContactsResolveUsername(callCtx, &tg.ContactsResolveUsernameRequest{Username: alias})
	cancel()
	metrics.ObserveNetworkRequest("mtproto", "resolve_username", "telegram", start, err)
	if err != nil {
		if tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID") {
			return domain.Channel{}, fmt.Errorf("%w: %s", ErrChannelNotFound, alias)
		}
		return domain.Channel{}, fmt.Errorf("resolve %s: %w", alias, err)
	}
	for _, chat := range resolved.Chats {
		c, ok := chat.(*tg.Channel)
		if !ok {
			continue
		}
		ch := domain.Channel{TGChannelID: c.ID, AccessHash: c.AccessHash, Alias: strings.ToLower(c.Username), Title: c.Title}
		if ch.Alias == "" {
			ch.Alias = alias
		}
		s.remember(ctx, ch)
		return ch, nil
	}
	return domain.Channel{}, fmt.Errorf("%w: %s", ErrChannelNotFound, alias)
}

func (s *Source) remember(ctx context.Context, ch domain.Channel) {
	if s.catalog == nil {
		return
	}
	if _, err := s.catalog.UpsertChannel(ctx, ch); err != nil {
		s.log.Warn().Err(err).Str("channel", ch.Name()).Msg("mtproto: catalog upsert failed")
	}
}

// IterHistory перебирает сообщения от новых к старым страницами по pageSize.
func (s *Source) IterHistory(ctx context.Context, channel domain.Channel, limit int, yield func(domain.Post) bool) error {
	if limit <= 0 {
		limit = s.historyCap
	}
	peer := &tg.InputPeerChannel{ChannelID: channel.TGChannelID, AccessHash: channel.AccessHash}
	offsetID := 0
	seen := 0
	for seen < limit {
		want := min(pageSize, limit-seen)
		messages, err := s.page(ctx, peer, offsetID, want)
		if err != nil {
			return fmt.Errorf("history %s: %w", channel.Name(), err)
		}
		if len(messages) == 0 {
			return nil
		}
		for _, raw := range messages {
			seen++
			msg, ok := raw.(*tg.Message)
			if ok {
				if !yield(toPost(channel, msg)) {
					return nil
				}
			}
			offsetID = raw.GetID()
		}
		if len(messages) < want {
			return nil
		}
	}
	return nil
}

func (s *Source) page(ctx context.Context, peer tg.InputPeerClass, offsetID, limit int) ([]tg.MessageClass, error) {
	retried := false
	for {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		start := time.Now()
		res, err := s.api.MessagesGetHistory(callCtx, &tg.MessagesGetHistoryRequest{Peer: peer, OffsetID: offsetID, Limit: limit})
		cancel()
		metrics.ObserveNetworkRequest("mtproto", "get_history", "telegram", start, err)
		if err == nil {
			return historyMessages(res), nil
		}
		if d, ok := tgerr.AsFloodWait(err); ok && !retried {
			retried = true
			s.log.Warn().Dur("wait", d).Msg("mtproto: flood wait")
			if err := s.sleep(ctx, d); err != nil {
				return nil, err
			}
			continue
		}
		return nil, err
	}
}

func (s *Source) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func historyMessages(res tg.MessagesMessagesClass) []tg.MessageClass {
	switch v := res.(type) {
	case *tg.MessagesMessages:
		return v.Messages
	case *tg.MessagesMessagesSlice:
		return v.Messages
	case *tg.MessagesChannelMessages:
		return v.Messages
	default:
		return nil
	}
}

func toPost(channel domain.Channel, msg *tg.Message) domain.Post {
	post := domain.Post{
		Channel:     channel.Name(),
		TGMsgID:     int64(msg.ID),
		PublishedAt: time.Unix(int64(msg.Date), 0).UTC(),
		Text:        msg.Message,
	}
	if channel.Alias != "" {
		post.URL = fmt.Sprintf("https://t.me/%s/%d", channel.Alias, msg.ID)
	}
	return post
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
