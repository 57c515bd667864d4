// Package enrich дополняет адреса токенов метаданными и капитализацией.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/metrics"
	"tg-contract-scanner/internal/solana"
)

const DefaultMinMarketCap = 10_000

var errBelowFloor = errors.New("enrich: market cap below floor")

// Service хранит зависимости и общие для процесса кэши.
// PDA по mint и метаданные по URI не устаревают, поэтому живут дольше сессии.
type Service struct {
	market      domain.MarketDataClient
	accounts    domain.AccountFetcher
	offchain    domain.MetadataFetcher
	pdaCache    domain.Cache
	metaCache   domain.Cache
	cacheTTL    time.Duration
	minCap      float64
	concurrency int
	releasers   []func()
	log         zerolog.Logger
}

// Config параметры Service.
type Config struct {
	MinMarketCap float64
	Concurrency  int
	CacheTTL     time.Duration
}

// Deps внешние зависимости Service.
type Deps struct {
	Market    domain.MarketDataClient
	Accounts  domain.AccountFetcher
	Offchain  domain.MetadataFetcher
	PDACache  domain.Cache
	MetaCache domain.Cache
	// Releasers вызываются при закрытии каждой сессии, например CloseIdleConnections.
	Releasers []func()
}

// NewService создаёт сервис обогащения.
func NewService(deps Deps, cfg Config, logger zerolog.Logger) *Service {
	if cfg.MinMarketCap <= 0 {
		cfg.MinMarketCap = DefaultMinMarketCap
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Service{
		market:      deps.Market,
		accounts:    deps.Accounts,
		offchain:    deps.Offchain,
		pdaCache:    deps.PDACache,
		metaCache:   deps.MetaCache,
		cacheTTL:    cfg.CacheTTL,
		minCap:      cfg.MinMarketCap,
		concurrency: cfg.Concurrency,
		releasers:   deps.Releasers,
		log:         logger,
	}
}

// Open начинает сессию. Вызывающий обязан закрыть её.
func (s *Service) Open() *Session {
	return &Session{
		svc:    s,
		market: make(map[string]domain.MarketSnapshot),
		uris:   make(map[string]string),
	}
}

func (s *Service) aggregate(ctx context.Context, sess *Session, addresses []string) ([]domain.EnrichedToken, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	snapshot, err := sess.marketData(ctx, addresses)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Error().Err(err).Int("addresses", len(addresses)).Msg("enrich: market data unavailable")
		snapshot = domain.MarketSnapshot{}
	}

	results := make([]*domain.EnrichedToken, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, addr := range addresses {
		g.Go(func() error {
			token, ok := s.resolve(gctx, sess, addr, snapshot)
			if ok {
				results[i] = &token
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := make([]domain.EnrichedToken, 0, len(addresses))
	for _, t := range results {
		if t != nil {
			tokens = append(tokens, *t)
		}
	}
	return tokens, nil
}

// resolve никогда не возвращает ошибку: отсутствие данных и сбои сети
// одинаково исключают токен из отчёта.
func (s *Service) resolve(ctx context.Context, sess *Session, addr string, snapshot domain.MarketSnapshot) (domain.EnrichedToken, bool) {
	token, err := s.resolveToken(ctx, sess, addr, snapshot)
	switch {
	case err == nil:
		metrics.TokensResolved.WithLabelValues("enriched").Inc()
		return token, true
	case errors.Is(err, errBelowFloor):
		metrics.TokensResolved.WithLabelValues("below_floor").Inc()
	case errors.Is(err, domain.ErrNotFound):
		metrics.TokensResolved.WithLabelValues("no_metadata").Inc()
	default:
		metrics.TokensResolved.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Str("address", addr).Msg("enrich: resolve failed")
	}
	return domain.EnrichedToken{}, false
}

func (s *Service) resolveToken(ctx context.Context, sess *Session, addr string, snapshot domain.MarketSnapshot) (domain.EnrichedToken, error) {
	marketCap, ok := snapshot.MarketCap(addr)
	if !ok || marketCap < s.minCap {
		return domain.EnrichedToken{}, errBelowFloor
	}
	location, err := s.metadataLocation(ctx, addr)
	if err != nil {
		return domain.EnrichedToken{}, err
	}
	uri, err := s.metadataURI(ctx, sess, location)
	if err != nil {
		return domain.EnrichedToken{}, err
	}
	meta := s.offchainMetadata(ctx, uri)
	return domain.EnrichedToken{
		Address:        addr,
		Name:           meta.Name,
		Symbol:         meta.Symbol,
		Image:          meta.Image,
		URI:            uri,
		MarketCap:      marketCap,
		MarketCapLabel: FormatShortNumber(marketCap),
		Social:         meta.Social,
	}, nil
}

func (s *Service) metadataLocation(ctx context.Context, mint string) (string, error) {
	key := "pda:" + mint
	if s.pdaCache != nil {
		if val, ok, err := s.pdaCache.Get(ctx, key); err == nil && ok {
			metrics.ObserveCache("pda", true)
			return string(val), nil
		}
	}
	metrics.ObserveCache("pda", false)
	pda, err := solana.DeriveMetadataPDA(mint)
	if err != nil {
		return "", fmt.Errorf("derive pda: %w", err)
	}
	if s.pdaCache != nil {
		_ = s.pdaCache.Set(ctx, key, []byte(pda), 0)
	}
	return pda, nil
}

func (s *Service) metadataURI(ctx context.Context, sess *Session, location string) (string, error) {
	if uri, ok := sess.cachedURI(location); ok {
		metrics.ObserveCache("uri", true)
		return uri, nil
	}
	metrics.ObserveCache("uri", false)
	raw, err := s.accounts.GetAccountData(ctx, location)
	if err != nil {
		return "", fmt.Errorf("fetch metadata account %s: %w", location, err)
	}
	if raw == nil {
		return "", domain.ErrNotFound
	}
	uri, ok := solana.ParseMetadataURI(raw)
	if !ok {
		return "", domain.ErrNotFound
	}
	sess.storeURI(location, uri)
	return uri, nil
}

// offchainMetadata при любой ошибке возвращает пустой объект.
func (s *Service) offchainMetadata(ctx context.Context, uri string) domain.OffchainMetadata {
	key := "offchain:" + uri
	if s.metaCache != nil {
		if val, ok, err := s.metaCache.Get(ctx, key); err == nil && ok {
			var meta domain.OffchainMetadata
			if json.Unmarshal(val, &meta) == nil {
				metrics.ObserveCache("offchain", true)
				return meta
			}
		}
	}
	metrics.ObserveCache("offchain", false)
	meta, err := s.offchain.FetchOffchain(ctx, uri)
	if err != nil {
		s.log.Debug().Err(err).Str("uri", uri).Msg("enrich: offchain metadata unavailable")
		return domain.OffchainMetadata{}
	}
	if s.metaCache != nil {
		if payload, err := json.Marshal(meta); err == nil {
			_ = s.metaCache.Set(ctx, key, payload, s.cacheTTL)
		}
	}
	return meta
}
