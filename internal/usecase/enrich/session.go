package enrich

import (
	"context"
	"slices"
	"strings"
	"sync"

	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/metrics"
)

// Session живёт один цикл обогащения. Рыночные данные и URI по адресу метаданных
// кэшируются только внутри сессии, так как капитализация быстро устаревает.
type Session struct {
	svc *Service

	mu     sync.Mutex
	market map[string]domain.MarketSnapshot
	uris   map[string]string
	closed bool
}

// Summary обогащает адреса и возвращает токены, прошедшие фильтр,
// в порядке входного списка.
func (s *Session) Summary(ctx context.Context, addresses []string) ([]domain.EnrichedToken, error) {
	return s.svc.aggregate(ctx, s, addresses)
}

// Close освобождает пулы соединений. Повторный вызов ничего не делает.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.market = nil
	s.uris = nil
	for _, release := range s.svc.releasers {
		release()
	}
	return nil
}

func marketKey(addresses []string) string {
	sorted := slices.Clone(addresses)
	slices.Sort(sorted)
	return "market_cap_" + strings.Join(sorted, "_")
}

func (s *Session) marketData(ctx context.Context, addresses []string) (domain.MarketSnapshot, error) {
	key := marketKey(addresses)
	s.mu.Lock()
	cached, ok := s.market[key]
	s.mu.Unlock()
	metrics.ObserveCache("market", ok)
	if ok {
		return cached, nil
	}
	snapshot, err := s.svc.market.FetchMarketData(ctx, addresses)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.market != nil {
		s.market[key] = snapshot
	}
	s.mu.Unlock()
	return snapshot, nil
}

func (s *Session) cachedURI(location string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uri, ok := s.uris[location]
	return uri, ok
}

func (s *Session) storeURI(location, uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uris != nil {
		s.uris[location] = uri
	}
}
