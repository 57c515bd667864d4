package enrich

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/cache"
	"tg-contract-scanner/internal/solana"
)

const (
	addr1 = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	addr2 = "So11111111111111111111111111111111111111112"
	addr3 = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func metadataAccount(uri string) []byte {
	raw := make([]byte, 1+32+32+4+32+4+10+4+200)
	binary.LittleEndian.PutUint32(raw[115:], 200)
	copy(raw[119:], uri)
	return raw
}

type stubMarket struct {
	caps  map[string]float64
	calls atomic.Int32
	err   error
}

func (m *stubMarket) FetchMarketData(_ context.Context, addresses []string) (domain.MarketSnapshot, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	snap := domain.MarketSnapshot{}
	for _, a := range addresses {
		if v, ok := m.caps[a]; ok {
			snap[a] = domain.MarketDatum{Address: a, MarketCap: &v}
		}
	}
	return snap, nil
}

// stubAccounts отдаёт аккаунт метаданных для mint из uris.
type stubAccounts struct {
	byPDA map[string][]byte
	calls atomic.Int32
}

func newStubAccounts(t *testing.T, uris map[string]string) *stubAccounts {
	t.Helper()
	a := &stubAccounts{byPDA: map[string][]byte{}}
	for mint, uri := range uris {
		pda, err := solana.DeriveMetadataPDA(mint)
		if err != nil {
			t.Fatalf("не удалось вычислить PDA: %v", err)
		}
		a.byPDA[pda] = metadataAccount(uri)
	}
	return a
}

func (a *stubAccounts) GetAccountData(_ context.Context, address string) ([]byte, error) {
	a.calls.Add(1)
	return a.byPDA[address], nil
}

type stubOffchain struct {
	mu    sync.Mutex
	docs  map[string]domain.OffchainMetadata
	calls int
}

func (o *stubOffchain) FetchOffchain(_ context.Context, uri string) (domain.OffchainMetadata, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	meta, ok := o.docs[uri]
	if !ok {
		return domain.OffchainMetadata{}, errors.New("timeout")
	}
	return meta, nil
}

func newTestService(t *testing.T, caps map[string]float64, uris map[string]string, docs map[string]domain.OffchainMetadata) (*Service, *stubMarket, *stubAccounts, *stubOffchain) {
	market := &stubMarket{caps: caps}
	accounts := newStubAccounts(t, uris)
	offchain := &stubOffchain{docs: docs}
	svc := NewService(Deps{
		Market:    market,
		Accounts:  accounts,
		Offchain:  offchain,
		PDACache:  cache.NewMemory(),
		MetaCache: cache.NewMemory(),
	}, Config{MinMarketCap: 10_000, Concurrency: 2}, zerolog.Nop())
	return svc, market, accounts, offchain
}

func TestSummaryFiltersBelowFloor(t *testing.T) {
	svc, _, _, _ := newTestService(t,
		map[string]float64{addr1: 50_000, addr2: 5_000},
		map[string]string{addr1: "https://meta/1.json", addr2: "https://meta/2.json"},
		map[string]domain.OffchainMetadata{"https://meta/1.json": {Name: "One", Symbol: "ONE"}},
	)
	sess := svc.Open()
	defer sess.Close()

	tokens, err := sess.Summary(context.Background(), []string{addr1, addr2})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Address != addr1 {
		t.Fatalf("ожидали только первый адрес, получили %+v", tokens)
	}
	if tokens[0].Name != "One" || tokens[0].MarketCapLabel != "50K" || tokens[0].URI != "https://meta/1.json" {
		t.Fatalf("неверные поля токена: %+v", tokens[0])
	}
}

func TestSummaryFloorIsInclusive(t *testing.T) {
	svc, _, _, _ := newTestService(t,
		map[string]float64{addr1: 10_000, addr2: 9_999},
		map[string]string{addr1: "https://meta/1.json", addr2: "https://meta/2.json"},
		nil,
	)
	sess := svc.Open()
	defer sess.Close()

	tokens, _ := sess.Summary(context.Background(), []string{addr1, addr2})
	if len(tokens) != 1 || tokens[0].Address != addr1 || tokens[0].MarketCapLabel != "10K" {
		t.Fatalf("10 000 должно проходить фильтр, 9 999 нет: %+v", tokens)
	}
}

func TestSummaryIsolatesOffchainFailure(t *testing.T) {
	svc, _, _, _ := newTestService(t,
		map[string]float64{addr1: 20_000, addr2: 30_000, addr3: 40_000},
		map[string]string{addr1: "https://meta/1.json", addr2: "https://meta/broken.json", addr3: "https://meta/3.json"},
		map[string]domain.OffchainMetadata{
			"https://meta/1.json": {Name: "One"},
			"https://meta/3.json": {Name: "Three"},
		},
	)
	sess := svc.Open()
	defer sess.Close()

	tokens, err := sess.Summary(context.Background(), []string{addr1, addr2, addr3})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("ожидали 3 токена, получили %d", len(tokens))
	}
	if tokens[0].Name != "One" || tokens[1].Name != "" || tokens[2].Name != "Three" {
		t.Fatalf("порядок или метаданные нарушены: %+v", tokens)
	}
}

func TestSummaryDropsMissingAccount(t *testing.T) {
	svc, _, _, _ := newTestService(t,
		map[string]float64{addr1: 20_000, addr2: 20_000},
		map[string]string{addr1: "https://meta/1.json"},
		nil,
	)
	sess := svc.Open()
	defer sess.Close()

	tokens, _ := sess.Summary(context.Background(), []string{addr1, addr2})
	if len(tokens) != 1 || tokens[0].Address != addr1 {
		t.Fatalf("токен без метаданных должен отбрасываться: %+v", tokens)
	}
}

func TestSummaryMarketFailureYieldsNothing(t *testing.T) {
	svc, market, _, _ := newTestService(t, nil, map[string]string{addr1: "https://meta/1.json"}, nil)
	market.err = errors.New("502")
	sess := svc.Open()
	defer sess.Close()

	tokens, err := sess.Summary(context.Background(), []string{addr1})
	if err != nil || len(tokens) != 0 {
		t.Fatalf("сбой рыночных данных не должен быть ошибкой: %v / %+v", err, tokens)
	}
}

func TestCacheScopes(t *testing.T) {
	svc, market, accounts, offchain := newTestService(t,
		map[string]float64{addr1: 20_000},
		map[string]string{addr1: "https://meta/1.json"},
		map[string]domain.OffchainMetadata{"https://meta/1.json": {Name: "One"}},
	)
	ctx := context.Background()

	first := svc.Open()
	_, _ = first.Summary(ctx, []string{addr1})
	_, _ = first.Summary(ctx, []string{addr1})
	_ = first.Close()
	if market.calls.Load() != 1 || accounts.calls.Load() != 1 {
		t.Fatalf("внутри сессии данные должны браться из кэша: market=%d accounts=%d", market.calls.Load(), accounts.calls.Load())
	}

	second := svc.Open()
	defer second.Close()
	_, _ = second.Summary(ctx, []string{addr1})
	if market.calls.Load() != 2 || accounts.calls.Load() != 2 {
		t.Fatalf("новая сессия должна заново запрашивать рынок и URI")
	}
	if offchain.calls != 1 {
		t.Fatalf("метаданные по URI кэшируются на процесс, вызовов: %d", offchain.calls)
	}
}

func TestSessionCloseReleasesOnce(t *testing.T) {
	released := 0
	svc := NewService(Deps{Releasers: []func(){func() { released++ }}}, Config{}, zerolog.Nop())
	sess := svc.Open()
	_ = sess.Close()
	_ = sess.Close()
	if released != 1 {
		t.Fatalf("ожидали одно освобождение ресурсов, получили %d", released)
	}
}

func TestFormatShortNumber(t *testing.T) {
	cases := map[float64]string{
		999:       "999",
		12.5:      "12.5",
		1500:      "1.5K",
		10_000:    "10K",
		1_000_000: "1M",
		2_300_000: "2.3M",
		45_678:    "45.7K",
		1_250_000: "1.2M",
		2_250:     "2.2K",
		2_350:     "2.4K",
		999_950:   "1M",
		999_940:   "999.9K",
	}
	for in, want := range cases {
		if got := FormatShortNumber(in); got != want {
			t.Fatalf("FormatShortNumber(%v) = %q, ожидали %q", in, got, want)
		}
	}
}
