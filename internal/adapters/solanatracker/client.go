// Package solanatracker запрашивает рыночные данные токенов у data.solanatracker.io.
package solanatracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/metrics"
)

const DefaultBaseURL = "https://data.solanatracker.io"

// Client выполняет пакетный запрос /price/multi.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient создаёт клиент. httpClient может быть nil.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		log:     logger,
	}
}

var _ domain.MarketDataClient = (*Client)(nil)

type priceEntry struct {
	MarketCap *float64 `json:"marketCap"`
}

// FetchMarketData возвращает капитализацию по всем адресам одним запросом.
// Ответ с кодом, отличным от 200, даёт пустой снимок без ошибки.
func (c *Client) FetchMarketData(ctx context.Context, addresses []string) (domain.MarketSnapshot, error) {
	snapshot := domain.MarketSnapshot{}
	if len(addresses) == 0 {
		return snapshot, nil
	}
	q := url.Values{}
	q.Set("tokens", strings.Join(addresses, ","))
	endpoint := c.baseURL + "/price/multi?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("solanatracker", "price_multi", "data.solanatracker.io", start, err)
	if err != nil {
		return nil, fmt.Errorf("fetch market data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn().Int("status", resp.StatusCode).Str("body", strings.TrimSpace(string(body))).Msg("solanatracker: unexpected status")
		return snapshot, nil
	}

	var payload map[string]priceEntry
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode market data: %w", err)
	}
	for addr, entry := range payload {
		snapshot[addr] = domain.MarketDatum{Address: addr, MarketCap: entry.MarketCap}
	}
	return snapshot, nil
}
