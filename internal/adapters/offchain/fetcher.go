// Package offchain загружает JSON метаданных токена по URI из on-chain записи.
package offchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/metrics"
)

const (
	maxBodySize    = 1 << 20
	defaultGateway = "https://ipfs.io/ipfs/"
)

var ErrUnsupportedURI = errors.New("offchain: unsupported uri scheme")

// Fetcher выполняет GET по URI и разбирает метаданные.
type Fetcher struct {
	http        *http.Client
	ipfsGateway string
}

// NewFetcher создаёт загрузчик. httpClient может быть nil.
func NewFetcher(httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{http: httpClient, ipfsGateway: defaultGateway}
}

var _ domain.MetadataFetcher = (*Fetcher)(nil)

type document struct {
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
	Image      string `json:"image"`
	Twitter    string `json:"twitter"`
	Website    string `json:"website"`
	Discord    string `json:"discord"`
	Extensions struct {
		Twitter string `json:"twitter"`
		Website string `json:"website"`
		Discord string `json:"discord"`
	} `json:"extensions"`
}

// FetchOffchain загружает метаданные. Любая ошибка возвращается вызывающему,
// который решает, деградировать ли до пустого объекта.
func (f *Fetcher) FetchOffchain(ctx context.Context, uri string) (domain.OffchainMetadata, error) {
	target, err := f.resolve(uri)
	if err != nil {
		return domain.OffchainMetadata{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.OffchainMetadata{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.http.Do(req)
	metrics.ObserveNetworkRequest("offchain", "get_metadata", req.URL.Host, start, err)
	if err != nil {
		return domain.OffchainMetadata{}, fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.OffchainMetadata{}, fmt.Errorf("fetch metadata: status %d", resp.StatusCode)
	}

	var doc document
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&doc); err != nil {
		return domain.OffchainMetadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return domain.OffchainMetadata{
		Name:   strings.TrimSpace(doc.Name),
		Symbol: strings.TrimSpace(doc.Symbol),
		Image:  doc.Image,
		Social: domain.SocialLinks{
			Twitter: firstNonEmpty(doc.Twitter, doc.Extensions.Twitter),
			Website: firstNonEmpty(doc.Website, doc.Extensions.Website),
			Discord: firstNonEmpty(doc.Discord, doc.Extensions.Discord),
		},
	}, nil
}

func (f *Fetcher) resolve(uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	switch {
	case strings.HasPrefix(uri, "https://"), strings.HasPrefix(uri, "http://"):
		return uri, nil
	case strings.HasPrefix(uri, "ipfs://"):
		return f.ipfsGateway + strings.TrimPrefix(strings.TrimPrefix(uri, "ipfs://"), "ipfs/"), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedURI, uri)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
