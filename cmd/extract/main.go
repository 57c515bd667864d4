package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gotd/td/session"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tg-contract-scanner/internal/adapters/mtproto"
	"tg-contract-scanner/internal/adapters/offchain"
	"tg-contract-scanner/internal/adapters/repo"
	"tg-contract-scanner/internal/adapters/solanatracker"
	"tg-contract-scanner/internal/infra/cache"
	"tg-contract-scanner/internal/infra/config"
	"tg-contract-scanner/internal/infra/db"
	applog "tg-contract-scanner/internal/infra/log"
	"tg-contract-scanner/internal/solana"
	"tg-contract-scanner/internal/usecase/enrich"
	"tg-contract-scanner/internal/usecase/extract"
)

var (
	sessionFile string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "extract",
	Short: "Ad-hoc Solana contract extraction from Telegram channels",
	Long: `Reads recent channel history over MTProto, extracts Solana mint addresses
and prints the same HTML blocks the collector would deliver.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFile, "session-file", "", "gotd session file (default: session from PG_DSN)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "write logs to stderr")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// env собирает зависимости одного запуска команды.
type env struct {
	cfg    config.AppConfig
	logger zerolog.Logger
	client mtproto.ClientConfig
	close  func()
}

func newEnv() (*env, error) {
	cfg := config.Load()
	var out io.Writer = io.Discard
	if verbose {
		out = os.Stderr
	}
	logger := zerolog.New(out).With().Timestamp().Logger()

	e := &env{cfg: cfg, logger: logger, close: func() {}}
	e.client = mtproto.ClientConfig{
		APIID:   cfg.Telegram.APIID,
		APIHash: cfg.Telegram.APIHash,
		Options: []mtproto.Option{
			mtproto.WithRPS(cfg.MTProto.GlobalRPS),
			mtproto.WithHistoryCap(cfg.MTProto.HistoryCap),
			mtproto.WithCallTimeout(cfg.MTProto.CallTimeout),
		},
	}

	switch {
	case sessionFile != "":
		e.client.Storage = &session.FileStorage{Path: sessionFile}
	case cfg.PGDSN != "":
		pool, err := db.Connect(context.Background(), cfg.DB())
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		e.close = pool.Close
		store := repo.NewPostgres(pool)
		e.client.Storage = mtproto.NewSessionDB(store, cfg.MTProto.SessionName)
		e.client.Options = append(e.client.Options, mtproto.WithCatalog(store))
	default:
		return nil, errors.New("no MTProto session: pass --session-file or set PG_DSN")
	}
	return e, nil
}

func (e *env) extractor(src *mtproto.Source) *extract.Extractor {
	return extract.New(src, solana.NewValidator(), extract.Config{
		Window:      e.cfg.Poll.LookbackWindow,
		Concurrency: e.cfg.Poll.ScanConcurrency,
	}, applog.Component(e.logger, "extract"))
}

func (e *env) enricher() *enrich.Service {
	httpClient := &http.Client{Timeout: e.cfg.Enrich.HTTPTimeout}
	rpc := solana.NewHTTPClient(e.cfg.Solana.RPCURL,
		solana.WithTimeout(e.cfg.Enrich.HTTPTimeout),
		solana.WithMaxRetries(e.cfg.Solana.RPCRetries),
	)
	return enrich.NewService(enrich.Deps{
		Market:    solanatracker.NewClient(e.cfg.SolanaTracker.BaseURL, e.cfg.SolanaTracker.APIKey, httpClient, e.logger),
		Accounts:  rpc,
		Offchain:  offchain.NewFetcher(httpClient),
		PDACache:  cache.NewMemory(),
		MetaCache: cache.NewMemory(),
		Releasers: []func(){rpc.CloseIdleConnections, httpClient.CloseIdleConnections},
	}, enrich.Config{
		MinMarketCap: e.cfg.Enrich.MinMarketCap,
		Concurrency:  e.cfg.Enrich.Concurrency,
	}, applog.Component(e.logger, "enrich"))
}

// run подключается к MTProto и выполняет fn с готовым экстрактором.
func (e *env) run(ctx context.Context, fn func(ctx context.Context, ex *extract.Extractor) error) error {
	defer e.close()
	return mtproto.Run(ctx, e.client, applog.Component(e.logger, "mtproto"), func(ctx context.Context, src *mtproto.Source) error {
		return fn(ctx, e.extractor(src))
	})
}
