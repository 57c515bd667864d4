package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"tg-contract-scanner/internal/adapters/mtproto"
	"tg-contract-scanner/internal/adapters/repo"
	"tg-contract-scanner/internal/infra/config"
	"tg-contract-scanner/internal/infra/db"
)

func main() {
	var (
		filePath    string
		sessionName string
	)
	flag.StringVar(&filePath, "file", "", "Path to MTProto session: gotd JSON, Telethon JSON or Telethon string session (- for stdin)")
	flag.StringVar(&sessionName, "name", "", "Session name (default: MTPROTO_SESSION_NAME)")
	flag.Parse()

	if filePath == "" {
		log.Fatal().Msg("mtproto-importer: path to session file is required (-file)")
	}
	raw, err := readSource(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("mtproto-importer: failed to read session")
	}
	sessionData, converted, err := mtproto.NormalizeSessionBytes(raw)
	if err != nil {
		log.Fatal().Err(err).Msg("mtproto-importer: unsupported MTProto session format")
	}

	cfg := config.Load()
	if sessionName == "" {
		sessionName = cfg.MTProto.SessionName
	}
	if cfg.PGDSN == "" {
		log.Fatal().Msg("mtproto-importer: PG_DSN environment variable is required")
	}

	pool, err := db.Connect(context.Background(), cfg.DB())
	if err != nil {
		log.Fatal().Err(err).Msg("mtproto-importer: failed to connect to database")
	}
	defer pool.Close()

	store := repo.NewPostgres(pool)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("mtproto-importer: failed to apply migrations")
	}
	if err := store.StoreMTProtoSession(ctx, sessionName, sessionData); err != nil {
		log.Fatal().Err(err).Msg("mtproto-importer: failed to store session in database")
	}

	if converted {
		fmt.Println("Session was converted to gotd JSON format before storing")
	}
	fmt.Printf("Stored MTProto session %q (%d bytes) in database\n", sessionName, len(sessionData))
}

func readSource(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
