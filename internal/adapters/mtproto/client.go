package mtproto

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/rs/zerolog"
)

// ErrNotAuthorized возвращается, если сохранённая сессия не авторизована.
var ErrNotAuthorized = errors.New("mtproto: session is not authorized, import it with mtproto-session-importer")

// ClientConfig описывает подключение к MTProto.
type ClientConfig struct {
	APIID   int
	APIHash string
	Storage session.Storage
	Options []Option
}

// Run подключается к Telegram, проверяет авторизацию и вызывает fn с готовым источником.
// Соединение живёт, пока выполняется fn.
func Run(ctx context.Context, cfg ClientConfig, logger zerolog.Logger, fn func(ctx context.Context, src *Source) error) error {
	if cfg.APIID == 0 || cfg.APIHash == "" {
		return errors.New("mtproto: api id and hash are required")
	}
	client := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: cfg.Storage,
		NoUpdates:      true,
	})
	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			return ErrNotAuthorized
		}
		logger.Info().Msg("mtproto: connected")
		return fn(ctx, NewSource(client.API(), logger, cfg.Options...))
	})
}
