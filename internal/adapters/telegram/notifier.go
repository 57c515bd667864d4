// Package telegram доставляет уведомления через Bot API.
package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/metrics"
)

// Sender часть tgbotapi.BotAPI, нужная для отправки.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier отправляет HTML-сообщения не чаще одного за interval.
type Notifier struct {
	bot     Sender
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewNotifier создаёт отправителя. interval <= 0 отключает паузы.
func NewNotifier(bot Sender, interval time.Duration, logger zerolog.Logger) *Notifier {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Notifier{bot: bot, limiter: rate.NewLimiter(limit, 1), log: logger}
}

var _ domain.Notifier = (*Notifier)(nil)

// Send отправляет текст, при необходимости разбивая его на части.
func (n *Notifier) Send(ctx context.Context, chatID int64, text string) error {
	for i, part := range SplitText(text, MessageLimit) {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", "telegram", start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			n.log.Error().Err(err).Int64("chat_id", chatID).Int("part", i).Msg("telegram: send failed")
			return fmt.Errorf("send part %d: %w", i, err)
		}
		metrics.ChunksSent.Inc()
	}
	return nil
}
