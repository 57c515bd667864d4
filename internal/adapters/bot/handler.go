package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-contract-scanner/internal/adapters/mtproto"
	"tg-contract-scanner/internal/adapters/telegram"
	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/metrics"
	"tg-contract-scanner/internal/usecase/report"
)

// ErrMissingArgument возвращается, если команде не передан канал.
var ErrMissingArgument = errors.New("bot: missing channel argument")

const (
	missingChannelHint = "⚠️ Bạn cần cung cấp channel_id hoặc username sau lệnh /getcontracts.\nVí dụ: <code>/getcontracts SolanaVolumeGroup</code>"

	callbackListChannels = "list_channels"
	callbackHelp         = "help"
)

// API часть tgbotapi.BotAPI, нужная обработчику.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler обслуживает команды оператора.
type Handler struct {
	bot      API
	log      zerolog.Logger
	jobs     domain.JobQueue
	channels domain.ChannelRepo
	now      func() time.Time
}

// NewHandler создаёт обработчик. channels может быть nil, тогда /listchannels недоступна.
func NewHandler(bot API, log zerolog.Logger, jobs domain.JobQueue, channels domain.ChannelRepo) *Handler {
	return &Handler{bot: bot, log: log, jobs: jobs, channels: channels, now: time.Now}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

// ParseCommand отделяет команду от аргументов и убирает суффикс @bot.
func ParseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, args, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	cmd, args := ParseCommand(msg.Text)
	chatID := msg.Chat.ID
	switch cmd {
	case "/start":
		h.reply(chatID, h.startMessage(msg.From), mainKeyboard())
	case "/help":
		h.reply(chatID, helpMessage(), nil)
	case "/getcontracts":
		h.handleGetContracts(ctx, chatID, args)
	case "/listchannels":
		h.handleListChannels(ctx, chatID)
	case "":
		return
	default:
		h.reply(chatID, "Lệnh không xác định. Dùng /help để xem danh sách lệnh.", nil)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		h.log.Warn().Err(err).Msg("bot: answer callback failed")
	}
	if cb.Message == nil {
		return
	}
	switch cb.Data {
	case callbackListChannels:
		h.handleListChannels(ctx, cb.Message.Chat.ID)
	case callbackHelp:
		h.reply(cb.Message.Chat.ID, helpMessage(), nil)
	}
}

// NewExtractJob проверяет аргумент и собирает задачу извлечения.
func NewExtractJob(chatID int64, args string, now time.Time) (domain.ExtractJob, error) {
	ref := strings.TrimSpace(args)
	if ref == "" {
		return domain.ExtractJob{}, ErrMissingArgument
	}
	if _, _, err := mtproto.ParseRef(ref); err != nil {
		return domain.ExtractJob{}, err
	}
	return domain.ExtractJob{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		Channel:     ref,
		RequestedAt: now.UTC(),
	}, nil
}

func (h *Handler) handleGetContracts(ctx context.Context, chatID int64, args string) {
	job, err := NewExtractJob(chatID, args, h.now())
	switch {
	case errors.Is(err, ErrMissingArgument):
		h.reply(chatID, missingChannelHint, nil)
		return
	case err != nil:
		h.reply(chatID, fmt.Sprintf("❌ Không tồn tại channel_id hoặc username: <code>%s</code>", html.EscapeString(args)), nil)
		return
	}

	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.log.Error().Err(err).Str("channel", job.Channel).Msg("bot: enqueue extract job failed")
		h.reply(chatID, "⚠️ Không thể xếp hàng yêu cầu, vui lòng thử lại sau.", nil)
		return
	}
	metrics.JobsTotal.WithLabelValues("queued").Inc()
	h.log.Info().Str("job_id", job.ID).Str("channel", job.Channel).Int64("chat_id", chatID).Msg("bot: extract job queued")
	h.reply(chatID, fmt.Sprintf("⏳ Đang quét <code>%s</code>, kết quả sẽ được gửi sớm.", html.EscapeString(job.Channel)), nil)
}

func (h *Handler) handleListChannels(ctx context.Context, chatID int64) {
	if h.channels == nil {
		h.reply(chatID, report.FormatChannels(nil), nil)
		return
	}
	list, err := h.channels.ListChannels(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: list channels failed")
		h.reply(chatID, "⚠️ Không thể tải danh sách channel, vui lòng thử lại sau.", nil)
		return
	}
	h.reply(chatID, report.FormatChannels(list), nil)
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	for i, part := range telegram.SplitText(text, telegram.MessageLimit) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Int64("chat_id", chatID).Msg("bot: send failed")
			return
		}
	}
}

func mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📡 Danh sách channel", callbackListChannels),
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ Trợ giúp", callbackHelp),
		),
	)
	return &buttons
}

func (h *Handler) startMessage(from *tgbotapi.User) string {
	name := "bạn"
	if from != nil && from.FirstName != "" {
		name = html.EscapeString(from.FirstName)
	}
	return fmt.Sprintf("👋 Xin chào %s!\n\nBot quét các channel Telegram, tìm contract Solana và gửi thông tin token.\nGửi /help để xem danh sách lệnh.", name)
}

func helpMessage() string {
	lines := []string{
		"📖 <b>Danh sách lệnh:</b>",
		"",
		"• /getcontracts &lt;channel&gt; - tìm contract trong tin nhắn gần đây của channel.",
		"  Ví dụ: <code>/getcontracts SolanaVolumeGroup</code> hoặc <code>/getcontracts -1002279143316</code>",
		"• /listchannels - danh sách channel đã biết.",
		"• /help - hiển thị trợ giúp.",
	}
	return strings.Join(lines, "\n")
}
