package poll

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/rs/zerolog"

	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/metrics"
	"tg-contract-scanner/internal/usecase/extract"
	"tg-contract-scanner/internal/usecase/report"
)

// Worker обрабатывает задачи разового извлечения из очереди.
type Worker struct {
	queue    domain.JobQueue
	scanner  Scanner
	notifier domain.Notifier
	window   time.Duration
	log      zerolog.Logger
}

// NewWorker создаёт обработчик очереди.
func NewWorker(queue domain.JobQueue, scanner Scanner, notifier domain.Notifier, window time.Duration, logger zerolog.Logger) *Worker {
	if window <= 0 {
		window = extract.DefaultWindow
	}
	return &Worker{queue: queue, scanner: scanner, notifier: notifier, window: window, log: logger}
}

// Run читает очередь до отмены контекста.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error().Err(err).Msg("worker: queue receive failed")
			if err := sleepCtx(ctx, time.Second); err != nil {
				return err
			}
			continue
		}

		jobLog := w.log.With().Str("job_id", job.ID).Str("channel", job.Channel).Int64("chat_id", job.ChatID).Logger()
		if job.ChatID == 0 || job.Channel == "" {
			jobLog.Error().Msg("worker: malformed job, skipping")
			metrics.JobsTotal.WithLabelValues("malformed").Inc()
			if err := ack(true); err != nil {
				jobLog.Error().Err(err).Msg("worker: ack failed")
			}
			continue
		}

		err = w.Handle(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				_ = ack(false)
				return ctx.Err()
			}
			jobLog.Error().Err(err).Msg("worker: job failed")
			metrics.JobsTotal.WithLabelValues("failed").Inc()
		} else {
			metrics.JobsTotal.WithLabelValues("done").Inc()
		}
		if ackErr := ack(err == nil); ackErr != nil {
			jobLog.Error().Err(ackErr).Msg("worker: ack failed")
		}
	}
}

// Handle сканирует канал задачи и отвечает оператору. Сбой одной части
// не прерывает отправку остальных; ошибка возвращается, только если не ушла ни одна часть.
func (w *Worker) Handle(ctx context.Context, job domain.ExtractJob) error {
	chunks := w.Reply(ctx, job.Channel)
	var lastErr error
	failed := 0
	for i, text := range chunks {
		if err := w.notifier.Send(ctx, job.ChatID, text); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			lastErr = err
			w.log.Error().Err(err).Str("job_id", job.ID).Int("chunk", i).Msg("worker: reply chunk failed")
		}
	}
	if len(chunks) > 0 && failed == len(chunks) {
		return fmt.Errorf("reply: %w", lastErr)
	}
	return nil
}

// Reply формирует ответ на запрос извлечения по каналу.
func (w *Worker) Reply(ctx context.Context, channel string) []string {
	res, err := w.scanner.Scan(ctx, channel)
	ref := html.EscapeString(channel)
	switch {
	case errors.Is(err, extract.ErrChannelNotFound):
		return []string{fmt.Sprintf("❌ Không tồn tại channel_id hoặc username: <code>%s</code>", ref)}
	case err != nil:
		w.log.Warn().Err(err).Str("channel", channel).Msg("worker: scan failed")
		return []string{fmt.Sprintf("⚠️ Lấy tin nhắn từ <code>%s</code> thất bại.\nChi tiết lỗi: <code>%s</code>", ref, html.EscapeString(err.Error()))}
	}
	switch res.Outcome {
	case extract.NoMessages:
		return []string{report.NoMessagesText(w.window)}
	case extract.NoContracts:
		return []string{report.NoContractsText}
	default:
		return report.FormatMentions(res.Mentions, report.ChunkLimit)
	}
}
