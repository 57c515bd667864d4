package domain

import (
	"context"
	"time"
)

// ExtractJob запрос оператора на разовое извлечение контрактов из канала.
type ExtractJob struct {
	ID          string    `json:"job_id,omitempty"`
	ChatID      int64     `json:"chat_id"`
	Channel     string    `json:"channel"`
	RequestedAt time.Time `json:"requested_at"`
}

// JobQueue описывает очередь задач на извлечение.
type JobQueue interface {
	Enqueue(ctx context.Context, job ExtractJob) error
	Receive(ctx context.Context) (ExtractJob, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error
