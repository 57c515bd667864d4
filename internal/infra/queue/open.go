package queue

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tg-contract-scanner/internal/domain"
)

// Backend имена поддерживаемых брокеров.
const (
	BackendRedis  = "redis"
	BackendRabbit = "rabbitmq"
)

// Options параметры выбора очереди задач.
type Options struct {
	Backend   string
	Key       string
	Redis     *redis.Client
	RabbitURL string
}

// Open создаёт очередь выбранного брокера. Возвращаемая функция освобождает соединение.
func Open(opts Options) (domain.JobQueue, func() error, error) {
	if opts.Key == "" {
		return nil, nil, errors.New("queue: empty queue key")
	}
	switch opts.Backend {
	case "", BackendRedis:
		if opts.Redis == nil {
			return nil, nil, errors.New("queue: redis backend requires REDIS_ADDR")
		}
		return NewRedisJobQueue(opts.Redis, opts.Key), func() error { return nil }, nil
	case BackendRabbit, "amqp":
		if opts.RabbitURL == "" {
			return nil, nil, errors.New("queue: rabbitmq backend requires RABBITMQ_URL")
		}
		q, err := NewRabbitJobQueue(opts.RabbitURL, opts.Key)
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	default:
		return nil, nil, fmt.Errorf("queue: unknown backend %q", opts.Backend)
	}
}
