package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/infra/metrics"
)

// RedisJobQueue реализует очередь задач на базе Redis lists.
// Неуспешные задачи откладываются в список <key>:failed.
type RedisJobQueue struct {
	client *redis.Client
	key    string
}

// NewRedisJobQueue создаёт очередь по указанному ключу.
func NewRedisJobQueue(client *redis.Client, key string) *RedisJobQueue {
	return &RedisJobQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisJobQueue) Enqueue(ctx context.Context, job domain.ExtractJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RedisJobQueue) Receive(ctx context.Context) (domain.ExtractJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ExtractJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.ExtractJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.ExtractJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.ExtractJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := res[1]
		var job domain.ExtractJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.deadLetter(raw)
			return domain.ExtractJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.deadLetter(raw)
		}
		return job, ack, nil
	}
}

func (q *RedisJobQueue) deadLetter(raw string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return q.client.LPush(ctx, q.key+":failed", raw).Err()
}
