package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tg-contract-scanner/internal/domain"
)

// Layered читает сначала из локального кэша, затем из общего.
// Ошибки общего уровня только логируются: кэш не должен ломать обогащение.
type Layered struct {
	local  domain.Cache
	shared domain.Cache
	log    zerolog.Logger
}

// NewLayered создаёт двухуровневый кэш. shared может быть nil.
func NewLayered(local, shared domain.Cache, logger zerolog.Logger) *Layered {
	return &Layered{local: local, shared: shared, log: logger}
}

func (l *Layered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, err := l.local.Get(ctx, key); err == nil && ok {
		return val, true, nil
	}
	if l.shared == nil {
		return nil, false, nil
	}
	val, ok, err := l.shared.Get(ctx, key)
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("cache: shared get failed")
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	_ = l.local.Set(ctx, key, val, 0)
	return val, true, nil
}

func (l *Layered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := l.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if l.shared == nil {
		return nil
	}
	if err := l.shared.Set(ctx, key, value, ttl); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("cache: shared set failed")
	}
	return nil
}
