package mtproto

import (
	"context"
	"errors"

	"github.com/gotd/td/session"

	"tg-contract-scanner/internal/domain"
)

// SessionDB хранит сессию gotd в репозитории под заданным именем.
type SessionDB struct {
	repo domain.SessionRepo
	name string
}

// NewSessionDB создаёт хранилище сессии.
func NewSessionDB(repo domain.SessionRepo, name string) *SessionDB {
	return &SessionDB{repo: repo, name: name}
}

var _ session.Storage = (*SessionDB)(nil)

// LoadSession загружает сессию. Отсутствие записи сообщается как session.ErrNotFound.
func (s *SessionDB) LoadSession(ctx context.Context) ([]byte, error) {
	data, err := s.repo.LoadMTProtoSession(ctx, s.name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	normalized, _, err := NormalizeSessionBytes(data)
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// StoreSession сохраняет сессию.
func (s *SessionDB) StoreSession(ctx context.Context, data []byte) error {
	return s.repo.StoreMTProtoSession(ctx, s.name, data)
}
