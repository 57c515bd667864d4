package domain

import (
	"errors"
	"time"
)

var (
	// ErrNotFound возвращается репозиториями, когда запись отсутствует.
	ErrNotFound = errors.New("запись не найдена")
	// ErrChannelNotFound означает, что ссылка не указывает на существующий канал.
	ErrChannelNotFound = errors.New("канал не найден")
)

// Channel описывает канал-источник Telegram.
type Channel struct {
	ID          int64
	TGChannelID int64
	AccessHash  int64
	Alias       string
	Title       string
	CreatedAt   time.Time
}

// Name возвращает username канала, а для каналов без него заголовок.
func (c Channel) Name() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Title
}

// ChatID возвращает идентификатор канала в формате Bot API (-100...).
func (c Channel) ChatID() int64 {
	if c.TGChannelID == 0 {
		return 0
	}
	return -1_000_000_000_000 - c.TGChannelID
}

// Post представляет сообщение канала, прочитанное из истории.
type Post struct {
	Channel     string
	TGMsgID     int64
	PublishedAt time.Time
	URL         string
	Text        string
}

// ContractMention адрес токена, найденный в сообщениях, с указанием источника.
// PostedAt хранит абсолютное время упоминания, Age подпись для отображения.
type ContractMention struct {
	Address  string
	Channels []string
	Links    []string
	PostedAt time.Time
	Age      string
}

// Channel возвращает первый канал, в котором встретился адрес.
func (m ContractMention) Channel() string {
	if len(m.Channels) == 0 {
		return ""
	}
	return m.Channels[0]
}

// Link возвращает первую ссылку на сообщение с адресом.
func (m ContractMention) Link() string {
	if len(m.Links) == 0 {
		return ""
	}
	return m.Links[0]
}

// MarketDatum содержит рыночные данные токена. MarketCap равен nil, если сервис его не вернул.
type MarketDatum struct {
	Address   string
	MarketCap *float64
}

// MarketSnapshot результат одного пакетного запроса рыночных данных.
type MarketSnapshot map[string]MarketDatum

// MarketCap возвращает капитализацию адреса и признак её наличия.
func (s MarketSnapshot) MarketCap(address string) (float64, bool) {
	datum, ok := s[address]
	if !ok || datum.MarketCap == nil {
		return 0, false
	}
	return *datum.MarketCap, true
}

// SocialLinks ссылки проекта из off-chain метаданных.
type SocialLinks struct {
	Twitter string `json:"twitter,omitempty"`
	Website string `json:"website,omitempty"`
	Discord string `json:"discord,omitempty"`
}

// OffchainMetadata JSON метаданных токена, на который указывает on-chain URI.
type OffchainMetadata struct {
	Name   string      `json:"name,omitempty"`
	Symbol string      `json:"symbol,omitempty"`
	Image  string      `json:"image,omitempty"`
	Social SocialLinks `json:"social_links"`
}

// EnrichedToken токен, прошедший фильтр по капитализации.
type EnrichedToken struct {
	Address        string
	Name           string
	Symbol         string
	Image          string
	URI            string
	MarketCap      float64
	MarketCapLabel string
	Social         SocialLinks
}

// MergedRecord объединяет токен и сведения об упоминании.
// Для токена без упоминания Channel, Age и Link пустые.
type MergedRecord struct {
	Token    EnrichedToken
	Channel  string
	Channels []string
	Age      string
	Link     string
	PostedAt time.Time
}

// TokenReport запись журнала отправленных токенов.
type TokenReport struct {
	CycleID    string    `json:"cycle_id"`
	Address    string    `json:"address"`
	Name       string    `json:"name"`
	Symbol     string    `json:"symbol"`
	MarketCap  float64   `json:"market_cap"`
	Channels   []string  `json:"channels"`
	Link       string    `json:"link,omitempty"`
	PostedAt   time.Time `json:"posted_at,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}
