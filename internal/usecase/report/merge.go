// Package report склеивает токены с упоминаниями и готовит текст уведомлений.
package report

import "tg-contract-scanner/internal/domain"

// Merge выполняет левое соединение токенов с упоминаниями по адресу.
// Токен без упоминания получает пустые канал, время и ссылку.
func Merge(tokens []domain.EnrichedToken, mentions []domain.ContractMention) []domain.MergedRecord {
	byAddress := make(map[string]domain.ContractMention, len(mentions))
	for _, m := range mentions {
		if _, ok := byAddress[m.Address]; !ok {
			byAddress[m.Address] = m
		}
	}
	records := make([]domain.MergedRecord, 0, len(tokens))
	for _, token := range tokens {
		rec := domain.MergedRecord{Token: token}
		if m, ok := byAddress[token.Address]; ok {
			rec.Channel = m.Channel()
			rec.Channels = m.Channels
			rec.Age = m.Age
			rec.Link = m.Link()
			rec.PostedAt = m.PostedAt
		}
		records = append(records, rec)
	}
	return records
}
