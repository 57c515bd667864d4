package report

import (
	"fmt"
	"html"
	"strings"
	"time"

	"tg-contract-scanner/internal/domain"
)

const (
	NoTokensText      = "Không có token nào để hiển thị."
	NoContractsText   = "❌ Không tìm thấy contract hợp lệ trong tin nhắn gần nhất."
	LinkUnavailable   = "Link không khả dụng"
	tokenRule         = "--------------------------"
	mentionRule       = "───────────────"
	mevxURL           = "https://mevx.io/solana/"
	z99URL            = "https://t.me/z99bot?start="
	unknownTokenName  = "Unknown"
	unknownTokenLabel = "-"
)

// NoMessagesText сообщает, что в окне нет сообщений.
func NoMessagesText(window time.Duration) string {
	return fmt.Sprintf("❌ Không tìm thấy tin nhắn trong %s gần nhất.", windowLabel(window))
}

func windowLabel(window time.Duration) string {
	if window >= time.Hour && window%time.Hour == 0 {
		return fmt.Sprintf("%d giờ", int(window/time.Hour))
	}
	return fmt.Sprintf("%d phút", int(window/time.Minute))
}

// FormatTokens рендерит записи в HTML-блоки и упаковывает их в части.
// Пустой список даёт одну часть с текстом NoTokensText.
func FormatTokens(records []domain.MergedRecord, limit int) []string {
	if len(records) == 0 {
		return []string{NoTokensText}
	}
	blocks := make([]string, 0, len(records))
	for _, rec := range records {
		blocks = append(blocks, TokenBlock(rec))
	}
	return Pack(blocks, limit)
}

// TokenBlock рендерит один токен.
func TokenBlock(rec domain.MergedRecord) string {
	t := rec.Token
	name := orDefault(t.Name, unknownTokenName)
	symbol := orDefault(t.Symbol, unknownTokenLabel)
	addr := escapeHTML(t.Address)

	var b strings.Builder
	fmt.Fprintf(&b, "🚀 <b>%s</b> - %s\n", escapeHTML(name), escapeHTML(symbol))
	fmt.Fprintf(&b, "🧬 Mint: <code>%s</code>\n", addr)
	fmt.Fprintf(&b, "💰 Market Cap: %s\n", escapeHTML(orDefault(t.MarketCapLabel, "N/A")))
	fmt.Fprintf(&b, "📅 Time: %s\n", escapeHTML(rec.Age))
	if len(rec.Channels) > 0 {
		fmt.Fprintf(&b, "📣 Channel: %s\n", escapeHTML(strings.Join(rec.Channels, ", ")))
	}
	fmt.Fprintf(&b, "📊 <a href=\"%s%s\">MevX</a> 🤖 <a href=\"%s%s\">Z99Scans</a>\n", mevxURL, addr, z99URL, addr)
	b.WriteString(tokenRule)
	return b.String()
}

// FormatMentions рендерит результат разового извлечения: подряд идущие
// адреса из одного сообщения собираются в один блок.
func FormatMentions(mentions []domain.ContractMention, limit int) []string {
	if len(mentions) == 0 {
		return []string{NoContractsText}
	}
	var blocks []string
	for i := 0; i < len(mentions); {
		j := i + 1
		for j < len(mentions) && mentions[j].Link() == mentions[i].Link() && mentions[i].Link() != "" {
			j++
		}
		blocks = append(blocks, mentionBlock(mentions[i:j]))
		i = j
	}
	return Pack(blocks, limit)
}

func mentionBlock(group []domain.ContractMention) string {
	first := group[0]
	var b strings.Builder
	fmt.Fprintf(&b, "🕒 <b>%s</b>\n", escapeHTML(first.Age))
	if link := first.Link(); link != "" {
		fmt.Fprintf(&b, "🔗 <a href=\"%s\">Xem tin nhắn</a>\n", escapeHTML(link))
	} else {
		fmt.Fprintf(&b, "🔗 %s\n", LinkUnavailable)
	}
	for _, m := range group {
		fmt.Fprintf(&b, "🔹 <code>%s</code>\n", escapeHTML(m.Address))
	}
	b.WriteString(mentionRule)
	return b.String()
}

// FormatChannels рендерит каталог каналов для /listchannels.
func FormatChannels(channels []domain.Channel) string {
	if len(channels) == 0 {
		return "📡 Danh sách channel trống."
	}
	var b strings.Builder
	b.WriteString("📡 <b>Danh sách các channel:</b>\n\n")
	for i, ch := range channels {
		fmt.Fprintf(&b, "<b>%d. %s</b>\n", i+1, escapeHTML(orDefault(ch.Title, ch.Alias)))
		fmt.Fprintf(&b, "├ Channel ID: <code>%d</code>\n", ch.TGChannelID)
		fmt.Fprintf(&b, "├ Username: <code>%s</code>\n", escapeHTML(orDefault(ch.Alias, "-")))
		fmt.Fprintf(&b, "├ Chat ID: <code>%d</code>\n", ch.ChatID())
		fmt.Fprintf(&b, "└ Access Hash: <code>%d</code>\n\n", ch.AccessHash)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func escapeHTML(s string) string {
	return html.EscapeString(s)
}
