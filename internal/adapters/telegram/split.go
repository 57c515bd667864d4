package telegram

import "strings"

// MessageLimit предел длины сообщения Bot API в символах.
const MessageLimit = 4096

// SplitText режет текст на части не длиннее limit символов.
// Предпочитает границу абзаца, затем перевод строки, и только потом режет по символам.
func SplitText(text string, limit int) []string {
	if limit <= 0 {
		limit = MessageLimit
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	runes := []rune(trimmed)
	var parts []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			parts = appendPart(parts, runes)
			break
		}
		cut := lastBreak(runes[:limit+1])
		parts = appendPart(parts, runes[:cut])
		runes = trimLeftNewlines(runes[cut:])
	}
	return parts
}

// lastBreak ищет позицию разреза в окне, включая символ сразу за пределом.
func lastBreak(window []rune) int {
	limit := len(window) - 1
	for i := limit; i > 1; i-- {
		if window[i] == '\n' && window[i-1] == '\n' {
			return i - 1
		}
	}
	for i := limit; i > 0; i-- {
		if window[i] == '\n' {
			return i
		}
	}
	return limit
}

func appendPart(parts []string, runes []rune) []string {
	if chunk := strings.Trim(string(runes), "\n"); chunk != "" {
		parts = append(parts, chunk)
	}
	return parts
}

func trimLeftNewlines(runes []rune) []rune {
	for len(runes) > 0 && runes[0] == '\n' {
		runes = runes[1:]
	}
	return runes
}
