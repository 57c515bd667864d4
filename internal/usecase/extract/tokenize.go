package extract

import (
	"strings"
	"unicode"
)

// Validator решает, является ли строка адресом токена.
type Validator interface {
	IsValid(s string) bool
}

// isSeparator считает разделителем запятую и любой пробельный символ Unicode,
// включая неразрывный пробел.
func isSeparator(r rune) bool {
	return r == ',' || unicode.IsSpace(r)
}

// Tokenize режет текст по пробельным символам и запятым.
func Tokenize(text string) []string {
	return strings.FieldsFunc(text, isSeparator)
}

// ExtractContracts возвращает уникальные адреса из текста в порядке появления.
// Текст без разделителей проверяется целиком.
func ExtractContracts(v Validator, text string) []string {
	if text == "" {
		return nil
	}
	if strings.IndexFunc(text, isSeparator) < 0 {
		if v.IsValid(text) {
			return []string{text}
		}
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	for _, word := range Tokenize(text) {
		if _, dup := seen[word]; dup {
			continue
		}
		if v.IsValid(word) {
			seen[word] = struct{}{}
			out = append(out, word)
		}
	}
	return out
}
