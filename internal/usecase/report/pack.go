package report

import (
	"strings"
	"unicode/utf8"
)

const (
	// TransportLimit предел длины одного сообщения Telegram.
	TransportLimit = 4096
	// ChunkLimit оставляет запас под разметку, которую Telegram считает иначе.
	ChunkLimit = TransportLimit - 96

	blockSeparator = "\n\n"
)

// Pack жадно собирает блоки в части не длиннее limit символов.
// Блок никогда не разрезается: слишком длинный блок уходит отдельной частью.
func Pack(blocks []string, limit int) []string {
	if limit <= 0 {
		limit = ChunkLimit
	}
	sepLen := utf8.RuneCountInString(blockSeparator)
	var (
		chunks  []string
		current []string
		size    int
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, blockSeparator))
			current, size = nil, 0
		}
	}
	for _, block := range blocks {
		n := utf8.RuneCountInString(block)
		extra := n
		if len(current) > 0 {
			extra += sepLen
		}
		if size+extra > limit {
			flush()
			extra = n
		}
		current = append(current, block)
		size += extra
	}
	flush()
	return chunks
}
