package telegram

import (
	"strings"
	"testing"
)

func TestSplitTextPrefersParagraphs(t *testing.T) {
	text := strings.Repeat("a", 3000) + "\n\n" + strings.Repeat("b", 2000) + "\n" + strings.Repeat("c", 500)

	parts := SplitText(text, MessageLimit)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	for i, part := range parts {
		if n := len([]rune(part)); n > MessageLimit {
			t.Fatalf("часть %d превышает предел: %d", i, n)
		}
	}
	if parts[0] != strings.Repeat("a", 3000) {
		t.Fatalf("неожиданное содержимое первой части")
	}
	if !strings.HasPrefix(parts[1], "b") || !strings.HasSuffix(parts[1], strings.Repeat("c", 500)) {
		t.Fatalf("вторая часть должна содержать блоки b и c")
	}
}

func TestSplitTextHardCutCountsRunes(t *testing.T) {
	text := strings.Repeat("ж", 25)
	parts := SplitText(text, 10)
	if len(parts) != 3 {
		t.Fatalf("ожидали 3 части, получили %d", len(parts))
	}
	if got := len([]rune(parts[0])); got != 10 {
		t.Fatalf("первая часть должна быть 10 символов, получили %d", got)
	}
	if strings.Join(parts, "") != text {
		t.Fatalf("склейка частей не совпадает с исходным текстом")
	}
}

func TestSplitTextShortAndEmpty(t *testing.T) {
	if parts := SplitText("hello world", 0); len(parts) != 1 || parts[0] != "hello world" {
		t.Fatalf("неожиданный результат: %q", parts)
	}
	if parts := SplitText("   \n  ", 100); len(parts) != 0 {
		t.Fatalf("пустой текст не должен давать частей, получили %d", len(parts))
	}
}
