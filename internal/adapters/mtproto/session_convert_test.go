package mtproto

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNormalizeSessionBytesKeepsGotdJSON(t *testing.T) {
	raw := []byte(` {"Version":1,"Data":{"DC":2}} `)
	out, converted, err := NormalizeSessionBytes(raw)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if converted {
		t.Fatalf("сессия gotd не должна конвертироваться")
	}
	if string(out) != strings.TrimSpace(string(raw)) {
		t.Fatalf("содержимое изменилось: %s", out)
	}
}

func TestNormalizeSessionBytesConvertsTelethonRows(t *testing.T) {
	key := strings.Repeat("ab", 256)
	raw := []byte(`[{"dc_id":2,"server_address":"149.154.167.50","port":443,"auth_key":"` + key + `"}]`)
	out, converted, err := NormalizeSessionBytes(raw)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !converted {
		t.Fatalf("ожидали конвертацию")
	}
	var decoded struct {
		Version int
		Data    struct {
			DC   int
			Addr string
		}
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("не удалось разобрать результат: %v", err)
	}
	if decoded.Version != 1 || decoded.Data.DC != 2 || decoded.Data.Addr != "149.154.167.50:443" {
		t.Fatalf("неверные данные сессии: %+v", decoded)
	}
}

func TestNormalizeSessionBytesRejectsGarbage(t *testing.T) {
	if _, _, err := NormalizeSessionBytes([]byte("   ")); err == nil {
		t.Fatalf("пустая сессия должна давать ошибку")
	}
	_, _, err := NormalizeSessionBytes([]byte("not a session"))
	if !errors.Is(err, ErrUnsupportedSessionFormat) {
		t.Fatalf("ожидали ErrUnsupportedSessionFormat, получили %v", err)
	}
}
