package mtproto

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"
)

// ErrUnsupportedSessionFormat возвращается, если формат сессии не распознан.
var ErrUnsupportedSessionFormat = errors.New("unsupported MTProto session format")

type sessionConverter func(raw []byte) (session.Data, error)

// Порядок важен: строка Telethon может случайно оказаться валидным JSON-литералом.
var sessionConverters = []sessionConverter{
	fromTelethonAccount,
	fromTelethonRows,
	fromTelethonString,
}

// NormalizeSessionBytes приводит сессию к JSON-формату gotd.
// Поддерживаются нативный JSON gotd, строковая сессия Telethon,
// экспорт аккаунта с полем extra_params и выгрузка таблицы sessions.
// Второе значение сообщает, потребовалась ли конвертация.
func NormalizeSessionBytes(raw []byte) ([]byte, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, errors.New("MTProto session is empty")
	}
	if isGotdSession(trimmed) {
		return append([]byte(nil), trimmed...), false, nil
	}
	for _, convert := range sessionConverters {
		data, err := convert(trimmed)
		if err != nil {
			continue
		}
		out, err := encodeGotd(data)
		if err != nil {
			return nil, false, err
		}
		return out, true, nil
	}
	return nil, false, ErrUnsupportedSessionFormat
}

func isGotdSession(raw []byte) bool {
	var probe struct {
		Version int `json:"Version"`
	}
	return json.Unmarshal(raw, &probe) == nil && probe.Version != 0
}

func encodeGotd(data session.Data) ([]byte, error) {
	return json.Marshal(struct {
		Version int          `json:"Version"`
		Data    session.Data `json:"Data"`
	}{Version: 1, Data: data})
}

func fromTelethonAccount(raw []byte) (session.Data, error) {
	var account struct {
		ExtraParams string `json:"extra_params"`
	}
	if err := json.Unmarshal(raw, &account); err != nil {
		return session.Data{}, err
	}
	if account.ExtraParams == "" {
		return session.Data{}, errors.New("extra_params is empty")
	}
	return fromTelethonString([]byte(account.ExtraParams))
}

func fromTelethonRows(raw []byte) (session.Data, error) {
	var rows []struct {
		DCID          int    `json:"dc_id"`
		ServerAddress string `json:"server_address"`
		Port          int    `json:"port"`
		AuthKey       string `json:"auth_key"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return session.Data{}, err
	}
	for _, row := range rows {
		if row.AuthKey == "" || row.ServerAddress == "" || row.Port == 0 {
			continue
		}
		return sessionFromHexKey(row.DCID, row.ServerAddress, row.Port, row.AuthKey)
	}
	return session.Data{}, errors.New("no usable session rows")
}

func fromTelethonString(raw []byte) (session.Data, error) {
	candidate := strings.Trim(strings.TrimSpace(string(raw)), "\"'")
	if candidate == "" {
		return session.Data{}, errors.New("telethon session string is empty")
	}
	data, err := session.TelethonSession(candidate)
	if err != nil {
		return session.Data{}, err
	}
	if data.Config.ThisDC == 0 {
		data.Config.ThisDC = data.DC
	}
	if len(data.Config.DCOptions) == 0 {
		if host, port, ok := splitAddr(data.Addr); ok {
			data.Config.DCOptions = []tg.DCOption{{ID: data.DC, IPAddress: host, Port: port}}
		}
	}
	return *data, nil
}

func splitAddr(addr string) (string, int, bool) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false
	}
	return host, port, true
}

func sessionFromHexKey(dcID int, host string, port int, keyHex string) (session.Data, error) {
	rawKey, err := hex.DecodeString(strings.Trim(strings.TrimSpace(keyHex), "'\""))
	if err != nil {
		return session.Data{}, fmt.Errorf("decode auth_key: %w", err)
	}
	var key crypto.Key
	if len(rawKey) != len(key) {
		return session.Data{}, fmt.Errorf("unexpected auth_key length: %d bytes", len(rawKey))
	}
	copy(key[:], rawKey)
	id := key.WithID().ID

	return session.Data{
		Config: session.Config{
			ThisDC:    dcID,
			DCOptions: []tg.DCOption{{ID: dcID, IPAddress: host, Port: port}},
		},
		DC:        dcID,
		Addr:      net.JoinHostPort(host, strconv.Itoa(port)),
		AuthKey:   append([]byte(nil), key[:]...),
		AuthKeyID: append([]byte(nil), id[:]...),
	}, nil
}
