package db

import (
	"context"
	"testing"
)

func TestConnectRejectsBadDSN(t *testing.T) {
	if _, err := Connect(context.Background(), Config{}); err == nil {
		t.Fatalf("пустой DSN должен давать ошибку")
	}
	if _, err := Connect(context.Background(), Config{DSN: "postgres://user@host:notaport/db"}); err == nil {
		t.Fatalf("некорректный DSN должен давать ошибку")
	}
}
