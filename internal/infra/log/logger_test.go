package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerLevelByEnv(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "prod")
	logger.Debug().Msg("скрыто")
	if buf.Len() != 0 {
		t.Fatalf("debug не должен писаться вне dev: %q", buf.String())
	}

	dev := Component(newLogger(&buf, "dev"), "poller")
	dev.Debug().Msg("видно")
	out := buf.String()
	if !strings.Contains(out, `"component":"poller"`) || !strings.Contains(out, "видно") {
		t.Fatalf("ожидали debug-запись с компонентом, получили %q", out)
	}
}
