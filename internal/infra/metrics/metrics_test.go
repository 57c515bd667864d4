package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveNetworkRequestLabelsStatus(t *testing.T) {
	start := time.Now()
	before := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("test", "op", "unknown", "error"))
	ObserveNetworkRequest("test", "op", "", start, errors.New("boom"))
	after := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("test", "op", "unknown", "error"))
	if after-before != 1 {
		t.Fatalf("ожидали +1 к счётчику ошибок, получили %v", after-before)
	}
}

func TestMustRegisterOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)
	ObserveCycle(time.Now(), nil)
	if got := testutil.ToFloat64(CyclesTotal.WithLabelValues("success")); got < 1 {
		t.Fatalf("ожидали учтённый цикл, получили %v", got)
	}
}
