package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "poll_cycle_duration_seconds",
		Help:    "Длительность одного цикла опроса каналов",
		Buckets: prometheus.DefBuckets,
	})
	CyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_cycles_total",
		Help: "Количество циклов опроса по результату",
	}, []string{"status"})
	ChannelScanErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "channel_scan_errors_total",
		Help: "Ошибки чтения истории каналов",
	})
	MentionsFound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contract_mentions_total",
		Help: "Уникальные адреса, найденные за цикл",
	})
	TokensResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokens_resolved_total",
		Help: "Результаты обогащения токенов",
	}, []string{"outcome"})
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Обращения к кэшам метаданных",
	}, []string{"cache", "result"})
	ChunksSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_chunks_sent_total",
		Help: "Отправленные части уведомлений",
	})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})
	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_jobs_total",
		Help: "Задачи разового извлечения по результату",
	}, []string{"outcome"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		CycleDuration,
		CyclesTotal,
		ChannelScanErrors,
		MentionsFound,
		TokensResolved,
		CacheLookups,
		ChunksSent,
		BotSendErrors,
		JobsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveCycle записывает длительность и итог цикла опроса.
func ObserveCycle(start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	CycleDuration.Observe(time.Since(start).Seconds())
	CyclesTotal.WithLabelValues(status).Inc()
}

// ObserveCache учитывает попадание или промах кэша.
func ObserveCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}
