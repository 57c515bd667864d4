package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tg-contract-scanner/internal/adapters/bot"
	"tg-contract-scanner/internal/domain"
	httpinfra "tg-contract-scanner/internal/infra/http"
)

type api struct {
	channels domain.ChannelRepo
	reports  domain.ReportQuery
	jobs     domain.JobQueue
	log      zerolog.Logger
	now      func() time.Time
}

type createJobRequest struct {
	ChatID  int64  `json:"chat_id"`
	Channel string `json:"channel"`
}

func (a *api) mount(r chi.Router, token string) {
	r.Route("/api/v1", func(protected chi.Router) {
		protected.Use(httpinfra.BearerTokenMiddleware(token))
		protected.Get("/channels", a.listChannels)
		protected.Get("/reports", a.listReports)
		protected.Post("/jobs", a.createJob)
	})
}

func (a *api) listChannels(w http.ResponseWriter, r *http.Request) {
	list, err := a.channels.ListChannels(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("api: list channels")
		writeError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, ch := range list {
		out = append(out, map[string]any{
			"tg_channel_id": ch.TGChannelID,
			"chat_id":       ch.ChatID(),
			"alias":         ch.Alias,
			"title":         ch.Title,
		})
	}
	writeJSON(w, out)
}

func (a *api) listReports(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	reports, err := a.reports.ListReports(r.Context(), address, limit)
	if err != nil {
		a.log.Error().Err(err).Msg("api: list reports")
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if reports == nil {
		reports = []domain.TokenReport{}
	}
	writeJSON(w, map[string]any{"reports": reports})
}

func (a *api) createJob(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChatID == 0 {
		writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	job, err := bot.NewExtractJob(req.ChatID, req.Channel, a.now())
	if err != nil {
		if errors.Is(err, bot.ErrMissingArgument) {
			writeError(w, http.StatusBadRequest, "channel is required")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid channel reference")
		return
	}
	if err := a.jobs.Enqueue(r.Context(), job); err != nil {
		a.log.Error().Err(err).Msg("api: enqueue job")
		writeError(w, http.StatusServiceUnavailable, "failed to enqueue job")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"job_id": job.ID, "status": "queued"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
