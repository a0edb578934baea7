package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"whisper.relay/internal/bot"
	"whisper.relay/internal/store"
)

// UpdateHandler consumes inbound platform updates.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u bot.Update) error
}

// Info describes the running service for the status endpoint.
type Info struct {
	BotName   string
	StoreType string
	Version   string
}

type Handler struct {
	updates       UpdateHandler
	store         store.Store
	info          Info
	webhookSecret string
	log           zerolog.Logger
}

func NewHandler(updates UpdateHandler, s store.Store, info Info, webhookSecret string, log zerolog.Logger) *Handler {
	return &Handler{
		updates:       updates,
		store:         s,
		info:          info,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Bot           string `json:"bot"`
	BotConfigured bool   `json:"bot_configured"`
	Store         string `json:"store"`
}

// Check is the status of one health probe.
type Check struct {
	Status  string `json:"status"` // "pass" or "fail"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, StatusResponse{
		Status:        "Bot is running",
		Version:       h.info.Version,
		Bot:           h.info.BotName,
		BotConfigured: h.info.BotName != "",
		Store:         h.info.StoreType,
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	start := time.Now()
	check := Check{Status: "pass"}
	if err := h.store.Ping(ctx); err != nil {
		check = Check{Status: "fail", Message: "connection failed"}
		status, code = "degraded", http.StatusServiceUnavailable
	} else {
		check.Latency = time.Since(start).String()
	}

	h.json(w, code, HealthResponse{
		Status:    status,
		Checks:    map[string]Check{"store": check},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Webhook receives one Telegram update. Processing errors are logged but
// still acknowledged with 200, otherwise Telegram redelivers the update and
// the composer would get a second whisper.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret != "" {
		got := chi.URLParam(r, "secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			h.error(w, http.StatusNotFound, "not found")
			return
		}
	}

	var u tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		h.error(w, http.StatusBadRequest, "invalid update")
		return
	}

	if err := h.updates.HandleUpdate(r.Context(), bot.FromTelegram(u)); err != nil {
		h.log.Error().Err(err).Int("update_id", u.UpdateID).Msg("update handling failed")
	}

	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) error(w http.ResponseWriter, status int, message string) {
	h.json(w, status, ErrorResponse{Error: message})
}
