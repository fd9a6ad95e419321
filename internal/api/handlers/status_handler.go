package handlers

import (
	"net/http"
	"time"

	"kalshigw/internal/transport"
)

// StatusHandler отдаёт диагностическое состояние транспорта
type StatusHandler struct {
	transport    transport.OrderTransport
	sessionState func() string // состояние FIX сессии; nil в режиме rest
	startedAt    time.Time
}

// NewStatusHandler создает handler. sessionState может быть nil.
func NewStatusHandler(t transport.OrderTransport, sessionState func() string) *StatusHandler {
	return &StatusHandler{
		transport:    t,
		sessionState: sessionState,
		startedAt:    time.Now(),
	}
}

// Health - liveness probe
func (h *StatusHandler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

// Transport сообщает, какой транспорт обслужил бы запрос прямо сейчас
func (h *StatusHandler) Transport(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]interface{}{
		"kind":      h.transport.Type(),
		"available": h.transport.IsAvailable(),
	}
	if h.sessionState != nil {
		payload["fix_session_state"] = h.sessionState()
	}
	respondJSON(w, http.StatusOK, payload)
}
