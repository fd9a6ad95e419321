package handlers

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"kalshigw/internal/transport"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// respondJSON пишет тело ответа с заданным статусом
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// respondTransportError переводит таксономию транспорта в HTTP статусы:
// недоступность - 503, отказ биржи - 422, таймаут - 504,
// неизвестный ордер - 404, прерывание - 499 (клиент ушёл)
func respondTransportError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	code := "bad_request"

	switch {
	case errors.Is(err, transport.ErrUnavailable):
		status, code = http.StatusServiceUnavailable, "transport_unavailable"
	case errors.Is(err, transport.ErrRejected):
		status, code = http.StatusUnprocessableEntity, "rejected"
	case errors.Is(err, transport.ErrTimeout):
		status, code = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, transport.ErrUnknownOrder):
		status, code = http.StatusNotFound, "unknown_order"
	case errors.Is(err, transport.ErrInterrupted):
		status, code = 499, "interrupted"
	}

	respondJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Code:    code,
		Details: transport.Reason(err),
	})
}
