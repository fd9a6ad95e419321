package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"kalshigw/internal/models"
	"kalshigw/internal/orders"
	"kalshigw/internal/transport"
)

// OrderHandler обслуживает ордерные endpoints ops API поверх
// сконфигурированного транспорта и живого кэша состояний
type OrderHandler struct {
	transport transport.OrderTransport
	cache     *orders.Cache
}

// NewOrderHandler создает handler
func NewOrderHandler(t transport.OrderTransport, cache *orders.Cache) *OrderHandler {
	return &OrderHandler{transport: t, cache: cache}
}

// List возвращает живые снимки ордеров.
// Query параметр open=true ограничивает нетерминальными.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	var list []*models.Order
	if r.URL.Query().Get("open") == "true" {
		list = h.cache.ListOpen()
	} else {
		list = h.cache.List()
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"orders": list})
}

// Create создаёт ордер через транспорт
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body", Code: "bad_request"})
		return
	}
	if err := req.Validate(); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "validation"})
		return
	}

	order, err := h.transport.CreateOrder(r.Context(), &req)
	if err != nil {
		respondTransportError(w, err)
		return
	}
	h.cache.Apply(order)
	respondJSON(w, http.StatusCreated, map[string]interface{}{"order": order})
}

// Cancel отменяет ордер по биржевому идентификатору
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	order, err := h.transport.CancelOrder(r.Context(), orderID)
	if err != nil {
		respondTransportError(w, err)
		return
	}
	h.cache.Apply(order)
	respondJSON(w, http.StatusOK, map[string]interface{}{"order": order})
}

// BatchCancel отменяет пакет ордеров best-effort
func (h *OrderHandler) BatchCancel(w http.ResponseWriter, r *http.Request) {
	var req models.BatchCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body", Code: "bad_request"})
		return
	}
	if err := req.Validate(); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "validation"})
		return
	}

	if err := h.transport.CancelOrders(r.Context(), req.OrderIDs); err != nil {
		respondTransportError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{"submitted": len(req.OrderIDs)})
}

// Amend изменяет цену и/или количество ордера
func (h *OrderHandler) Amend(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var req models.AmendOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body", Code: "bad_request"})
		return
	}
	if err := req.Validate(); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "validation"})
		return
	}

	order, err := h.transport.AmendOrder(r.Context(), orderID, &req)
	if err != nil {
		respondTransportError(w, err)
		return
	}
	h.cache.Apply(order)
	respondJSON(w, http.StatusOK, map[string]interface{}{"order": order})
}
