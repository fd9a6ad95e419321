// Package api - ops HTTP сервер шлюза: управление ордерами,
// диагностика транспорта, метрики и WebSocket с обновлениями.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kalshigw/internal/api/handlers"
	"kalshigw/internal/api/middleware"
	"kalshigw/internal/orders"
	"kalshigw/internal/transport"
	ws "kalshigw/internal/websocket"
)

// Dependencies содержит зависимости API handlers
type Dependencies struct {
	Transport    transport.OrderTransport
	Cache        *orders.Cache
	Hub          *ws.Hub
	SessionState func() string // состояние FIX сессии; nil в режиме rest
	PasswordHash string        // bcrypt хеш для мутирующих endpoints
}

// SetupRoutes настраивает маршруты ops API
//
// /api/v1/
//
//	├── /orders
//	│   ├── GET    /            - живые снимки ордеров (?open=true)
//	│   ├── POST   /            - создать ордер (auth)
//	│   ├── DELETE /batched     - пакетная отмена (auth)
//	│   ├── DELETE /{id}        - отменить ордер (auth)
//	│   └── POST   /{id}/amend  - изменить ордер (auth)
//	└── /transport
//	    └── GET    /status      - текущий транспорт и доступность
//
// /health  - liveness probe
// /metrics - Prometheus
// /ws      - поток обновлений ордеров
func SetupRoutes(deps Dependencies) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)

	orderHandler := handlers.NewOrderHandler(deps.Transport, deps.Cache)
	statusHandler := handlers.NewStatusHandler(deps.Transport, deps.SessionState)

	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Чтение без аутентификации
	v1.HandleFunc("/orders", orderHandler.List).Methods(http.MethodGet)
	v1.HandleFunc("/transport/status", statusHandler.Transport).Methods(http.MethodGet)

	// Мутирующие endpoints под basic auth
	auth := middleware.BasicAuth(deps.PasswordHash)
	v1.Handle("/orders", auth(http.HandlerFunc(orderHandler.Create))).Methods(http.MethodPost)
	v1.Handle("/orders/batched", auth(http.HandlerFunc(orderHandler.BatchCancel))).Methods(http.MethodDelete)
	v1.Handle("/orders/{id}", auth(http.HandlerFunc(orderHandler.Cancel))).Methods(http.MethodDelete)
	v1.Handle("/orders/{id}/amend", auth(http.HandlerFunc(orderHandler.Amend))).Methods(http.MethodPost)

	router.HandleFunc("/health", statusHandler.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(deps.Hub, w, r)
	})

	return router
}
