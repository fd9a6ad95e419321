// Package transport предоставляет унифицированный интерфейс доставки
// ордерных операций на биржу: HTTP запрос/ответ или постоянная FIX сессия.
package transport

import (
	"context"

	"kalshigw/internal/models"
)

// Type - протокол, по которому транспорт доставляет операции.
// Используется только для логов и диагностики.
type Type string

const (
	TypeREST Type = "REST"
	TypeFIX  Type = "FIX"
)

// OrderTransport определяет контракт доставки ордерных операций.
// Реализации: REST клиент, FIX шлюз и fallback-композиция поверх обоих.
type OrderTransport interface {
	// CreateOrder создаёт лимитный ордер и возвращает его состояние
	// после подтверждения биржей
	CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error)

	// CancelOrder отменяет ордер по биржевому идентификатору.
	// Возвращает ордер в терминальном состоянии canceled.
	CancelOrder(ctx context.Context, orderID string) (*models.Order, error)

	// CancelOrders отменяет несколько ордеров. FIX реализация делает это
	// best-effort по одному, HTTP - атомарным пакетом до 20 штук.
	CancelOrders(ctx context.Context, orderIDs []string) error

	// AmendOrder изменяет цену и/или количество стоящего ордера
	AmendOrder(ctx context.Context, orderID string, req *models.AmendOrderRequest) (*models.Order, error)

	// IsAvailable сообщает, готов ли транспорт принять новый запрос
	// прямо сейчас. true - необходимое, но не достаточное условие успеха.
	IsAvailable() bool

	// Type возвращает протокол транспорта
	Type() Type
}
