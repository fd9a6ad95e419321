package transport

import (
	"context"
	"errors"
	"log"

	"kalshigw/internal/models"
)

// Fallback композиция двух транспортов: сначала основной (FIX),
// при его недоступности - запасной (REST).
//
// Запасной вызывается ровно один раз и только когда основной недоступен
// или отказал с ErrUnavailable. Терминальные отказы (ErrRejected,
// ErrTimeout, ErrUnknownOrder, ErrInterrupted) не повторяются:
// повтор отвергнутого ордера по HTTP означал бы его дублирование.
type Fallback struct {
	primary   OrderTransport
	secondary OrderTransport
}

// NewFallback создаёт fallback-композицию поверх основного и запасного
func NewFallback(primary, secondary OrderTransport) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

// CreateOrder создаёт ордер через основной транспорт с деградацией на запасной
func (f *Fallback) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	if !f.primary.IsAvailable() {
		log.Printf("%s unavailable, falling back to %s for create", f.primary.Type(), f.secondary.Type())
		return f.secondary.CreateOrder(ctx, req)
	}
	order, err := f.primary.CreateOrder(ctx, req)
	if f.shouldRetry(err) {
		log.Printf("%s create failed (%v), falling back to %s", f.primary.Type(), err, f.secondary.Type())
		fallbacksTotal.WithLabelValues("create").Inc()
		return f.secondary.CreateOrder(ctx, req)
	}
	return order, err
}

// CancelOrder отменяет ордер с деградацией на запасной транспорт
func (f *Fallback) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if !f.primary.IsAvailable() {
		log.Printf("%s unavailable, falling back to %s for cancel", f.primary.Type(), f.secondary.Type())
		return f.secondary.CancelOrder(ctx, orderID)
	}
	order, err := f.primary.CancelOrder(ctx, orderID)
	if f.shouldRetry(err) {
		log.Printf("%s cancel failed (%v), falling back to %s", f.primary.Type(), err, f.secondary.Type())
		fallbacksTotal.WithLabelValues("cancel").Inc()
		return f.secondary.CancelOrder(ctx, orderID)
	}
	return order, err
}

// CancelOrders отменяет пакет с деградацией на запасной транспорт
func (f *Fallback) CancelOrders(ctx context.Context, orderIDs []string) error {
	if !f.primary.IsAvailable() {
		log.Printf("%s unavailable, falling back to %s for batch cancel", f.primary.Type(), f.secondary.Type())
		return f.secondary.CancelOrders(ctx, orderIDs)
	}
	err := f.primary.CancelOrders(ctx, orderIDs)
	if f.shouldRetry(err) {
		log.Printf("%s batch cancel failed (%v), falling back to %s", f.primary.Type(), err, f.secondary.Type())
		fallbacksTotal.WithLabelValues("batch-cancel").Inc()
		return f.secondary.CancelOrders(ctx, orderIDs)
	}
	return err
}

// AmendOrder изменяет ордер с деградацией на запасной транспорт
func (f *Fallback) AmendOrder(ctx context.Context, orderID string, req *models.AmendOrderRequest) (*models.Order, error) {
	if !f.primary.IsAvailable() {
		log.Printf("%s unavailable, falling back to %s for amend", f.primary.Type(), f.secondary.Type())
		return f.secondary.AmendOrder(ctx, orderID, req)
	}
	order, err := f.primary.AmendOrder(ctx, orderID, req)
	if f.shouldRetry(err) {
		log.Printf("%s amend failed (%v), falling back to %s", f.primary.Type(), err, f.secondary.Type())
		fallbacksTotal.WithLabelValues("amend").Inc()
		return f.secondary.AmendOrder(ctx, orderID, req)
	}
	return order, err
}

// IsAvailable: хотя бы один из транспортов доступен
// (REST доступен по определению)
func (f *Fallback) IsAvailable() bool {
	return f.primary.IsAvailable() || f.secondary.IsAvailable()
}

// Type сообщает, какой транспорт был бы использован в момент запроса
func (f *Fallback) Type() Type {
	if f.primary.IsAvailable() {
		return f.primary.Type()
	}
	return f.secondary.Type()
}

// shouldRetry: повторяем на запасном только восстановимые отказы
func (f *Fallback) shouldRetry(err error) bool {
	return err != nil && errors.Is(err, ErrUnavailable)
}
