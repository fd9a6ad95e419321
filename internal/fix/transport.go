package fix

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"

	"kalshigw/internal/models"
	"kalshigw/internal/transport"
)

// OrderSession - минимальный контракт сессии, нужный транспорту.
// Выделен в интерфейс ради тестов с фиктивной сессией.
type OrderSession interface {
	// IsLoggedOn сообщает, можно ли отправлять прикладные сообщения
	IsLoggedOn() bool
	// Send отправляет сообщение; ошибка означает, что оно не ушло
	Send(msg *quickfix.Message) error
}

// Transport доставляет ордерные операции через FIX сессию.
// Отправляет NewOrderSingle/OrderCancelRequest/OrderCancelReplaceRequest
// и блокирует вызывающего до коррелированного ExecutionReport.
type Transport struct {
	session OrderSession
	tracker *Tracker
	timeout time.Duration // дедлайн ожидания ответа на операцию
}

// NewTransport создаёт FIX транспорт поверх сессии и трекера.
// Трекер должен быть зарегистрирован слушателем сессии до её старта.
func NewTransport(session OrderSession, tracker *Tracker, orderTimeout time.Duration) *Transport {
	return &Transport{
		session: session,
		tracker: tracker,
		timeout: orderTimeout,
	}
}

// CreateOrder отправляет NewOrderSingle и ждёт подтверждения биржи
func (t *Transport) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	clOrdID := req.ClientOrderID
	if clOrdID == "" {
		clOrdID = GenerateClOrdID()
	}

	// Кэшируем сторону и тикер: они понадобятся для cancel/amend,
	// где вызывающий передаёт только биржевой OrderID
	pending := t.tracker.RegisterPending(clOrdID)
	pending.SetInstrument(SideToFIX(req.Action, req.Side), req.Ticker)

	if t.session == nil {
		return nil, transport.NewError(transport.TypeFIX, "create", transport.ErrUnavailable,
			"fix session not available", nil)
	}

	msg := NewOrderMessage(enum.MsgType_ORDER_SINGLE)
	PopulateNewOrder(msg, req, clOrdID)

	if err := t.send(msg); err != nil {
		t.tracker.RemovePending(clOrdID)
		return nil, transport.NewError(transport.TypeFIX, "create", transport.ErrUnavailable,
			"failed to send NewOrderSingle", err)
	}
	log.Printf("NewOrderSingle sent: ClOrdID=%s ticker=%s side=%s qty=%d price=%d",
		clOrdID, req.Ticker, req.Side, req.Count, PriceToFIX(req))

	return t.awaitResponse(ctx, pending, "create")
}

// CancelOrder отменяет ордер по биржевому идентификатору.
// OrderID транслируется через обратную карту трекера в исходный ClOrdID;
// промах означает, что ордер размещён не через эту сессию.
func (t *Transport) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	origClOrdID, side, symbol, err := t.resolveOrigin("cancel", orderID)
	if err != nil {
		return nil, err
	}

	cancelClOrdID := GenerateClOrdID()
	pending := t.tracker.RegisterPending(cancelClOrdID)

	if t.session == nil {
		return nil, transport.NewError(transport.TypeFIX, "cancel", transport.ErrUnavailable,
			"fix session not available", nil)
	}

	msg := NewOrderMessage(enum.MsgType_ORDER_CANCEL_REQUEST)
	PopulateCancelRequest(msg, cancelClOrdID, origClOrdID, symbol, side)

	if err := t.send(msg); err != nil {
		t.tracker.RemovePending(cancelClOrdID)
		return nil, transport.NewError(transport.TypeFIX, "cancel", transport.ErrUnavailable,
			"failed to send OrderCancelRequest", err)
	}
	log.Printf("OrderCancelRequest sent: ClOrdID=%s OrigClOrdID=%s OrderID=%s",
		cancelClOrdID, origClOrdID, orderID)

	return t.awaitResponse(ctx, pending, "cancel")
}

// CancelOrders отменяет ордера по одному, best-effort:
// отказ по отдельному ордеру логируется и не роняет пакет
func (t *Transport) CancelOrders(ctx context.Context, orderIDs []string) error {
	for _, orderID := range orderIDs {
		if _, err := t.CancelOrder(ctx, orderID); err != nil {
			log.Printf("Failed to cancel order %s: %v", orderID, err)
		}
	}
	return nil
}

// AmendOrder изменяет цену и/или количество через OrderCancelReplaceRequest
func (t *Transport) AmendOrder(ctx context.Context, orderID string, req *models.AmendOrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	origClOrdID, side, symbol, err := t.resolveOrigin("amend", orderID)
	if err != nil {
		return nil, err
	}

	// Цена на проводе всегда в yes центах; для sell-стороны комплемент.
	// При обеих заданных ценах приоритет у yes.
	var newPrice *int
	if req.YesPrice != nil {
		p := *req.YesPrice
		if side != enum.Side_BUY {
			p = 100 - p
		}
		newPrice = &p
	} else if req.NoPrice != nil {
		p := 100 - *req.NoPrice
		if side != enum.Side_BUY {
			p = *req.NoPrice
		}
		newPrice = &p
	}

	amendClOrdID := GenerateClOrdID()
	pending := t.tracker.RegisterPending(amendClOrdID)

	if t.session == nil {
		return nil, transport.NewError(transport.TypeFIX, "amend", transport.ErrUnavailable,
			"fix session not available", nil)
	}

	msg := NewOrderMessage(enum.MsgType_ORDER_CANCEL_REPLACE_REQUEST)
	PopulateAmendRequest(msg, amendClOrdID, origClOrdID, symbol, side, newPrice, req.Count)

	if err := t.send(msg); err != nil {
		t.tracker.RemovePending(amendClOrdID)
		return nil, transport.NewError(transport.TypeFIX, "amend", transport.ErrUnavailable,
			"failed to send OrderCancelReplaceRequest", err)
	}
	log.Printf("OrderCancelReplaceRequest sent: ClOrdID=%s OrigClOrdID=%s OrderID=%s",
		amendClOrdID, origClOrdID, orderID)

	return t.awaitResponse(ctx, pending, "amend")
}

// IsAvailable: транспорт готов, когда сессия залогинена
func (t *Transport) IsAvailable() bool {
	return t.session != nil && t.session.IsLoggedOn()
}

// Type возвращает протокол транспорта
func (t *Transport) Type() transport.Type {
	return transport.TypeFIX
}

// resolveOrigin восстанавливает исходный ClOrdID, FIX сторону и тикер
// по биржевому OrderID. Значения по умолчанию не подставляются:
// промах по любой части - ErrUnknownOrder.
func (t *Transport) resolveOrigin(op, orderID string) (string, enum.Side, string, error) {
	origClOrdID := t.tracker.ClOrdIDForOrderID(orderID)
	if origClOrdID == "" {
		return "", "", "", transport.NewError(transport.TypeFIX, op, transport.ErrUnknownOrder,
			"order "+orderID+" was not placed via this FIX session", nil)
	}
	origPending := t.tracker.Pending(origClOrdID)
	if origPending == nil {
		return "", "", "", transport.NewError(transport.TypeFIX, op, transport.ErrUnknownOrder,
			"no cached instrument for order "+orderID, nil)
	}
	side, symbol := origPending.Instrument()
	return origClOrdID, side, symbol, nil
}

func (t *Transport) send(msg *quickfix.Message) error {
	if t.session == nil {
		return errors.New("fix session not available")
	}
	return t.session.Send(msg)
}

// awaitResponse блокирует до коррелированного ответа с дедлайном операции
// и переводит исход в таксономию транспорта:
// дедлайн -> ErrTimeout (pending остаётся до уборки и может ещё
// разрешиться в обновление sink), отмена контекста -> ErrInterrupted.
func (t *Transport) awaitResponse(ctx context.Context, pending *PendingRequest, op string) (*models.Order, error) {
	start := time.Now()
	opCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	order, err := pending.Await(opCtx)
	orderRoundTripLatency.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))

	if err == nil {
		return order, nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return nil, transport.NewError(transport.TypeFIX, op, transport.ErrTimeout,
			"no ExecutionReport within "+t.timeout.String()+" for ClOrdID "+pending.ClOrdID(), err)
	case errors.Is(err, context.Canceled):
		return nil, transport.NewError(transport.TypeFIX, op, transport.ErrInterrupted,
			"caller context canceled", err)
	}

	// Отказ биржи (Rejected/Timeout из трекера) проходит как есть
	var te *transport.Error
	if errors.As(err, &te) {
		return nil, err
	}
	return nil, transport.NewError(transport.TypeFIX, op, transport.ErrUnavailable, "", err)
}
