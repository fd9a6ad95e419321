package fix

import (
	"log"
	"sync"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"

	"kalshigw/internal/models"
	"kalshigw/internal/transport"
)

// Tracker - корреляционный движок FIX транспорта.
//
// Подписывается на входящий поток сессии и сводит асинхронные
// ExecutionReport'ы с заблокированными запросами вызывающих:
//   - регистрирует запросы в полёте по ClOrdID
//   - ведёт двунаправленные карты ClOrdID <-> OrderID для cancel/amend
//   - завершает обещание запроса первым терминальным для него отчётом
//   - отчёты по уже подтверждённым ордерам отдаёт в sink обновлений
//
// Карты корреляции не чистятся за время жизни процесса: cancel/amend
// по OrderID обязаны находить исходный ClOrdID, пока процесс жив.
type Tracker struct {
	mu        sync.RWMutex
	pending   map[string]*PendingRequest // ClOrdID -> запрос в полёте
	clToOrder map[string]string          // ClOrdID -> OrderID
	orderToCl map[string]string          // OrderID -> ClOrdID

	sinkMu sync.RWMutex
	sink   func(*models.Order) // callback обновлений по подтверждённым ордерам

	orderTimeout time.Duration // возраст, после которого pending считается протухшим
}

// NewTracker создаёт трекер с заданным таймаутом запросов
func NewTracker(orderTimeout time.Duration) *Tracker {
	return &Tracker{
		pending:      make(map[string]*PendingRequest),
		clToOrder:    make(map[string]string),
		orderToCl:    make(map[string]string),
		orderTimeout: orderTimeout,
	}
}

// SetUpdateSink устанавливает callback обновлений по уже подтверждённым
// ордерам. Максимум один; вызывается из потока входящих сообщений
// и не должен блокировать.
func (t *Tracker) SetUpdateSink(sink func(*models.Order)) {
	t.sinkMu.Lock()
	t.sink = sink
	t.sinkMu.Unlock()
}

// RegisterPending регистрирует запрос в полёте по его ClOrdID
func (t *Tracker) RegisterPending(clOrdID string) *PendingRequest {
	p := newPendingRequest(clOrdID)
	t.mu.Lock()
	t.pending[clOrdID] = p
	t.mu.Unlock()
	return p
}

// RemovePending убирает запрос из таблицы (после отказа отправки)
func (t *Tracker) RemovePending(clOrdID string) {
	t.mu.Lock()
	delete(t.pending, clOrdID)
	t.mu.Unlock()
}

// Pending возвращает запрос в полёте по ClOrdID (nil если нет)
func (t *Tracker) Pending(clOrdID string) *PendingRequest {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pending[clOrdID]
}

// ClOrdIDForOrderID возвращает исходный ClOrdID по биржевому OrderID.
// Пустая строка - ордер размещён не через эту сессию.
func (t *Tracker) ClOrdIDForOrderID(orderID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.orderToCl[orderID]
}

// OrderIDForClOrdID возвращает биржевой OrderID по ClOrdID
func (t *Tracker) OrderIDForClOrdID(clOrdID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.clToOrder[clOrdID]
}

// PendingCount возвращает количество запросов в полёте
func (t *Tracker) PendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending)
}

// ============================================================
// MessageListener
// ============================================================

// OnMessage разбирает прикладное сообщение сессии.
// Вызывается движком из потока входящих сообщений; не блокирует.
func (t *Tracker) OnMessage(msg *quickfix.Message, _ quickfix.SessionID) {
	msgType, err := msg.Header.GetString(tag.MsgType)
	if err != nil {
		return
	}

	switch enum.MsgType(msgType) {
	case enum.MsgType_EXECUTION_REPORT:
		t.handleExecutionReport(msg)
	case enum.MsgType_ORDER_CANCEL_REJECT:
		t.handleOrderCancelReject(msg)
	}
}

// OnSessionReject логирует сессионный Reject (MsgType 3).
// Pending не трогаем: если биржа пришлёт ER с отказом, он разрешится
// обычным путём, иначе запрос соберёт уборка по таймауту.
func (t *Tracker) OnSessionReject(refSeqNum int, refMsgType string, reason int, text string) {
	log.Printf("FIX session-level reject: refSeqNum=%d refMsgType=%s reason=%d text=%q",
		refSeqNum, refMsgType, reason, text)
}

// OnBusinessReject логирует BusinessMessageReject (MsgType j)
func (t *Tracker) OnBusinessReject(refSeqNum int, reason int, text string) {
	log.Printf("FIX business reject: refSeqNum=%d reason=%d text=%q", refSeqNum, reason, text)
}

func (t *Tracker) handleExecutionReport(msg *quickfix.Message) {
	execType := ExecType(msg)
	clOrdID, _ := msg.Body.GetString(tag.ClOrdID)
	orderID, _ := msg.Body.GetString(tag.OrderID)

	executionReportsTotal.WithLabelValues(string(execType)).Inc()

	// Карты корреляции заполняет ПЕРВЫЙ отчёт с обоими идентификаторами.
	// Подтверждения amend/cancel ротируют ClOrdID, но обратная карта должна
	// вечно указывать на ClOrdID создания: только его pending (с кэшем
	// Symbol/Side) никогда не убирается из таблицы.
	if clOrdID != "" && orderID != "" {
		t.mu.Lock()
		if _, ok := t.orderToCl[orderID]; !ok {
			t.clToOrder[clOrdID] = orderID
			t.orderToCl[orderID] = clOrdID
		}
		t.mu.Unlock()
	}

	order := ParseExecutionReport(msg)

	// Ищем запрос сначала по ClOrdID, затем по OrigClOrdID:
	// подтверждения cancel/replace ротируют ClOrdID
	pending := t.Pending(clOrdID)
	if pending == nil {
		if orig := OrigClOrdID(msg); orig != "" {
			pending = t.Pending(orig)
		}
	}

	switch execType {
	case enum.ExecType_NEW, enum.ExecType_PENDING_NEW:
		// Ордер принят биржей
		if pending != nil && !pending.Done() {
			if orderID != "" {
				pending.SetOrderID(orderID)
			}
			pending.Complete(order)
			log.Printf("Order acknowledged: ClOrdID=%s OrderID=%s", clOrdID, orderID)
		}

	case enum.ExecType_REJECTED:
		reason := RejectionReason(msg)
		if pending != nil && !pending.Done() {
			pending.Fail(transport.NewError(transport.TypeFIX, "order", transport.ErrRejected, reason, nil))
			t.RemovePending(clOrdID)
			log.Printf("Order rejected: ClOrdID=%s reason=%s", clOrdID, reason)
		}

	case enum.ExecType_TRADE, enum.ExecType_FILL, enum.ExecType_PARTIAL_FILL:
		// Сделка: либо ответ на запрос в полёте, либо fill по уже
		// подтверждённому ордеру - тогда это событие для sink
		if pending != nil && !pending.Done() {
			pending.Complete(order)
		} else {
			t.fireOrderUpdate(order)
		}
		log.Printf("Fill: ClOrdID=%s OrderID=%s cumQty=%d", clOrdID, orderID, order.FillCount)

	case enum.ExecType_CANCELED, enum.ExecType_REPLACED, enum.ExecType_EXPIRED:
		// Подтверждение cancel/amend либо истечение срока
		if pending != nil && !pending.Done() {
			pending.Complete(order)
			t.RemovePending(clOrdID)
		} else {
			t.fireOrderUpdate(order)
		}
		log.Printf("Order %s: ClOrdID=%s OrderID=%s", order.Status, clOrdID, orderID)

	default:
		log.Printf("Unhandled ExecType=%q ClOrdID=%s", string(execType), clOrdID)
	}
}

// handleOrderCancelReject обрабатывает OrderCancelReject (MsgType 9) -
// единственный путь отказа cancel/amend: отвергнутая отмена
// никогда не приходит как ExecutionReport
func (t *Tracker) handleOrderCancelReject(msg *quickfix.Message) {
	clOrdID, _ := msg.Body.GetString(tag.ClOrdID)
	text, err := msg.Body.GetString(tag.Text)
	if err != nil || text == "" {
		text = "Cancel rejected"
	}

	log.Printf("OrderCancelReject: ClOrdID=%s text=%q", clOrdID, text)
	cancelRejectsTotal.Inc()

	t.mu.Lock()
	pending := t.pending[clOrdID]
	delete(t.pending, clOrdID)
	t.mu.Unlock()

	if pending != nil && !pending.Done() {
		pending.Fail(transport.NewError(transport.TypeFIX, "cancel", transport.ErrRejected, text, nil))
	}
}

func (t *Tracker) fireOrderUpdate(order *models.Order) {
	t.sinkMu.RLock()
	sink := t.sink
	t.sinkMu.RUnlock()
	if sink == nil {
		return
	}
	// Паника в callback не должна убить поток входящих сообщений
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Order update sink panic: %v", r)
		}
	}()
	sink(order)
}

// ============================================================
// Уборка протухших запросов
// ============================================================

// CleanupStale убирает запросы старше таймаута, завершая их ошибкой
// ErrTimeout. Защитная сетка: основной механизм - дедлайны в транспорте.
// Вызывается внешним планировщиком (раз в секунду).
func (t *Tracker) CleanupStale() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for clOrdID, p := range t.pending {
		if p.Age() <= t.orderTimeout || p.Done() {
			continue
		}
		p.Fail(transport.NewError(transport.TypeFIX, "order", transport.ErrTimeout,
			"stale pending request: ClOrdID="+clOrdID, nil))
		delete(t.pending, clOrdID)
		removed++
		log.Printf("Timed out pending order: ClOrdID=%s age=%s", clOrdID, p.Age())
	}
	if removed > 0 {
		stalePendingTotal.Add(float64(removed))
	}
	return removed
}
