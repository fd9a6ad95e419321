package fix

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/quickfix"

	"kalshigw/internal/models"
	"kalshigw/internal/transport"
)

var testSessionID quickfix.SessionID

func newTestTracker() *Tracker {
	return NewTracker(5 * time.Second)
}

func awaitNow(t *testing.T, p *PendingRequest) (*models.Order, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return p.Await(ctx)
}

func TestTrackerAckCompletesPending(t *testing.T) {
	tr := newTestTracker()
	pending := tr.RegisterPending("cl-1")

	tr.OnMessage(buildExecutionReport(execReportParams{
		execType: enum.ExecType_NEW, ordStatus: enum.OrdStatus_NEW,
		clOrdID: "cl-1", orderID: "X1", symbol: "TEST-MKT",
		side: enum.Side_BUY, qty: 10, leavesQty: 10, price: 65,
	}), testSessionID)

	order, err := awaitNow(t, pending)
	if err != nil {
		t.Fatalf("ack должен завершить запрос: %v", err)
	}
	if order.OrderID != "X1" || order.Status != models.OrderStatusResting {
		t.Errorf("неожиданный ордер: %+v", order)
	}
	if pending.OrderID() != "X1" {
		t.Errorf("OrderID не записан на pending: %q", pending.OrderID())
	}

	// Карты корреляции заполнены в обе стороны сразу после ack
	if tr.ClOrdIDForOrderID("X1") != "cl-1" {
		t.Error("обратная карта не заполнена")
	}
	if tr.OrderIDForClOrdID("cl-1") != "X1" {
		t.Error("прямая карта не заполнена")
	}
}

func TestTrackerRejectFailsPending(t *testing.T) {
	tr := newTestTracker()
	pending := tr.RegisterPending("cl-1")

	tr.OnMessage(buildExecutionReport(execReportParams{
		execType: enum.ExecType_REJECTED, ordStatus: enum.OrdStatus_REJECTED,
		clOrdID: "cl-1", rejReason: 3, text: "market closed",
	}), testSessionID)

	_, err := awaitNow(t, pending)
	if !errors.Is(err, transport.ErrRejected) {
		t.Fatalf("ожидали ErrRejected, получили %v", err)
	}
	if got := transport.Reason(err); got != "OrdRejReason=3, market closed" {
		t.Errorf("причина собрана неверно: %q", got)
	}
	if tr.Pending("cl-1") != nil {
		t.Error("отвергнутый запрос должен быть убран из таблицы")
	}
}

func TestTrackerPostAckFillGoesToSink(t *testing.T) {
	tr := newTestTracker()
	var sunk []*models.Order
	tr.SetUpdateSink(func(o *models.Order) { sunk = append(sunk, o) })

	pending := tr.RegisterPending("cl-1")

	// Ack разрешает запрос
	tr.OnMessage(buildExecutionReport(execReportParams{
		execType: enum.ExecType_NEW, ordStatus: enum.OrdStatus_NEW,
		clOrdID: "cl-1", orderID: "X1", side: enum.Side_BUY, qty: 10, leavesQty: 10, price: 65,
	}), testSessionID)
	if _, err := awaitNow(t, pending); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if len(sunk) != 0 {
		t.Fatal("ack не должен идти в sink")
	}

	// Последующий fill по тому же ClOrdID - обновление для sink,
	// обещание не завершается повторно
	tr.OnMessage(buildExecutionReport(execReportParams{
		execType: enum.ExecType_TRADE, ordStatus: enum.OrdStatus_PARTIALLY_FILLED,
		clOrdID: "cl-1", orderID: "X1", side: enum.Side_BUY, qty: 10, cumQty: 4, leavesQty: 6, price: 65,
	}), testSessionID)

	if len(sunk) != 1 {
		t.Fatalf("post-ack fill должен уйти в sink, получили %d событий", len(sunk))
	}
	if sunk[0].FillCount != 4 || sunk[0].RemainingCount != 6 {
		t.Errorf("снимок fill разобран неверно: %+v", sunk[0])
	}
}

func TestTrackerFillResolvesUnackedPending(t *testing.T) {
	// IOC может исполниться раньше ack: первый терминальный для запроса
	// отчёт завершает обещание
	tr := newTestTracker()
	pending := tr.RegisterPending("cl-1")

	tr.OnMessage(buildExecutionReport(execReportParams{
		execType: enum.ExecType_TRADE, ordStatus: enum.OrdStatus_FILLED,
		clOrdID: "cl-1", orderID: "X1", side: enum.Side_BUY, qty: 5, cumQty: 5, leavesQty: 0, price: 50,
	}), testSessionID)

	order, err := awaitNow(t, pending)
	if err != nil {
		t.Fatalf("fill должен завершить запрос: %v", err)
	}
	if order.Status != models.OrderStatusExecuted {
		t.Errorf("статус %q, ожидали executed", order.Status)
	}
}

func TestTrackerCancelAckByOrigClOrdID(t *testing.T) {
	// Подтверждение отмены ротирует ClOrdID: pending отмены находится
	// по OrigClOrdID, если биржа эхом вернула исходный ClOrdID в 41
	tr := newTestTracker()
	cancelPending := tr.RegisterPending("cancel-cl")

	tr.OnMessage(buildExecutionReport(execReportParams{
		execType: enum.ExecType_CANCELED, ordStatus: enum.OrdStatus_CANCELED,
		clOrdID: "unknown-rotated", origClOrdID: "cancel-cl",
		orderID: "X1", side: enum.Side_BUY, qty: 10, cumQty: 0, leavesQty: 0, price: 65,
	}), testSessionID)

	order, err := awaitNow(t, cancelPending)
	if err != nil {
		t.Fatalf("cancel ack должен завершить запрос: %v", err)
	}
	if order.Status != models.OrderStatusCanceled {
		t.Errorf("статус %q, ожидали canceled", order.Status)
	}
}

func TestTrackerReplacedActsAsAmendAck(t *testing.T) {
	tr := newTestTracker()

	// Создание: ack привязывает X1 к ClOrdID создания
	createPending := tr.RegisterPending("create-cl")
	tr.OnMessage(buildExecutionReport(execReportParams{
		execType: enum.ExecType_NEW, ordStatus: enum.OrdStatus_NEW,
		clOrdID: "create-cl", orderID: "X1", side: enum.Side_BUY, qty: 10, leavesQty: 10, price: 65,
	}), testSessionID)
	if _, err := awaitNow(t, createPending); err != nil {
		t.Fatalf("create ack: %v", err)
	}

	amendPending := tr.RegisterPending("amend-cl")
	tr.OnMessage(buildExecutionReport(execReportParams{
		execType: enum.ExecType_REPLACED, ordStatus: enum.OrdStatus_REPLACED,
		clOrdID: "amend-cl", orderID: "X1", side: enum.Side_BUY, qty: 10, leavesQty: 10, price: 70,
	}), testSessionID)

	order, err := awaitNow(t, amendPending)
	if err != nil {
		t.Fatalf("replace ack должен завершить запрос: %v", err)
	}
	if order.YesPrice != 70 || order.Status != models.OrderStatusResting {
		t.Errorf("пост-amend снимок неверен: %+v", order)
	}
	if tr.Pending("amend-cl") != nil {
		t.Error("завершённый amend должен быть убран из таблицы")
	}

	// Карты корреляции не перезаписываются ротацией ClOrdID: обратная
	// карта вечно указывает на ClOrdID создания, чей pending (с кэшем
	// Symbol/Side) остаётся в таблице для будущих cancel/amend
	if got := tr.ClOrdIDForOrderID("X1"); got != "create-cl" {
		t.Fatalf("обратная карта после amend: %q, ожидали create-cl", got)
	}
	if tr.Pending("create-cl") == nil {
		t.Fatal("pending создания должен пережить amend")
	}
}

func TestTrackerPostAckCancelGoesToSink(t *testing.T) {
	tr := newTestTracker()
	var sunk []*models.Order
	tr.SetUpdateSink(func(o *models.Order) { sunk = append(sunk, o) })

	// Отмена с биржи без нашего запроса (например, cancel-on-pause)
	tr.OnMessage(buildExecutionReport(execReportParams{
		execType: enum.ExecType_CANCELED, ordStatus: enum.OrdStatus_CANCELED,
		clOrdID: "cl-other", orderID: "X7", side: enum.Side_SELL, qty: 3, leavesQty: 0, price: 40,
	}), testSessionID)

	if len(sunk) != 1 || sunk[0].Status != models.OrderStatusCanceled {
		t.Fatalf("внешняя отмена должна уйти в sink: %+v", sunk)
	}
}

func TestTrackerCancelReject(t *testing.T) {
	tr := newTestTracker()
	pending := tr.RegisterPending("cancel-cl")

	msg := quickfix.NewMessage()
	msg.Header.Set(field.NewMsgType(enum.MsgType_ORDER_CANCEL_REJECT))
	msg.Body.Set(field.NewClOrdID("cancel-cl"))
	msg.Body.Set(field.NewText("TOO_LATE_TO_CANCEL"))
	tr.OnMessage(msg, testSessionID)

	_, err := awaitNow(t, pending)
	if !errors.Is(err, transport.ErrRejected) {
		t.Fatalf("ожидали ErrRejected, получили %v", err)
	}
	if got := transport.Reason(err); got != "TOO_LATE_TO_CANCEL" {
		t.Errorf("текст отказа %q", got)
	}
	if tr.Pending("cancel-cl") != nil {
		t.Error("pending должен быть убран после OrderCancelReject")
	}
}

func TestTrackerSinkPanicIsContained(t *testing.T) {
	tr := newTestTracker()
	tr.SetUpdateSink(func(*models.Order) { panic("boom") })

	// Паника sink'а не должна уронить обработку входящих
	tr.OnMessage(buildExecutionReport(execReportParams{
		execType: enum.ExecType_CANCELED, ordStatus: enum.OrdStatus_CANCELED,
		clOrdID: "cl-x", orderID: "X9", side: enum.Side_BUY, qty: 1, leavesQty: 0, price: 10,
	}), testSessionID)
}

func TestTrackerCleanupStale(t *testing.T) {
	tr := NewTracker(10 * time.Millisecond)
	pending := tr.RegisterPending("cl-stale")
	fresh := tr.RegisterPending("cl-fresh")
	fresh.Complete(&models.Order{OrderID: "done"}) // завершённые не трогаем

	time.Sleep(20 * time.Millisecond)
	removed := tr.CleanupStale()
	if removed != 1 {
		t.Fatalf("ожидали 1 убранный запрос, получили %d", removed)
	}

	_, err := awaitNow(t, pending)
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("протухший запрос должен завершиться ErrTimeout, получили %v", err)
	}
	if tr.Pending("cl-stale") != nil {
		t.Error("протухший запрос должен быть убран из таблицы")
	}
	if tr.Pending("cl-fresh") == nil {
		t.Error("завершённый запрос не должен убираться уборкой")
	}
}

func TestTrackerLateReportAfterCleanupGoesToSink(t *testing.T) {
	// Сценарий таймаута: после уборки поздний ER маршрутизируется
	// в sink, а не в уже разрешённое обещание
	tr := NewTracker(time.Millisecond)
	tr.RegisterPending("cl-late")
	var sunk []*models.Order
	tr.SetUpdateSink(func(o *models.Order) { sunk = append(sunk, o) })

	time.Sleep(5 * time.Millisecond)
	tr.CleanupStale()

	tr.OnMessage(buildExecutionReport(execReportParams{
		execType: enum.ExecType_CANCELED, ordStatus: enum.OrdStatus_CANCELED,
		clOrdID: "cl-late", orderID: "X1", side: enum.Side_BUY, qty: 1, leavesQty: 0, price: 50,
	}), testSessionID)

	if len(sunk) != 1 {
		t.Fatalf("поздний отчёт должен уйти в sink, получили %d", len(sunk))
	}
}
