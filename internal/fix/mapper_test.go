package fix

import (
	"strings"
	"testing"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"

	"kalshigw/internal/models"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// ============ Трансляция стороны ============

func TestSideToFIX(t *testing.T) {
	tests := []struct {
		action string
		side   string
		want   enum.Side
	}{
		{"buy", "yes", enum.Side_BUY},
		{"sell", "yes", enum.Side_SELL},
		{"buy", "no", enum.Side_SELL}, // покупка no = продажа yes
		{"sell", "no", enum.Side_BUY}, // продажа no = покупка yes
		{"BUY", "YES", enum.Side_BUY}, // регистр не важен
		{"Sell", "No", enum.Side_BUY},
	}

	for _, tt := range tests {
		if got := SideToFIX(tt.action, tt.side); got != tt.want {
			t.Errorf("SideToFIX(%q, %q) = %q, ожидали %q", tt.action, tt.side, got, tt.want)
		}
	}
}

func TestActionFromFIX(t *testing.T) {
	if got := ActionFromFIX(enum.Side_BUY); got != models.ActionBuy {
		t.Errorf("Side=1 должен давать buy, получили %q", got)
	}
	if got := ActionFromFIX(enum.Side_SELL); got != models.ActionSell {
		t.Errorf("Side=2 должен давать sell, получили %q", got)
	}
	// FIX диалект биржи торгует только yes-ногой
	if got := SideFromFIX(enum.Side_SELL); got != models.SideYes {
		t.Errorf("сторона из FIX всегда yes, получили %q", got)
	}
}

// ============ Проекция цены ============

func TestPriceToFIX(t *testing.T) {
	tests := []struct {
		name string
		req  models.CreateOrderRequest
		want int
	}{
		{
			name: "yes сторона с yes ценой",
			req:  models.CreateOrderRequest{Side: "yes", Action: "buy", YesPrice: intPtr(65)},
			want: 65,
		},
		{
			name: "yes сторона только с no ценой",
			req:  models.CreateOrderRequest{Side: "yes", Action: "buy", NoPrice: intPtr(35)},
			want: 65,
		},
		{
			name: "no сторона с no ценой - комплемент",
			req:  models.CreateOrderRequest{Side: "no", Action: "buy", NoPrice: intPtr(30)},
			want: 70,
		},
		{
			name: "no сторона только с yes ценой",
			req:  models.CreateOrderRequest{Side: "no", Action: "sell", YesPrice: intPtr(40)},
			want: 40,
		},
		{
			name: "граница: цена 1",
			req:  models.CreateOrderRequest{Side: "yes", Action: "buy", YesPrice: intPtr(1)},
			want: 1,
		},
		{
			name: "граница: цена 99",
			req:  models.CreateOrderRequest{Side: "yes", Action: "buy", YesPrice: intPtr(99)},
			want: 99,
		},
		{
			name: "середина: 50/50 однозначна",
			req:  models.CreateOrderRequest{Side: "no", Action: "buy", NoPrice: intPtr(50)},
			want: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PriceToFIX(&tt.req); got != tt.want {
				t.Errorf("PriceToFIX = %d, ожидали %d", got, tt.want)
			}
		})
	}
}

// Инвариант: для любого запроса цена FIX и её комплемент дают 100
func TestPriceComplementInvariant(t *testing.T) {
	for p := 1; p <= 99; p++ {
		for _, side := range []string{"yes", "no"} {
			req := models.CreateOrderRequest{Side: side, Action: "buy", YesPrice: intPtr(p)}
			fixPrice := PriceToFIX(&req)
			if fixPrice < 1 || fixPrice > 99 {
				t.Fatalf("цена %d вне диапазона для side=%s yesPrice=%d", fixPrice, side, p)
			}
			if fixPrice+(100-fixPrice) != 100 {
				t.Fatalf("комплемент не сходится для %d", fixPrice)
			}
		}
	}
}

// ============ Трансляция статуса ============

func TestStatusFromFIX(t *testing.T) {
	tests := []struct {
		status enum.OrdStatus
		want   string
	}{
		{enum.OrdStatus_NEW, models.OrderStatusResting},
		{enum.OrdStatus_PARTIALLY_FILLED, models.OrderStatusResting},
		{enum.OrdStatus_PENDING_NEW, models.OrderStatusResting},
		{enum.OrdStatus_REPLACED, models.OrderStatusResting},
		{enum.OrdStatus_FILLED, models.OrderStatusExecuted},
		{enum.OrdStatus_CANCELED, models.OrderStatusCanceled},
		{enum.OrdStatus_PENDING_CANCEL, models.OrderStatusCanceled},
		{enum.OrdStatus_REJECTED, models.OrderStatusRejected},
		{enum.OrdStatus_EXPIRED, models.OrderStatusExpired},
		{enum.OrdStatus("Z"), models.OrderStatusUnknown},
	}

	for _, tt := range tests {
		if got := StatusFromFIX(tt.status); got != tt.want {
			t.Errorf("StatusFromFIX(%q) = %q, ожидали %q", string(tt.status), got, tt.want)
		}
	}
}

// ============ Трансляция time-in-force ============

func TestTifRoundTrip(t *testing.T) {
	// Законы обратимости на определённой области
	for _, tif := range []string{models.TifDay, models.TifGTC, models.TifIOC, models.TifFOK} {
		if got := TifFromFIX(TifToFIX(tif)); got != tif {
			t.Errorf("round-trip %q -> %q", tif, got)
		}
	}

	// Пустое и неизвестное значение дают GTC
	if TifToFIX("") != enum.TimeInForce_GOOD_TILL_CANCEL {
		t.Error("пустой tif должен давать GTC")
	}
	if TifToFIX("nonsense") != enum.TimeInForce_GOOD_TILL_CANCEL {
		t.Error("неизвестный tif должен давать GTC")
	}
}

// ============ Генерация ClOrdID ============

func TestGenerateClOrdID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateClOrdID()
		if len(id) > MaxClOrdIDLen {
			t.Fatalf("ClOrdID длиннее %d символов: %q", MaxClOrdIDLen, id)
		}
		if !strings.Contains(id, "-") {
			t.Fatalf("ожидали UUID с дефисами, получили %q", id)
		}
		if seen[id] {
			t.Fatalf("повтор ClOrdID: %q", id)
		}
		seen[id] = true
	}
}

// ============ Сборка исходящих сообщений ============

func TestPopulateNewOrder(t *testing.T) {
	req := &models.CreateOrderRequest{
		Ticker:                  "TEST-MKT",
		Action:                  "buy",
		Side:                    "yes",
		Count:                   10,
		YesPrice:                intPtr(65),
		TimeInForce:             "gtc",
		PostOnly:                boolPtr(true),
		SelfTradePreventionType: "maker",
		OrderGroupID:            "grp-1",
		BuyMaxCost:              intPtr(650),
	}

	msg := NewOrderMessage(enum.MsgType_ORDER_SINGLE)
	PopulateNewOrder(msg, req, "cl-1")

	checkField(t, msg, tag.ClOrdID, "cl-1")
	checkField(t, msg, tag.Symbol, "TEST-MKT")
	checkField(t, msg, tag.Side, "1")
	checkField(t, msg, tag.OrderQty, "10")
	checkField(t, msg, tag.OrdType, "2")
	checkField(t, msg, tag.Price, "65")
	checkField(t, msg, tag.TimeInForce, "1")
	checkField(t, msg, tag.ExecInst, "6")
	checkField(t, msg, tagSelfTradePrevention, "2")
	checkField(t, msg, tag.SecondaryClOrdID, "grp-1")
	checkField(t, msg, tagMaxExecutionCost, "650")

	if !msg.Body.Has(tag.TransactTime) {
		t.Error("TransactTime обязателен")
	}
	if msg.Body.Has(tagCancelOnPause) {
		t.Error("CancelOnPause не задавался и не должен присутствовать")
	}
}

func TestPopulateCancelRequest(t *testing.T) {
	msg := NewOrderMessage(enum.MsgType_ORDER_CANCEL_REQUEST)
	PopulateCancelRequest(msg, "cl-2", "cl-1", "TEST-MKT", enum.Side_BUY)

	checkField(t, msg, tag.ClOrdID, "cl-2")
	checkField(t, msg, tag.OrigClOrdID, "cl-1")
	checkField(t, msg, tag.Symbol, "TEST-MKT")
	checkField(t, msg, tag.Side, "1")
}

func TestPopulateAmendRequestOmitsUnchanged(t *testing.T) {
	msg := NewOrderMessage(enum.MsgType_ORDER_CANCEL_REPLACE_REQUEST)
	PopulateAmendRequest(msg, "cl-3", "cl-1", "TEST-MKT", enum.Side_BUY, intPtr(70), nil)

	checkField(t, msg, tag.Price, "70")
	if msg.Body.Has(tag.OrderQty) {
		t.Error("OrderQty не менялся и не должен присутствовать")
	}

	msg = NewOrderMessage(enum.MsgType_ORDER_CANCEL_REPLACE_REQUEST)
	PopulateAmendRequest(msg, "cl-4", "cl-1", "TEST-MKT", enum.Side_SELL, nil, intPtr(20))
	checkField(t, msg, tag.OrderQty, "20")
	if msg.Body.Has(tag.Price) {
		t.Error("Price не менялся и не должен присутствовать")
	}
}

// ============ Разбор ExecutionReport ============

func TestParseExecutionReportBuyYes(t *testing.T) {
	// Сценарий: buy-yes по 65, немедленный ack
	msg := buildExecutionReport(execReportParams{
		execType: enum.ExecType_NEW, ordStatus: enum.OrdStatus_NEW,
		clOrdID: "cl-1", orderID: "X1", symbol: "TEST-MKT",
		side: enum.Side_BUY, qty: 10, cumQty: 0, leavesQty: 10, price: 65,
	})

	order := ParseExecutionReport(msg)
	if order.OrderID != "X1" || order.ClientOrderID != "cl-1" {
		t.Fatalf("идентификаторы разобраны неверно: %+v", order)
	}
	if order.Status != models.OrderStatusResting {
		t.Errorf("статус %q, ожидали resting", order.Status)
	}
	if order.YesPrice != 65 || order.NoPrice != 35 {
		t.Errorf("цены %d/%d, ожидали 65/35", order.YesPrice, order.NoPrice)
	}
	if order.FillCount != 0 || order.RemainingCount != 10 || order.InitialCount != 10 {
		t.Errorf("количества разобраны неверно: %+v", order)
	}
	if order.Action != models.ActionBuy || order.Side != models.SideYes {
		t.Errorf("action/side %q/%q, ожидали buy/yes", order.Action, order.Side)
	}
	if order.Type != models.OrderTypeLimit {
		t.Errorf("тип %q, ожидали limit", order.Type)
	}
	if order.FillCount+order.RemainingCount != order.InitialCount {
		t.Error("filled + remaining != initial")
	}
}

func TestParseExecutionReportSellSide(t *testing.T) {
	// Сценарий: buy-no транслируется в sell-yes на проводе.
	// Эхо ack несёт Side=2 Price=70: разбор зеркалит провод -
	// yesPrice=30, noPrice=70, action=sell. Намерение вызывающего
	// (buy-no) живёт в его исходном запросе, не в эхе.
	msg := buildExecutionReport(execReportParams{
		execType: enum.ExecType_NEW, ordStatus: enum.OrdStatus_NEW,
		clOrdID: "cl-2", orderID: "X2", symbol: "TEST-MKT",
		side: enum.Side_SELL, qty: 5, cumQty: 0, leavesQty: 5, price: 70,
	})

	order := ParseExecutionReport(msg)
	if order.YesPrice != 30 || order.NoPrice != 70 {
		t.Errorf("цены %d/%d, ожидали 30/70", order.YesPrice, order.NoPrice)
	}
	if order.Action != models.ActionSell {
		t.Errorf("action %q, ожидали sell (зеркало провода)", order.Action)
	}
}

// Round-trip: заполнение NewOrderSingle и разбор эха тех же полей
// сохраняет (ticker, count, yesPrice, noPrice)
func TestPopulateParseRoundTrip(t *testing.T) {
	req := &models.CreateOrderRequest{
		Ticker: "RT-MKT", Action: "buy", Side: "yes",
		Count: 7, YesPrice: intPtr(42),
	}
	out := NewOrderMessage(enum.MsgType_ORDER_SINGLE)
	PopulateNewOrder(out, req, "cl-rt")

	// Эхо: биржа возвращает те же поля в ExecutionReport
	sideStr, _ := out.Body.GetString(tag.Side)
	price, _ := out.Body.GetInt(tag.Price)
	qty, _ := out.Body.GetInt(tag.OrderQty)

	echo := buildExecutionReport(execReportParams{
		execType: enum.ExecType_NEW, ordStatus: enum.OrdStatus_NEW,
		clOrdID: "cl-rt", orderID: "X-rt", symbol: "RT-MKT",
		side: enum.Side(sideStr), qty: qty, cumQty: 0, leavesQty: qty, price: price,
	})
	order := ParseExecutionReport(echo)

	if order.Ticker != req.Ticker {
		t.Errorf("ticker %q != %q", order.Ticker, req.Ticker)
	}
	if order.InitialCount != req.Count {
		t.Errorf("count %d != %d", order.InitialCount, req.Count)
	}
	if order.YesPrice != *req.YesPrice || order.NoPrice != 100-*req.YesPrice {
		t.Errorf("цены %d/%d не сходятся с запросом", order.YesPrice, order.NoPrice)
	}
	if order.Action != req.Action {
		t.Errorf("action %q != %q", order.Action, req.Action)
	}
}

func TestRejectionReason(t *testing.T) {
	msg := quickfix.NewMessage()
	msg.Header.Set(field.NewMsgType(enum.MsgType_EXECUTION_REPORT))
	if got := RejectionReason(msg); got != "Unknown rejection" {
		t.Errorf("без тегов ожидали Unknown rejection, получили %q", got)
	}

	msg.Body.SetField(tag.OrdRejReason, quickfix.FIXInt(5))
	msg.Body.Set(field.NewText("insufficient balance"))
	if got := RejectionReason(msg); got != "OrdRejReason=5, insufficient balance" {
		t.Errorf("причина собрана неверно: %q", got)
	}
}

// ============ Хелперы ============

func checkField(t *testing.T, msg *quickfix.Message, fieldTag quickfix.Tag, want string) {
	t.Helper()
	got, err := msg.Body.GetString(fieldTag)
	if err != nil {
		t.Errorf("тег %d отсутствует, ожидали %q", fieldTag, want)
		return
	}
	if got != want {
		t.Errorf("тег %d = %q, ожидали %q", fieldTag, got, want)
	}
}

type execReportParams struct {
	execType    enum.ExecType
	ordStatus   enum.OrdStatus
	clOrdID     string
	origClOrdID string
	orderID     string
	symbol      string
	side        enum.Side
	qty         int
	cumQty      int
	leavesQty   int
	price       int
	rejReason   int
	text        string
}

// buildExecutionReport собирает входящий ExecutionReport как его
// прислала бы биржа
func buildExecutionReport(p execReportParams) *quickfix.Message {
	msg := quickfix.NewMessage()
	msg.Header.Set(field.NewMsgType(enum.MsgType_EXECUTION_REPORT))
	msg.Body.Set(field.NewExecType(p.execType))
	msg.Body.Set(field.NewOrdStatus(p.ordStatus))
	if p.clOrdID != "" {
		msg.Body.Set(field.NewClOrdID(p.clOrdID))
	}
	if p.origClOrdID != "" {
		msg.Body.Set(field.NewOrigClOrdID(p.origClOrdID))
	}
	if p.orderID != "" {
		msg.Body.Set(field.NewOrderID(p.orderID))
	}
	if p.symbol != "" {
		msg.Body.Set(field.NewSymbol(p.symbol))
	}
	if p.side != "" {
		msg.Body.Set(field.NewSide(p.side))
	}
	if p.qty > 0 {
		msg.Body.Set(field.NewOrderQty(decimal.NewFromInt(int64(p.qty)), 0))
	}
	msg.Body.Set(field.NewCumQty(decimal.NewFromInt(int64(p.cumQty)), 0))
	msg.Body.Set(field.NewLeavesQty(decimal.NewFromInt(int64(p.leavesQty)), 0))
	if p.price > 0 {
		msg.Body.Set(field.NewPrice(decimal.NewFromInt(int64(p.price)), 0))
	}
	if p.rejReason > 0 {
		msg.Body.SetField(tag.OrdRejReason, quickfix.FIXInt(p.rejReason))
	}
	if p.text != "" {
		msg.Body.Set(field.NewText(p.text))
	}
	return msg
}
