// Package fix реализует ордерный шлюз поверх постоянной FIX сессии к бирже:
// трансляцию полей, корреляцию ExecutionReport'ов и транспорт ордеров.
//
// Кодировка биржи (FIXT.1.1 / FIX 5.0 SP2):
//   - Side 1 = покупка yes контрактов
//   - Side 2 = продажа yes контрактов (эквивалент покупки no по комплементу)
//   - Price = целые центы yes-ноги (1-99)
//   - OrdType = 2, только лимитные ордера
package fix

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"

	"kalshigw/internal/models"
)

// Кастомные теги биржи (выше стандартного диапазона, до 21009)
const (
	tagSelfTradePrevention quickfix.Tag = 2964
	tagCancelOnPause       quickfix.Tag = 21006
	tagMaxExecutionCost    quickfix.Tag = 21009
)

// MaxClOrdIDLen - лимит биржи на длину ClOrdID
const MaxClOrdIDLen = 64

// GenerateClOrdID возвращает новый корреляционный идентификатор:
// UUID с дефисами, 36 символов, заведомо короче лимита в 64
func GenerateClOrdID() string {
	return uuid.NewString()
}

// NewOrderMessage создаёт исходящее сообщение с заданным MsgType.
// Sender/Target/BeginString заполняет движок при отправке.
func NewOrderMessage(msgType enum.MsgType) *quickfix.Message {
	msg := quickfix.NewMessage()
	msg.Header.Set(field.NewMsgType(msgType))
	return msg
}

// ============================================================
// Трансляция стороны и цены
// ============================================================

// SideToFIX отображает пару action+side домена на FIX Side.
//
//	buy yes  → 1 (Buy)
//	sell yes → 2 (Sell)
//	buy no   → 2 (покупка no = продажа yes)
//	sell no  → 1 (продажа no = покупка yes)
func SideToFIX(action, side string) enum.Side {
	isBuy := strings.EqualFold(action, models.ActionBuy)
	isYes := strings.EqualFold(side, models.SideYes)

	if isBuy == isYes {
		return enum.Side_BUY
	}
	return enum.Side_SELL
}

// ActionFromFIX отображает FIX Side на действие домена
func ActionFromFIX(side enum.Side) string {
	if side == enum.Side_BUY {
		return models.ActionBuy
	}
	return models.ActionSell
}

// SideFromFIX отображает FIX Side на сторону контракта.
// FIX диалект биржи торгует только yes-ногой, поэтому всегда yes.
func SideFromFIX(enum.Side) string {
	return models.SideYes
}

// PriceToFIX проецирует цену запроса на FIX Price (центы yes-ноги).
// Для no-стороны цена конвертируется в комплемент: FIX всегда в yes ценах.
func PriceToFIX(req *models.CreateOrderRequest) int {
	if strings.EqualFold(req.Side, models.SideYes) {
		if req.YesPrice != nil {
			return *req.YesPrice
		}
		return 100 - *req.NoPrice
	}
	if req.NoPrice != nil {
		return 100 - *req.NoPrice
	}
	return *req.YesPrice
}

// ============================================================
// Трансляция статуса
// ============================================================

// StatusFromFIX отображает FIX OrdStatus на статус домена.
// Неизвестные значения дают unknown.
func StatusFromFIX(status enum.OrdStatus) string {
	switch status {
	case enum.OrdStatus_NEW, enum.OrdStatus_PARTIALLY_FILLED, enum.OrdStatus_PENDING_NEW, enum.OrdStatus_REPLACED:
		return models.OrderStatusResting
	case enum.OrdStatus_FILLED:
		return models.OrderStatusExecuted
	case enum.OrdStatus_CANCELED, enum.OrdStatus_PENDING_CANCEL:
		return models.OrderStatusCanceled
	case enum.OrdStatus_REJECTED:
		return models.OrderStatusRejected
	case enum.OrdStatus_EXPIRED:
		return models.OrderStatusExpired
	default:
		return models.OrderStatusUnknown
	}
}

// ============================================================
// Трансляция time-in-force
// ============================================================

// TifToFIX отображает time-in-force домена на FIX TimeInForce.
// Пустое или неизвестное значение даёт GTC.
func TifToFIX(tif string) enum.TimeInForce {
	switch strings.ToLower(tif) {
	case models.TifDay:
		return enum.TimeInForce_DAY
	case models.TifIOC, "immediate_or_cancel":
		return enum.TimeInForce_IMMEDIATE_OR_CANCEL
	case models.TifFOK, "fill_or_kill":
		return enum.TimeInForce_FILL_OR_KILL
	default:
		return enum.TimeInForce_GOOD_TILL_CANCEL
	}
}

// TifFromFIX отображает FIX TimeInForce на строку домена
func TifFromFIX(tif enum.TimeInForce) string {
	switch tif {
	case enum.TimeInForce_DAY:
		return models.TifDay
	case enum.TimeInForce_IMMEDIATE_OR_CANCEL:
		return models.TifIOC
	case enum.TimeInForce_FILL_OR_KILL:
		return models.TifFOK
	default:
		return models.TifGTC
	}
}

func stpToFIX(stp string) string {
	switch strings.ToLower(stp) {
	case "maker", models.STPCancelResting:
		return "2"
	default: // taker, cancel_new_order
		return "1"
	}
}

// ============================================================
// Сборка исходящих сообщений
// ============================================================

// PopulateNewOrder заполняет NewOrderSingle (MsgType D) из запроса на создание.
// Сообщение уже должно иметь MsgType D в заголовке.
func PopulateNewOrder(msg *quickfix.Message, req *models.CreateOrderRequest, clOrdID string) {
	msg.Body.Set(field.NewClOrdID(clOrdID))
	msg.Body.Set(field.NewSymbol(req.Ticker))
	msg.Body.Set(field.NewSide(SideToFIX(req.Action, req.Side)))
	msg.Body.Set(field.NewOrderQty(decimal.NewFromInt(int64(req.Count)), 0))
	msg.Body.Set(field.NewOrdType(enum.OrdType_LIMIT))
	msg.Body.Set(field.NewPrice(decimal.NewFromInt(int64(PriceToFIX(req))), 0))
	msg.Body.Set(field.NewTimeInForce(TifToFIX(req.TimeInForce)))
	msg.Body.Set(field.NewTransactTime(time.Now().UTC()))

	// Опциональные поля
	if req.PostOnly != nil && *req.PostOnly {
		msg.Body.Set(field.NewExecInst(enum.ExecInst_PARTICIPANT_DONT_INITIATE))
	}
	if req.SelfTradePreventionType != "" {
		msg.Body.SetField(tagSelfTradePrevention, quickfix.FIXString(stpToFIX(req.SelfTradePreventionType)))
	}
	if req.CancelOrderOnPause != nil {
		msg.Body.SetField(tagCancelOnPause, quickfix.FIXBoolean(*req.CancelOrderOnPause))
	}
	if req.OrderGroupID != "" {
		msg.Body.Set(field.NewSecondaryClOrdID(req.OrderGroupID))
	}
	if req.BuyMaxCost != nil {
		msg.Body.SetField(tagMaxExecutionCost, quickfix.FIXInt(*req.BuyMaxCost))
	}
}

// PopulateCancelRequest заполняет OrderCancelRequest (MsgType F).
// Symbol и Side обязательны по протоколу, хотя вызывающий знает только OrderID;
// их восстанавливает трекер из исходного pending запроса.
func PopulateCancelRequest(msg *quickfix.Message, clOrdID, origClOrdID, symbol string, side enum.Side) {
	msg.Body.Set(field.NewClOrdID(clOrdID))
	msg.Body.Set(field.NewOrigClOrdID(origClOrdID))
	msg.Body.Set(field.NewSymbol(symbol))
	msg.Body.Set(field.NewSide(side))
	msg.Body.Set(field.NewTransactTime(time.Now().UTC()))
}

// PopulateAmendRequest заполняет OrderCancelReplaceRequest (MsgType G).
// nil цена или количество означают "оставить как есть" - тег не ставится.
func PopulateAmendRequest(msg *quickfix.Message, clOrdID, origClOrdID, symbol string, side enum.Side, newPrice, newQty *int) {
	msg.Body.Set(field.NewClOrdID(clOrdID))
	msg.Body.Set(field.NewOrigClOrdID(origClOrdID))
	msg.Body.Set(field.NewSymbol(symbol))
	msg.Body.Set(field.NewSide(side))
	msg.Body.Set(field.NewOrdType(enum.OrdType_LIMIT))
	msg.Body.Set(field.NewTransactTime(time.Now().UTC()))

	if newPrice != nil {
		msg.Body.Set(field.NewPrice(decimal.NewFromInt(int64(*newPrice)), 0))
	}
	if newQty != nil {
		msg.Body.Set(field.NewOrderQty(decimal.NewFromInt(int64(*newQty)), 0))
	}
}

// ============================================================
// Разбор входящих сообщений
// ============================================================

// ParseExecutionReport разбирает ExecutionReport (MsgType 8) в снимок Order.
// Отсутствующие поля оставляют нулевые значения - отчёты биржи не обязаны
// нести полный набор тегов.
func ParseExecutionReport(msg *quickfix.Message) *models.Order {
	order := &models.Order{Type: models.OrderTypeLimit}

	if v, err := msg.Body.GetString(tag.OrderID); err == nil {
		order.OrderID = v
	}
	if v, err := msg.Body.GetString(tag.ClOrdID); err == nil {
		order.ClientOrderID = v
	}
	if v, err := msg.Body.GetString(tag.Symbol); err == nil {
		order.Ticker = v
	}

	var side enum.Side
	if v, err := msg.Body.GetString(tag.Side); err == nil {
		side = enum.Side(v)
		order.Action = ActionFromFIX(side)
		order.Side = SideFromFIX(side)
	}

	if v, err := msg.Body.GetString(tag.OrdStatus); err == nil {
		order.Status = StatusFromFIX(enum.OrdStatus(v))
	}

	if v, err := msg.Body.GetInt(tag.OrderQty); err == nil {
		order.InitialCount = v
	}
	if v, err := msg.Body.GetInt(tag.CumQty); err == nil {
		order.FillCount = v
	}
	if v, err := msg.Body.GetInt(tag.LeavesQty); err == nil {
		order.RemainingCount = v
	}

	// Цена на проводе всегда в yes центах; раскладываем на ноги по стороне
	var price field.PriceField
	if err := msg.Body.GetField(tag.Price, &price); err == nil && side != "" {
		cents := int(price.Value().IntPart())
		if side == enum.Side_BUY {
			order.YesPrice = cents
			order.NoPrice = 100 - cents
		} else {
			order.YesPrice = 100 - cents
			order.NoPrice = cents
		}
	}

	order.LastUpdateTime = time.Now().UTC()
	return order
}

// ExecType извлекает ExecType (тег 150) из ExecutionReport
func ExecType(msg *quickfix.Message) enum.ExecType {
	v, err := msg.Body.GetString(tag.ExecType)
	if err != nil {
		return ""
	}
	return enum.ExecType(v)
}

// OrigClOrdID извлекает OrigClOrdID (тег 41), если он есть
func OrigClOrdID(msg *quickfix.Message) string {
	v, err := msg.Body.GetString(tag.OrigClOrdID)
	if err != nil {
		return ""
	}
	return v
}

// RejectionReason собирает причину отказа из ExecutionReport:
// "OrdRejReason=<код>" и свободный текст из тега 58, если они есть
func RejectionReason(msg *quickfix.Message) string {
	var sb strings.Builder
	if v, err := msg.Body.GetInt(tag.OrdRejReason); err == nil {
		fmt.Fprintf(&sb, "OrdRejReason=%d", v)
	}
	if v, err := msg.Body.GetString(tag.Text); err == nil && v != "" {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v)
	}
	if sb.Len() == 0 {
		return "Unknown rejection"
	}
	return sb.String()
}
