package models

import "time"

// Order представляет снимок наблюдаемого состояния ордера на бирже.
// Каждый ExecutionReport порождает новый снимок; поля не мутируются.
type Order struct {
	OrderID        string    `json:"order_id" db:"order_id"`               // идентификатор, присвоенный биржей
	ClientOrderID  string    `json:"client_order_id" db:"client_order_id"` // корреляционный идентификатор клиента
	Ticker         string    `json:"ticker" db:"ticker"`                   // тикер рынка
	Action         string    `json:"action" db:"action"`                   // buy, sell
	Side           string    `json:"side" db:"side"`                       // yes, no
	Type           string    `json:"type" db:"type"`                       // всегда limit
	YesPrice       int       `json:"yes_price" db:"yes_price"`             // цена yes-ноги в центах (1-99)
	NoPrice        int       `json:"no_price" db:"no_price"`               // цена no-ноги, всегда 100 - YesPrice
	InitialCount   int       `json:"initial_count" db:"initial_count"`     // исходное количество контрактов
	FillCount      int       `json:"fill_count" db:"fill_count"`           // исполнено контрактов
	RemainingCount int       `json:"remaining_count" db:"remaining_count"` // осталось в стакане
	Status         string    `json:"status" db:"status"`
	LastUpdateTime time.Time `json:"last_update_time" db:"last_update_time"`
}

// Статусы ордера
const (
	OrderStatusResting  = "resting"  // стоит в стакане
	OrderStatusExecuted = "executed" // полностью исполнен
	OrderStatusCanceled = "canceled"
	OrderStatusRejected = "rejected"
	OrderStatusExpired  = "expired"
	OrderStatusUnknown  = "unknown"
)

// Действия над контрактами
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
)

// Стороны бинарного контракта. Цены ног в сумме дают 100 центов.
const (
	SideYes = "yes"
	SideNo  = "no"
)

// OrderTypeLimit - единственный поддерживаемый тип ордера
const OrderTypeLimit = "limit"

// Значения time-in-force
const (
	TifDay = "day"
	TifGTC = "gtc"
	TifIOC = "ioc"
	TifFOK = "fok"
)

// IsTerminalStatus сообщает, является ли статус терминальным:
// дальнейших ExecutionReport по такому ордеру не будет
func IsTerminalStatus(status string) bool {
	switch status {
	case OrderStatusExecuted, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}
