package models

import (
	"errors"
	"fmt"
)

// Ошибки валидации запросов
var (
	ErrEmptyTicker   = errors.New("ticker is required")
	ErrInvalidAction = errors.New("action must be buy or sell")
	ErrInvalidSide   = errors.New("side must be yes or no")
	ErrInvalidCount  = errors.New("count must be positive")
	ErrInvalidPrice  = errors.New("price must be between 1 and 99 cents")
	ErrEmptyAmend    = errors.New("amend request must change price or count")
	ErrBatchTooLarge = errors.New("cannot cancel more than 20 orders at once")
)

// Режимы предотвращения self-trade
const (
	STPCancelResting = "cancel_resting_order" // снять стоящий ордер
	STPCancelNew     = "cancel_new_order"     // снять новый ордер
)

// MaxBatchCancel - лимит биржи на размер пакетной отмены
const MaxBatchCancel = 20

// CreateOrderRequest - запрос на создание лимитного ордера.
// Нужна хотя бы одна из цен: YesPrice или NoPrice (вторая - комплемент до 100).
// Validate принимает и обе сразу.
type CreateOrderRequest struct {
	Ticker                  string `json:"ticker"`
	Action                  string `json:"action"` // buy, sell
	Side                    string `json:"side"`   // yes, no
	Count                   int    `json:"count"`
	YesPrice                *int   `json:"yes_price,omitempty"`
	NoPrice                 *int   `json:"no_price,omitempty"`
	ClientOrderID           string `json:"client_order_id,omitempty"` // если пусто - генерируется транспортом
	TimeInForce             string `json:"time_in_force,omitempty"`   // day, gtc, ioc, fok; пусто = gtc
	PostOnly                *bool  `json:"post_only,omitempty"`
	SelfTradePreventionType string `json:"self_trade_prevention_type,omitempty"`
	CancelOrderOnPause      *bool  `json:"cancel_order_on_pause,omitempty"`
	OrderGroupID            string `json:"order_group_id,omitempty"`
	BuyMaxCost              *int   `json:"buy_max_cost,omitempty"` // потолок стоимости исполнения в центах
}

// Validate проверяет запрос на границе интерфейса транспорта
func (r *CreateOrderRequest) Validate() error {
	if r.Ticker == "" {
		return ErrEmptyTicker
	}
	if r.Action != ActionBuy && r.Action != ActionSell {
		return fmt.Errorf("%w: %q", ErrInvalidAction, r.Action)
	}
	if r.Side != SideYes && r.Side != SideNo {
		return fmt.Errorf("%w: %q", ErrInvalidSide, r.Side)
	}
	if r.Count <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, r.Count)
	}
	if r.YesPrice == nil && r.NoPrice == nil {
		return ErrInvalidPrice
	}
	if r.YesPrice != nil && !validCents(*r.YesPrice) {
		return fmt.Errorf("%w: yes_price=%d", ErrInvalidPrice, *r.YesPrice)
	}
	if r.NoPrice != nil && !validCents(*r.NoPrice) {
		return fmt.Errorf("%w: no_price=%d", ErrInvalidPrice, *r.NoPrice)
	}
	switch r.TimeInForce {
	case "", TifDay, TifGTC, TifIOC, TifFOK:
	default:
		return fmt.Errorf("invalid time_in_force: %q", r.TimeInForce)
	}
	return nil
}

// AmendOrderRequest - запрос на изменение стоящего ордера.
// Хотя бы одно поле должно быть задано; при обеих ценах приоритет у YesPrice.
type AmendOrderRequest struct {
	YesPrice *int `json:"yes_price,omitempty"`
	NoPrice  *int `json:"no_price,omitempty"`
	Count    *int `json:"count,omitempty"` // новое ПОЛНОЕ количество, не дельта
}

// Validate проверяет запрос изменения
func (r *AmendOrderRequest) Validate() error {
	if r.YesPrice == nil && r.NoPrice == nil && r.Count == nil {
		return ErrEmptyAmend
	}
	if r.YesPrice != nil && !validCents(*r.YesPrice) {
		return fmt.Errorf("%w: yes_price=%d", ErrInvalidPrice, *r.YesPrice)
	}
	if r.NoPrice != nil && !validCents(*r.NoPrice) {
		return fmt.Errorf("%w: no_price=%d", ErrInvalidPrice, *r.NoPrice)
	}
	if r.Count != nil && *r.Count <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, *r.Count)
	}
	return nil
}

// BatchCancelRequest - пакетная отмена по HTTP API (атомарная, максимум 20 штук)
type BatchCancelRequest struct {
	OrderIDs []string `json:"ids"`
}

// Validate проверяет размер пакета
func (r *BatchCancelRequest) Validate() error {
	if len(r.OrderIDs) > MaxBatchCancel {
		return ErrBatchTooLarge
	}
	return nil
}

func validCents(p int) bool {
	return p >= 1 && p <= 99
}
