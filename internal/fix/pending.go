package fix

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quickfixgo/enum"

	"kalshigw/internal/models"
)

// pendingResult - итог одного запроса: ордер или ошибка, ровно одно из двух
type pendingResult struct {
	order *models.Order
	err   error
}

// PendingRequest - запрос в полёте, ожидающий корреляции с ExecutionReport.
// Завершается ровно один раз: первый Complete или Fail выигрывает,
// остальные молча игнорируются (гонка ER против таймаута).
type PendingRequest struct {
	clOrdID   string
	createdAt time.Time

	// Кэш полей исходного ордера: FIX требует Symbol и Side в cancel/amend,
	// а вызывающий передаёт только биржевой OrderID
	mu      sync.Mutex
	orderID string
	fixSide enum.Side
	symbol  string

	once sync.Once
	done atomic.Bool
	ch   chan pendingResult
}

func newPendingRequest(clOrdID string) *PendingRequest {
	return &PendingRequest{
		clOrdID:   clOrdID,
		createdAt: time.Now(),
		ch:        make(chan pendingResult, 1),
	}
}

// ClOrdID возвращает корреляционный идентификатор запроса
func (p *PendingRequest) ClOrdID() string {
	return p.clOrdID
}

// Complete завершает запрос ордером. Первое завершение выигрывает.
func (p *PendingRequest) Complete(order *models.Order) {
	p.once.Do(func() {
		p.done.Store(true)
		p.ch <- pendingResult{order: order}
	})
}

// Fail завершает запрос ошибкой. Первое завершение выигрывает.
func (p *PendingRequest) Fail(err error) {
	p.once.Do(func() {
		p.done.Store(true)
		p.ch <- pendingResult{err: err}
	})
}

// Done сообщает, завершён ли уже запрос
func (p *PendingRequest) Done() bool {
	return p.done.Load()
}

// Await блокирует до завершения запроса или отмены контекста.
// Дедлайн задаёт вызывающий через context.WithTimeout.
func (p *PendingRequest) Await(ctx context.Context) (*models.Order, error) {
	select {
	case res := <-p.ch:
		return res.order, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Age возвращает возраст запроса (для уборки протухших)
func (p *PendingRequest) Age() time.Duration {
	return time.Since(p.createdAt)
}

// SetOrderID запоминает биржевой идентификатор после первого ER
func (p *PendingRequest) SetOrderID(orderID string) {
	p.mu.Lock()
	p.orderID = orderID
	p.mu.Unlock()
}

// OrderID возвращает биржевой идентификатор (пусто до первого ER)
func (p *PendingRequest) OrderID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.orderID
}

// SetInstrument кэширует FIX сторону и тикер исходного ордера
func (p *PendingRequest) SetInstrument(side enum.Side, symbol string) {
	p.mu.Lock()
	p.fixSide = side
	p.symbol = symbol
	p.mu.Unlock()
}

// Instrument возвращает кэшированные FIX сторону и тикер
func (p *PendingRequest) Instrument() (enum.Side, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fixSide, p.symbol
}
