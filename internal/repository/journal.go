package repository

import (
	"context"
	"log"

	"kalshigw/internal/models"
)

// Journal - асинхронная запись снимков ордеров в репозиторий.
// Sink обновлений вызывается из потока входящих FIX сообщений и не может
// ждать Postgres: снимки складываются в буфер и пишутся отдельной горутиной.
type Journal struct {
	repo *OrderRepository
	ch   chan *models.Order
}

// NewJournal создает журнал с буфером на 1024 снимка
func NewJournal(repo *OrderRepository) *Journal {
	return &Journal{
		repo: repo,
		ch:   make(chan *models.Order, 1024),
	}
}

// Record ставит снимок в очередь записи, не блокируя.
// При переполненном буфере снимок отбрасывается с предупреждением:
// журнал - диагностика, не источник истины.
func (j *Journal) Record(order *models.Order) {
	select {
	case j.ch <- order:
	default:
		log.Printf("Order journal buffer full, dropping snapshot %s", order.OrderID)
	}
}

// Run пишет снимки до отмены контекста. Запускается в горутине.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case order := <-j.ch:
			if err := j.repo.Upsert(order); err != nil {
				log.Printf("Failed to journal order %s: %v", order.OrderID, err)
			}
		}
	}
}
