// Package repository - журнал наблюдаемых состояний ордеров в Postgres.
// Журнал пишется из sink'а обновлений и не читается для восстановления
// корреляции: состояние в полёте живёт только в памяти процесса.
package repository

import (
	"database/sql"
	"errors"

	"kalshigw/internal/models"
)

// Ошибки репозитория
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository - работа с таблицей fix_orders
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает репозиторий поверх открытого соединения
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Upsert записывает последний снимок ордера.
// Повторный снимок по тому же OrderID перезаписывает запись.
func (r *OrderRepository) Upsert(order *models.Order) error {
	query := `
		INSERT INTO fix_orders (order_id, client_order_id, ticker, action, side, type,
			yes_price, no_price, initial_count, fill_count, remaining_count, status, last_update_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (order_id) DO UPDATE SET
			fill_count = EXCLUDED.fill_count,
			remaining_count = EXCLUDED.remaining_count,
			status = EXCLUDED.status,
			yes_price = EXCLUDED.yes_price,
			no_price = EXCLUDED.no_price,
			last_update_time = EXCLUDED.last_update_time`

	_, err := r.db.Exec(
		query,
		order.OrderID,
		order.ClientOrderID,
		order.Ticker,
		order.Action,
		order.Side,
		order.Type,
		order.YesPrice,
		order.NoPrice,
		order.InitialCount,
		order.FillCount,
		order.RemainingCount,
		order.Status,
		order.LastUpdateTime,
	)
	return err
}

// GetByOrderID возвращает последний записанный снимок ордера
func (r *OrderRepository) GetByOrderID(orderID string) (*models.Order, error) {
	query := `
		SELECT order_id, client_order_id, ticker, action, side, type,
			yes_price, no_price, initial_count, fill_count, remaining_count, status, last_update_time
		FROM fix_orders
		WHERE order_id = $1`

	order := &models.Order{}
	err := r.db.QueryRow(query, orderID).Scan(
		&order.OrderID,
		&order.ClientOrderID,
		&order.Ticker,
		&order.Action,
		&order.Side,
		&order.Type,
		&order.YesPrice,
		&order.NoPrice,
		&order.InitialCount,
		&order.FillCount,
		&order.RemainingCount,
		&order.Status,
		&order.LastUpdateTime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListByStatus возвращает снимки ордеров с заданным статусом
func (r *OrderRepository) ListByStatus(status string) ([]*models.Order, error) {
	query := `
		SELECT order_id, client_order_id, ticker, action, side, type,
			yes_price, no_price, initial_count, fill_count, remaining_count, status, last_update_time
		FROM fix_orders
		WHERE status = $1
		ORDER BY last_update_time DESC`

	rows, err := r.db.Query(query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order := &models.Order{}
		if err := rows.Scan(
			&order.OrderID,
			&order.ClientOrderID,
			&order.Ticker,
			&order.Action,
			&order.Side,
			&order.Type,
			&order.YesPrice,
			&order.NoPrice,
			&order.InitialCount,
			&order.FillCount,
			&order.RemainingCount,
			&order.Status,
			&order.LastUpdateTime,
		); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
