// Package orders ведёт живое состояние ордеров платформы.
// Кэш питается sink'ом обновлений транспорта и результатами операций;
// его читают ops API и broadcast в UI.
package orders

import (
	"sort"
	"sync"

	"kalshigw/internal/models"
)

// Cache - потокобезопасный кэш последних снимков ордеров по OrderID.
// Записи не удаляются: терминальные ордера остаются видимыми до рестарта,
// как и карты корреляции транспорта.
type Cache struct {
	mu     sync.RWMutex
	orders map[string]*models.Order // OrderID -> последний снимок

	listenerMu sync.RWMutex
	listeners  []func(*models.Order)
}

// NewCache создаёт пустой кэш
func NewCache() *Cache {
	return &Cache{orders: make(map[string]*models.Order)}
}

// Apply вносит снимок ордера в кэш и уведомляет слушателей.
// Снимки без OrderID игнорируются: их не к чему привязать.
// Вызывается из потока входящих FIX сообщений - не блокирует.
func (c *Cache) Apply(order *models.Order) {
	if order == nil || order.OrderID == "" {
		return
	}

	c.mu.Lock()
	c.orders[order.OrderID] = order
	c.mu.Unlock()

	c.listenerMu.RLock()
	listeners := c.listeners
	c.listenerMu.RUnlock()
	for _, l := range listeners {
		l(order)
	}
}

// Subscribe регистрирует слушателя обновлений (broadcast, журнал).
// Слушатели вызываются в порядке регистрации из потока Apply.
func (c *Cache) Subscribe(l func(*models.Order)) {
	c.listenerMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenerMu.Unlock()
}

// Get возвращает последний снимок ордера (nil если не видели)
func (c *Cache) Get(orderID string) *models.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orders[orderID]
}

// List возвращает снимки всех ордеров, отсортированные по OrderID
func (c *Cache) List() []*models.Order {
	c.mu.RLock()
	out := make([]*models.Order, 0, len(c.orders))
	for _, o := range c.orders {
		out = append(out, o)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// ListOpen возвращает только нетерминальные ордера
func (c *Cache) ListOpen() []*models.Order {
	all := c.List()
	open := all[:0]
	for _, o := range all {
		if !models.IsTerminalStatus(o.Status) {
			open = append(open, o)
		}
	}
	return open
}
