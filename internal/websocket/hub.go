// Package websocket раздаёт обновления ордеров подключенным UI клиентам.
package websocket

import (
	"log"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"kalshigw/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageTypeOrderUpdate - снимок состояния ордера после ExecutionReport
const MessageTypeOrderUpdate = "orderUpdate"

// OrderUpdateMessage - сообщение с обновлением ордера
type OrderUpdateMessage struct {
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Order     *models.Order `json:"order"`
}

// Hub управляет активными WebSocket соединениями и broadcast'ом
// обновлений ордеров. Отправка не блокирует поток входящих FIX
// сообщений: медленные клиенты отключаются.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run запускает главный цикл. Должен работать в отдельной горутине.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WS client connected. Total clients: %d", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WS client disconnected. Total clients: %d", total)

		case message := <-h.broadcast:
			// Короткий RLock: копируем список, шлём без блокировки
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var dead []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Буфер клиента переполнен - отключаем
					dead = append(dead, client)
				}
			}
			for _, client := range dead {
				h.unregisterClient(client)
			}
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

// BroadcastOrderUpdate сериализует снимок ордера и рассылает клиентам.
// Не блокирует: при переполненном канале broadcast сообщение отбрасывается.
func (h *Hub) BroadcastOrderUpdate(order *models.Order) {
	msg := OrderUpdateMessage{
		Type:      MessageTypeOrderUpdate,
		Timestamp: time.Now().UTC(),
		Order:     order,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal order update: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Printf("WS broadcast buffer full, dropping order update %s", order.OrderID)
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
