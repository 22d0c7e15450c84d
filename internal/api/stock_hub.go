package api

import (
	"context"
	"encoding/json"
	"sync"

	"hotelstock/server/internal/config"
	"hotelstock/server/internal/services"

	"github.com/gorilla/websocket"
)

type hubMessage struct {
	hotelID string
	data    []byte
}

// StockHub рассылает события склада WebSocket-клиентам их отеля
type StockHub struct {
	clients   map[*websocket.Conn]string // conn -> hotel_id
	broadcast chan hubMessage
	mutex     sync.RWMutex
}

// NewStockHub создает хаб с буферизованным каналом рассылки
func NewStockHub() *StockHub {
	return &StockHub{
		clients:   make(map[*websocket.Conn]string),
		broadcast: make(chan hubMessage, 256),
	}
}

// Run обрабатывает очередь рассылки до отмены ctx
func (h *StockHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			var failed []*websocket.Conn
			h.mutex.RLock()
			for client, hotelID := range h.clients {
				if hotelID != msg.hotelID {
					continue
				}
				if err := client.WriteMessage(websocket.TextMessage, msg.data); err != nil {
					failed = append(failed, client)
				}
			}
			h.mutex.RUnlock()
			for _, client := range failed {
				h.RemoveClient(client)
			}
		}
	}
}

// AddClient добавляет клиента отеля
func (h *StockHub) AddClient(conn *websocket.Conn, hotelID string) {
	h.mutex.Lock()
	h.clients[conn] = hotelID
	h.mutex.Unlock()
}

// RemoveClient удаляет и закрывает клиента
func (h *StockHub) RemoveClient(conn *websocket.Conn) {
	h.mutex.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mutex.Unlock()
}

func (h *StockHub) closeAll() {
	h.mutex.Lock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	h.mutex.Unlock()
}

// GetClientsCount возвращает количество подключенных клиентов
func (h *StockHub) GetClientsCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Publish ставит событие в очередь рассылки. Переполненная очередь не блокирует запись
func (h *StockHub) Publish(ctx context.Context, event services.StockEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- hubMessage{hotelID: event.HotelID, data: data}:
	default:
		config.GetLogger().WithField("type", event.Type).Warn("Очередь WebSocket переполнена, событие пропущено")
	}
	return nil
}
