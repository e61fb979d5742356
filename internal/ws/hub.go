package ws

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/campus-complaints-backend/internal/logger"
	"github.com/ignatzorin/campus-complaints-backend/internal/metrics"
)

// Hub управляет всеми WebSocket клиентами ленты.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]*Client
	byCampus   map[string]map[uuid.UUID]struct{}
	register   chan *Client
	unregister chan *Client
	ctx        context.Context
}

// NewHub создаёт новый хаб.
func NewHub(ctx context.Context) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		byCampus:   make(map[string]map[uuid.UUID]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
	}
}

// Run запускает главный цикл хаба. При отмене контекста все клиенты закрываются.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Count число подключённых клиентов.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CampusCount число клиентов, смотрящих ленту кампуса.
func (h *Hub) CampusCount(campusID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byCampus[campusID])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.id]; ok {
		return
	}
	h.clients[client.id] = client
	if _, ok := h.byCampus[client.campusID]; !ok {
		h.byCampus[client.campusID] = make(map[uuid.UUID]struct{})
	}
	h.byCampus[client.campusID][client.id] = struct{}{}
	metrics.ClientConnected()
	logger.ForCampus(client.campusID).WithField("client_id", client.id).Debug("ws: клиент подключён")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.id]; !ok {
		return
	}
	delete(h.clients, client.id)
	if ids, ok := h.byCampus[client.campusID]; ok {
		delete(ids, client.id)
		if len(ids) == 0 {
			delete(h.byCampus, client.campusID)
		}
	}
	metrics.ClientDisconnected()
	logger.ForCampus(client.campusID).WithField("client_id", client.id).Debug("ws: клиент отключён")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, id)
		metrics.ClientDisconnected()
	}
	h.byCampus = make(map[string]map[uuid.UUID]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
