package websockets

import (
	"encoding/json"

	"procwatch/monitoring"
)

// WebSocketMessage wraps everything pushed to clients.
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub tracks connected clients and broadcasts poll snapshots to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run is the hub main loop: client bookkeeping plus snapshot fan-out.
func (h *Hub) Run(snapshotChan <-chan *monitoring.Snapshot) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			monitoring.LogInfo("WebSocket client connected", "clients", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				monitoring.LogInfo("WebSocket client disconnected", "clients", len(h.clients))
			}
		case message := <-h.broadcast:
			h.send(message)
		case snapshot := <-snapshotChan:
			if snapshot == nil {
				continue
			}
			message, err := json.Marshal(WebSocketMessage{Type: "snapshot", Data: snapshot})
			if err != nil {
				monitoring.LogError("Failed to marshal snapshot", "error", err)
				continue
			}
			h.send(message)
		}
	}
}

// send pushes message to every client, dropping clients whose send
// buffer is full.
func (h *Hub) send(message []byte) {
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}
