package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/fadilmartias/pte-practice/internal/session"
)

// Hub fans session messages out to the websocket connections watching each
// session.
type Hub struct {
	// session ID -> connections
	conns map[string]map[*Connection]struct{}
	mu    sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *broadcastMessage
	quit       chan struct{}
	closeOnce  sync.Once
}

// Connection is one websocket client of a session.
type Connection struct {
	SessionID string
	Send      chan []byte
}

type broadcastMessage struct {
	sessionID string
	data      []byte
}

func NewHub() *Hub {
	h := &Hub{
		conns:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *broadcastMessage, 256),
		quit:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.SessionID] == nil {
				h.conns[conn.SessionID] = make(map[*Connection]struct{})
			}
			h.conns[conn.SessionID][conn] = struct{}{}
			h.mu.Unlock()
			log.Printf("Client connected to session %s", conn.SessionID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.conns[conn.SessionID]; ok {
				if _, ok := set[conn]; ok {
					delete(set, conn)
					close(conn.Send)
					if len(set) == 0 {
						delete(h.conns, conn.SessionID)
					}
					log.Printf("Client disconnected from session %s", conn.SessionID)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.conns[msg.sessionID] {
				select {
				case conn.Send <- msg.data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()

		case <-h.quit:
			h.mu.Lock()
			for _, set := range h.conns {
				for conn := range set {
					close(conn.Send)
				}
			}
			h.conns = make(map[string]map[*Connection]struct{})
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.quit:
		close(conn.Send)
	}
}

func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.quit:
	}
}

// Notify queues msg for every client of sessionID. It never blocks the
// caller; messages are dropped when the hub is saturated.
func (h *Hub) Notify(sessionID string, msg session.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to encode %s message for session %s: %v", msg.Type, sessionID, err)
		return
	}
	if (msg.Type == session.MsgCaptureStart || msg.Type == session.MsgCaptureStop) && h.Clients(sessionID) == 0 {
		log.Printf("No client watching session %s, %s has no engine to drive", sessionID, msg.Type)
	}
	select {
	case h.broadcast <- &broadcastMessage{sessionID: sessionID, data: data}:
	default:
		log.Printf("Hub saturated, dropping %s message for session %s", msg.Type, sessionID)
	}
}

// Clients returns the number of connections watching sessionID.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[sessionID])
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}
