// Package realtime streams live attempt updates, such as the countdown, to
// the browsers watching an attempt.
package realtime

import (
	"encoding/json"
	"log"
	"sync"
)

// Message is the envelope written to the socket.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Connection is one subscribed socket.
type Connection struct {
	AttemptID string
	UserID    string
	Send      chan []byte
}

type outbound struct {
	attemptID string
	data      []byte
}

// Hub fans messages out to the connections of each attempt. It implements
// attempt.Broadcaster.
type Hub struct {
	conns map[string]map[*Connection]struct{} // attemptID -> connections
	mu    sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan outbound
	done       chan struct{}
	closeOnce  sync.Once
}

func NewHub() *Hub {
	h := &Hub{
		conns:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, set := range h.conns {
				for c := range set {
					close(c.Send)
				}
				delete(h.conns, id)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.conns[c.AttemptID] == nil {
				h.conns[c.AttemptID] = make(map[*Connection]struct{})
			}
			h.conns[c.AttemptID][c] = struct{}{}
			h.mu.Unlock()
			log.Printf("watcher %s connected to attempt %s", c.UserID, c.AttemptID)

		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.conns[c.AttemptID]; ok {
				if _, ok := set[c]; ok {
					delete(set, c)
					close(c.Send)
					if len(set) == 0 {
						delete(h.conns, c.AttemptID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.conns[msg.attemptID] {
				select {
				case c.Send <- msg.data:
				default:
					// slow reader, drop
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(c *Connection) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.Send)
	}
}

func (h *Hub) Unregister(c *Connection) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Watchers returns the number of sockets subscribed to attemptID.
func (h *Hub) Watchers(attemptID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[attemptID])
}

// Broadcast queues a message for every watcher of attemptID. It never blocks;
// messages are dropped when the queue is full.
func (h *Hub) Broadcast(attemptID, msgType string, payload any) {
	data, err := Encode(msgType, payload)
	if err != nil {
		log.Printf("broadcast %s to %s: %v", msgType, attemptID, err)
		return
	}
	select {
	case h.broadcast <- outbound{attemptID: attemptID, data: data}:
	case <-h.done:
	default:
		log.Printf("broadcast queue full, dropping %s for %s", msgType, attemptID)
	}
}

// Close disconnects every watcher and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func Encode(msgType string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Payload: body})
}
