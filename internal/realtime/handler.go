package realtime

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// AttemptReader loads an attempt on behalf of a user. viewAll lets graders
// watch attempts they do not own.
type AttemptReader interface {
	GetAttempt(ctx context.Context, attemptID, userID string, viewAll bool) (quiz.Attempt, error)
}

// Identify returns the caller of a request and whether it may view any attempt.
type Identify func(r *http.Request) (userID string, viewAll bool)

type Handler struct {
	hub      *Hub
	attempts AttemptReader
	identify Identify
	upgrader websocket.Upgrader
}

// NewHandler builds the socket endpoint. checkOrigin may be nil to accept
// every origin.
func NewHandler(hub *Hub, attempts AttemptReader, identify Identify, checkOrigin func(*http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		hub:      hub,
		attempts: attempts,
		identify: identify,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Watch handles GET /ws/attempts/{attemptID}. The first message is the
// current attempt ("state"); ticks and the final result follow.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	userID, viewAll := h.identify(r)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	a, err := h.attempts.GetAttempt(r.Context(), attemptID, userID, viewAll)
	switch {
	case errors.Is(err, quiz.ErrNotFound):
		http.Error(w, "attempt not found", http.StatusNotFound)
		return
	case errors.Is(err, quiz.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	initial, err := Encode("state", a)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	conn := &Connection{AttemptID: attemptID, UserID: userID, Send: make(chan []byte, 64)}
	h.hub.Register(conn)
	select {
	case conn.Send <- initial:
	default:
	}

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := wsConn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket %s: %v", conn.AttemptID, err)
			}
			return
		}
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wsConn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
