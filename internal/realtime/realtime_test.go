package realtime_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/realtime"
)

type fakeAttempts map[string]quiz.Attempt

func (f fakeAttempts) GetAttempt(_ context.Context, id, userID string, viewAll bool) (quiz.Attempt, error) {
	a, ok := f[id]
	if !ok {
		return quiz.Attempt{}, fmt.Errorf("attempt %s: %w", id, quiz.ErrNotFound)
	}
	if !viewAll && a.UserID != userID {
		return quiz.Attempt{}, &quiz.ForbiddenError{AttemptID: id, UserID: userID}
	}
	return a, nil
}

func newServer(t *testing.T) (*httptest.Server, *realtime.Hub) {
	t.Helper()
	hub := realtime.NewHub()
	t.Cleanup(hub.Close)
	attempts := fakeAttempts{"att-1": {ID: "att-1", UserID: "stu", Status: quiz.StatusInProgress, TimeRemainingSeconds: 90}}
	h := realtime.NewHandler(hub, attempts, func(r *http.Request) (string, bool) {
		return r.URL.Query().Get("user"), false
	}, nil)
	r := chi.NewRouter()
	r.Get("/ws/attempts/{attemptID}", h.Watch)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func readMessage(t *testing.T, c *websocket.Conn) realtime.Message {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m realtime.Message
	if err := c.ReadJSON(&m); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return m
}

func TestWatchStreamsTicks(t *testing.T) {
	srv, hub := newServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/attempts/att-1?user=stu"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	first := readMessage(t, c)
	if first.Type != "state" {
		t.Fatalf("first message = %s, want state", first.Type)
	}
	var a quiz.Attempt
	if err := json.Unmarshal(first.Payload, &a); err != nil || a.TimeRemainingSeconds != 90 {
		t.Fatalf("state payload = %s (%v)", first.Payload, err)
	}

	hub.Broadcast("att-2", "tick", map[string]int{"time_remaining_seconds": 5})
	hub.Broadcast("att-1", "tick", map[string]int{"time_remaining_seconds": 89})
	got := readMessage(t, c)
	if got.Type != "tick" || string(got.Payload) != `{"time_remaining_seconds":89}` {
		t.Fatalf("message = %s %s", got.Type, got.Payload)
	}
}

func TestWatchChecksAccess(t *testing.T) {
	srv, _ := newServer(t)
	tests := []struct {
		query string
		want  int
	}{
		{"/ws/attempts/att-1", http.StatusUnauthorized},
		{"/ws/attempts/att-1?user=other", http.StatusForbidden},
		{"/ws/attempts/missing?user=stu", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(srv.URL, "http") + tt.query
			_, resp, err := websocket.DefaultDialer.Dial(url, nil)
			if err == nil {
				t.Fatalf("Dial() succeeded, want %d", tt.want)
			}
			if resp == nil || resp.StatusCode != tt.want {
				t.Fatalf("status = %v, want %d", resp, tt.want)
			}
		})
	}
}
