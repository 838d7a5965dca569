package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/events"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const quizJSON = `{
  "id": "geo-1",
  "title": "Geography",
  "passing_score_percentage": 60,
  "questions": [
    {"id": "q1", "order": 1, "type": "multiple_choice", "points": 10,
     "options": [{"id": "A", "label_html": "Paris"}, {"id": "B", "label_html": "Rome", "is_correct": true}]},
    {"id": "q2", "order": 2, "type": "true_false", "points": 5, "correct_answer": true},
    {"id": "q3", "order": 3, "type": "essay", "points": 5}
  ]
}`

type harness struct {
	t      *testing.T
	router http.Handler
	tokens map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := quiz.NewInMemoryStore()
	mgr := attempt.NewManager(attempt.ManagerConfig{Store: store, Engine: grading.NewEngine(), Period: time.Hour})
	t.Cleanup(mgr.Close)
	authSvc := authmw.NewAuthService("test-secret")

	r := chi.NewRouter()
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(authSvc))
		api.Routes(store, mgr)(pr)
	})

	h := &harness{t: t, router: r, tokens: map[string]string{}}
	for sub, role := range map[string]string{"amy": "student", "bob": "student", "tess": "teacher"} {
		tok, err := authSvc.IssueJWT(sub, role)
		if err != nil {
			t.Fatal(err)
		}
		h.tokens[sub] = tok
	}
	return h
}

func (h *harness) do(method, path, who, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.tokens[who])
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) expect(rec *httptest.ResponseRecorder, status int) {
	h.t.Helper()
	if rec.Code != status {
		h.t.Fatalf("status = %d, want %d; body %s", rec.Code, status, rec.Body.String())
	}
}

func (h *harness) start() string {
	h.t.Helper()
	h.expect(h.do(http.MethodPost, "/quizzes", "tess", quizJSON), http.StatusCreated)
	rec := h.do(http.MethodPost, "/quizzes/geo-1/attempts", "amy", "")
	h.expect(rec, http.StatusCreated)
	var out struct {
		AttemptID        string          `json:"attempt_id"`
		Questions        []quiz.Question `json:"questions"`
		TimeLimitSeconds *int            `json:"time_limit_seconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		h.t.Fatal(err)
	}
	if out.AttemptID == "" || len(out.Questions) != 3 || out.TimeLimitSeconds != nil {
		h.t.Fatalf("start response = %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "is_correct") || strings.Contains(rec.Body.String(), "correct_answer") {
		h.t.Fatalf("start response leaks the answer key: %s", rec.Body.String())
	}
	return out.AttemptID
}

func TestUploadQuiz(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name, who, body string
		status          int
	}{
		{"student may not author", "amy", quizJSON, http.StatusForbidden},
		{"missing title", "tess", `{"id":"x","questions":[{"id":"q","type":"essay","points":1}]}`, http.StatusBadRequest},
		{"two correct options", "tess", `{"id":"x","title":"X","questions":[{"id":"q","type":"multiple_choice","points":1,
			"options":[{"id":"A","is_correct":true},{"id":"B","is_correct":true}]}]}`, http.StatusUnprocessableEntity},
		{"zero points", "tess", `{"id":"x","title":"X","questions":[{"id":"q","type":"essay","points":0}]}`, http.StatusUnprocessableEntity},
		{"ok", "tess", quizJSON, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.expect(h.do(http.MethodPost, "/quizzes", tt.who, tt.body), tt.status)
		})
	}

	student := h.do(http.MethodGet, "/quizzes/geo-1", "amy", "")
	h.expect(student, http.StatusOK)
	if strings.Contains(student.Body.String(), "is_correct") {
		t.Fatalf("student quiz view leaks the answer key")
	}
	teacher := h.do(http.MethodGet, "/quizzes/geo-1", "tess", "")
	if !strings.Contains(teacher.Body.String(), "is_correct") {
		t.Fatalf("author view lacks the answer key")
	}
}

func TestAttemptFlow(t *testing.T) {
	h := newHarness(t)
	id := h.start()
	base := "/quizzes/geo-1/attempts/" + id

	dup := h.do(http.MethodPost, "/quizzes/geo-1/attempts", "amy", "")
	h.expect(dup, http.StatusConflict)
	if !strings.Contains(dup.Body.String(), id) {
		t.Fatalf("conflict body = %s, want the active attempt id", dup.Body.String())
	}

	h.expect(h.do(http.MethodPut, base+"/answers/q1", "amy", `{"answer_data":{"option_id":"B"}}`), http.StatusNoContent)
	h.expect(h.do(http.MethodPut, base+"/answers/q1", "amy", `{"answer_data":{"option_id":"Z"}}`), http.StatusBadRequest)
	h.expect(h.do(http.MethodPut, base+"/answers/q1", "bob", `{"answer_data":{"option_id":"A"}}`), http.StatusForbidden)
	h.expect(h.do(http.MethodGet, "/quizzes/other/attempts/"+id, "amy", ""), http.StatusNotFound)
	h.expect(h.do(http.MethodPost, base+"/navigate", "amy", `{}`), http.StatusBadRequest)

	nav := h.do(http.MethodPost, base+"/navigate", "amy", `{"index":2}`)
	h.expect(nav, http.StatusOK)
	if strings.TrimSpace(nav.Body.String()) != `{"current_question_index":2}` {
		t.Fatalf("navigate = %s", nav.Body.String())
	}
	bm := h.do(http.MethodPost, base+"/bookmarks/q3", "amy", "")
	h.expect(bm, http.StatusOK)
	if strings.TrimSpace(bm.Body.String()) != `{"bookmarked":true}` {
		t.Fatalf("bookmark = %s", bm.Body.String())
	}
	h.expect(h.do(http.MethodPost, base+"/resume", "amy", ""), http.StatusOK)
	h.expect(h.do(http.MethodGet, base+"/review", "amy", ""), http.StatusConflict)

	submit := `{"answers":[{"question_id":"q2","answer_data":{"value":true},"time_spent_seconds":4},
		{"question_id":"q3","answer_data":{"text":"Rivers shape valleys."}}]}`
	first := h.do(http.MethodPost, base+"/submit", "amy", submit)
	h.expect(first, http.StatusOK)
	var res quiz.GradedResult
	if err := json.Unmarshal(first.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Score != 15 || res.MaxScore != 20 || res.PendingManual != 1 {
		t.Fatalf("result = %+v", res)
	}
	again := h.do(http.MethodPost, base+"/submit", "amy", "")
	h.expect(again, http.StatusOK)
	if again.Body.String() != first.Body.String() {
		t.Fatalf("repeat submit differs:\n%s\n%s", first.Body.String(), again.Body.String())
	}
	h.expect(h.do(http.MethodPut, base+"/answers/q1", "amy", `{"answer_data":{"option_id":"A"}}`), http.StatusConflict)

	// manual grading
	grade := "/attempts/" + id + "/answers/q3/grade"
	h.expect(h.do(http.MethodPost, grade, "amy", `{"points_earned":5}`), http.StatusForbidden)
	h.expect(h.do(http.MethodPost, grade, "tess", `{"points_earned":-1}`), http.StatusBadRequest)
	h.expect(h.do(http.MethodPost, grade, "tess", `{"points_earned":9}`), http.StatusBadRequest)
	graded := h.do(http.MethodPost, grade, "tess", `{"points_earned":4,"feedback":"Good."}`)
	h.expect(graded, http.StatusOK)
	if err := json.Unmarshal(graded.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Score != 19 || res.ScorePercentage != 95 || res.Medal != quiz.MedalGold {
		t.Fatalf("graded = %+v", res)
	}

	got := h.do(http.MethodGet, base, "amy", "")
	h.expect(got, http.StatusOK)
	var a quiz.Attempt
	if err := json.Unmarshal(got.Body.Bytes(), &a); err != nil {
		t.Fatal(err)
	}
	if a.Status != quiz.StatusGraded || a.Answers["q2"].TimeSpentSeconds != 4 {
		t.Fatalf("attempt = %s, q2 time %d", a.Status, a.Answers["q2"].TimeSpentSeconds)
	}
	h.expect(h.do(http.MethodGet, base, "tess", ""), http.StatusOK)
	h.expect(h.do(http.MethodGet, base, "bob", ""), http.StatusForbidden)

	rv := h.do(http.MethodGet, base+"/review", "amy", "")
	h.expect(rv, http.StatusOK)
	if !strings.Contains(rv.Body.String(), `"your_answer":"Rome"`) {
		t.Fatalf("review = %s", rv.Body.String())
	}
}

func TestListAttemptsIsScoped(t *testing.T) {
	h := newHarness(t)
	id := h.start()
	h.expect(h.do(http.MethodPost, "/quizzes/geo-1/attempts", "bob", ""), http.StatusCreated)

	var list []quiz.Attempt
	rec := h.do(http.MethodGet, "/attempts?user_id=bob", "amy", "")
	h.expect(rec, http.StatusOK)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("student list = %+v, want only amy's attempt", list)
	}

	rec = h.do(http.MethodGet, "/attempts?quiz_id=geo-1", "tess", "")
	h.expect(rec, http.StatusOK)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("teacher list = %d attempts, want 2", len(list))
	}
	h.expect(h.do(http.MethodGet, "/attempts?status=bogus", "tess", ""), http.StatusBadRequest)
}

type fakeFeed struct {
	after int64
	limit int
}

func (f *fakeFeed) Since(_ context.Context, after int64, limit int) ([]events.Logged, error) {
	f.after, f.limit = after, limit
	if after > 0 {
		return nil, nil
	}
	ev, err := events.New(events.AttemptStarted, "att-1", map[string]string{"quiz_id": "geo-1"})
	return []events.Logged{{Offset: 1, Event: ev}}, err
}

func TestEventsHandler(t *testing.T) {
	tests := []struct {
		query     string
		wantAfter int64
		wantLimit int
		wantBody  string
	}{
		{"", 0, 100, `"offset":1`},
		{"?after=7&limit=5000", 7, 1000, `[]`},
		{"?after=x&limit=3", 0, 3, `"type":"attempt.started"`},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			feed := &fakeFeed{}
			rec := httptest.NewRecorder()
			api.EventsHandler(feed)(rec, httptest.NewRequest(http.MethodGet, "/events"+tt.query, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if feed.after != tt.wantAfter || feed.limit != tt.wantLimit {
				t.Errorf("Since(%d, %d), want (%d, %d)", feed.after, feed.limit, tt.wantAfter, tt.wantLimit)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}
