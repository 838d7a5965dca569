package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/client"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func boolPtr(b bool) *bool { return &b }

func newTaker(t *testing.T, limit int, in io.Reader) (*taker, *syncBuffer) {
	t.Helper()
	store := quiz.NewInMemoryStore()
	err := store.PutQuiz(context.Background(), quiz.Quiz{
		ID:           "geo-1",
		Title:        "Geography",
		TimeLimitSec: limit,
		Questions: []quiz.Question{
			{ID: "q1", Order: 1, Type: quiz.TypeMultipleChoice, Points: 10, Options: []quiz.Option{
				{ID: "A", LabelHTML: "Paris"}, {ID: "B", LabelHTML: "Rome", IsCorrect: true},
			}},
			{ID: "q2", Order: 2, Type: quiz.TypeTrueFalse, Points: 5, CorrectAnswer: boolPtr(true)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	mgr := attempt.NewManager(attempt.ManagerConfig{Store: store, Period: time.Hour})
	t.Cleanup(mgr.Close)
	authSvc := authmw.NewAuthService("test-secret")
	r := chi.NewRouter()
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(authSvc))
		api.Routes(store, mgr)(pr)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	tok, err := authSvc.IssueJWT("amy", "student")
	if err != nil {
		t.Fatal(err)
	}
	out := &syncBuffer{}
	return &taker{
		c:        client.New(client.Config{BaseURL: srv.URL, Token: tok}),
		quizID:   "geo-1",
		user:     "amy",
		stateDir: t.TempDir(),
		in:       in,
		out:      out,
		period:   10 * time.Millisecond,
	}, out
}

func TestTakeAnswersAndSubmits(t *testing.T) {
	tk, out := newTaker(t, 0, strings.NewReader("a B\nn\na yes\na true\nb\nl\ns\n"))
	if err := tk.run(context.Background()); err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	got := out.String()
	for _, want := range []string{"graded: score 15/15", "error: ", "bookmarked: true", "[x] 2. q2 *", "medal supreme"} {
		if !strings.Contains(got, want) {
			t.Errorf("output lacks %q:\n%s", want, got)
		}
	}
}

func TestTakeTimerSubmits(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	tk, out := newTaker(t, 1, pr)

	done := make(chan error, 1)
	go func() { done <- tk.run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timer never submitted:\n%s", out)
	}
	if got := out.String(); !strings.Contains(got, "graded: score 0/15") {
		t.Fatalf("output:\n%s", got)
	}
}

func TestTakeResumesLocalSnapshot(t *testing.T) {
	ctx := context.Background()
	tk, out := newTaker(t, 0, strings.NewReader(""))
	started, err := tk.c.StartAttempt(ctx, "geo-1")
	if err != nil {
		t.Fatal(err)
	}

	// an answer that only ever reached the local snapshot
	st := attempt.NewState(quiz.Attempt{
		ID:     started.AttemptID,
		QuizID: "geo-1",
		UserID: "amy",
		Status: quiz.StatusInProgress,
	}, started.Questions, nil)
	if err := st.RecordAnswer("q1", quiz.AnswerData{OptionID: "B"}); err != nil {
		t.Fatal(err)
	}
	blobs, err := storage.NewFSStore(tk.stateDir)
	if err != nil {
		t.Fatal(err)
	}
	cp := attempt.NewCheckpointer(blobs)
	cp.Save(st)
	if err := cp.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	if err := tk.run(ctx); err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	got := out.String()
	for _, want := range []string{"resuming attempt " + started.AttemptID, "input closed", "graded: score 10/15"} {
		if !strings.Contains(got, want) {
			t.Errorf("output lacks %q:\n%s", want, got)
		}
	}
	if ids, _ := cp.Stored(ctx); len(ids) != 0 {
		t.Errorf("snapshots left after submit: %v", ids)
	}
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		q    quiz.Question
		in   string
		want quiz.AnswerData
	}{
		{quiz.Question{Type: quiz.TypeMultipleChoice}, "B", quiz.AnswerData{OptionID: "B"}},
		{quiz.Question{Type: quiz.TypeTrueFalse}, "maybe", quiz.AnswerData{}},
		{quiz.Question{Type: quiz.TypeFillBlank}, "Paris", quiz.AnswerData{Text: "Paris"}},
		{quiz.Question{Type: quiz.TypeCodeChallenge}, "x := 1", quiz.AnswerData{Code: "x := 1"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.q.Type), func(t *testing.T) {
			if got := parseAnswer(tt.q, tt.in); got != tt.want {
				t.Errorf("parseAnswer(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
	if got := parseAnswer(quiz.Question{Type: quiz.TypeTrueFalse}, "true"); got.Value == nil || !*got.Value {
		t.Errorf("parseAnswer(true) = %+v", got)
	}
}
