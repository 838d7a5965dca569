package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

type answerReq struct {
	QuestionID       string          `json:"question_id" validate:"required"`
	AnswerData       quiz.AnswerData `json:"answer_data"`
	TimeSpentSeconds int             `json:"time_spent_seconds" validate:"gte=0"`
}

type submitReq struct {
	Answers []answerReq `json:"answers" validate:"dive"`
}

type recordAnswerReq struct {
	AnswerData quiz.AnswerData `json:"answer_data"`
}

type navigateReq struct {
	Index *int `json:"index" validate:"required"`
}

// caller returns the authenticated subject and whether it may see every attempt.
func caller(r *http.Request) (string, bool) {
	return authmw.SubjectFromContext(r.Context()), rbac.Can(r.Context(), rbac.PermAttemptViewAll)
}

// inQuiz loads the attempt named in the path and checks that it belongs to the
// quiz in the path. A mismatch is reported as not found.
func inQuiz(w http.ResponseWriter, r *http.Request, mgr *attempt.Manager) (quiz.Attempt, bool) {
	sub, viewAll := caller(r)
	attemptID := chi.URLParam(r, "attemptID")
	a, err := mgr.GetAttempt(r.Context(), attemptID, sub, viewAll)
	if err != nil {
		writeError(w, err)
		return quiz.Attempt{}, false
	}
	if a.QuizID != chi.URLParam(r, "quizID") {
		writeError(w, fmt.Errorf("attempt %s in quiz %s: %w", attemptID, chi.URLParam(r, "quizID"), quiz.ErrNotFound))
		return quiz.Attempt{}, false
	}
	return a, true
}

// POST /quizzes/{quizID}/attempts
func StartAttemptHandler(mgr *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, _ := caller(r)
		started, err := mgr.Start(r.Context(), chi.URLParam(r, "quizID"), sub)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, started)
	}
}

// GET /quizzes/{quizID}/attempts/{attemptID}
func GetAttemptHandler(mgr *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := inQuiz(w, r, mgr)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// PUT /quizzes/{quizID}/attempts/{attemptID}/answers/{questionID}
func RecordAnswerHandler(mgr *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordAnswerReq
		if !decode(w, r, &req) {
			return
		}
		if _, ok := inQuiz(w, r, mgr); !ok {
			return
		}
		sub, _ := caller(r)
		err := mgr.RecordAnswer(r.Context(), chi.URLParam(r, "attemptID"), sub, chi.URLParam(r, "questionID"), req.AnswerData)
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /quizzes/{quizID}/attempts/{attemptID}/bookmarks/{questionID}
func ToggleBookmarkHandler(mgr *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := inQuiz(w, r, mgr); !ok {
			return
		}
		sub, _ := caller(r)
		on, err := mgr.ToggleBookmark(r.Context(), chi.URLParam(r, "attemptID"), sub, chi.URLParam(r, "questionID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"bookmarked": on})
	}
}

// POST /quizzes/{quizID}/attempts/{attemptID}/navigate  {"index": 3}
func NavigateHandler(mgr *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req navigateReq
		if !decode(w, r, &req) {
			return
		}
		if _, ok := inQuiz(w, r, mgr); !ok {
			return
		}
		sub, _ := caller(r)
		pos, err := mgr.Navigate(r.Context(), chi.URLParam(r, "attemptID"), sub, *req.Index)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"current_question_index": pos})
	}
}

// POST /quizzes/{quizID}/attempts/{attemptID}/resume
func ResumeHandler(mgr *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := inQuiz(w, r, mgr); !ok {
			return
		}
		sub, _ := caller(r)
		v, err := mgr.Resume(r.Context(), chi.URLParam(r, "attemptID"), sub)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// POST /quizzes/{quizID}/attempts/{attemptID}/submit  {"answers": [...]}
// The body may be empty. Repeated submits return the stored result.
func SubmitAttemptHandler(mgr *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitReq
		if r.ContentLength != 0 {
			body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
				return
			}
			if len(bytes.TrimSpace(body)) > 0 {
				r.Body = io.NopCloser(bytes.NewReader(body))
				if !decode(w, r, &req) {
					return
				}
			}
		}
		if _, ok := inQuiz(w, r, mgr); !ok {
			return
		}
		answers := make([]quiz.Answer, 0, len(req.Answers))
		for _, a := range req.Answers {
			answers = append(answers, quiz.Answer{QuestionID: a.QuestionID, Data: a.AnswerData, TimeSpentSeconds: a.TimeSpentSeconds})
		}
		sub, _ := caller(r)
		res, err := mgr.Submit(r.Context(), chi.URLParam(r, "attemptID"), sub, answers)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /quizzes/{quizID}/attempts/{attemptID}/review
func ReviewHandler(mgr *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := inQuiz(w, r, mgr); !ok {
			return
		}
		sub, viewAll := caller(r)
		rv, err := mgr.Review(r.Context(), chi.URLParam(r, "attemptID"), sub, viewAll)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rv)
	}
}

// GET /attempts?quiz_id=...&user_id=...&status=...&limit=50&offset=0&sort=started_at
// Callers without attempt:view-all only ever see their own attempts.
func ListAttemptsHandler(mgr *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, viewAll := caller(r)
		q := r.URL.Query()
		userID := strings.TrimSpace(q.Get("user_id"))
		if !viewAll {
			userID = sub
		}
		status := quiz.Status(strings.TrimSpace(q.Get("status")))
		switch status {
		case "", quiz.StatusInProgress, quiz.StatusSubmitting, quiz.StatusSubmitted, quiz.StatusGraded:
		default:
			writeError(w, quiz.Invalid("unknown status %q", status))
			return
		}
		list, err := mgr.ListAttempts(r.Context(), quiz.AttemptListOpts{
			QuizID: strings.TrimSpace(q.Get("quiz_id")),
			UserID: userID,
			Status: status,
			Limit:  parseIntDefault(q.Get("limit"), 50),
			Offset: parseIntDefault(q.Get("offset"), 0),
			Sort:   strings.TrimSpace(q.Get("sort")),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
