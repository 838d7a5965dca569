package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type uploadQuizReq struct {
	ID                     string          `json:"id" validate:"required,max=128"`
	Title                  string          `json:"title" validate:"required,max=512"`
	CourseID               string          `json:"course_id"`
	TimeLimitSec           int             `json:"time_limit_sec" validate:"gte=0"`
	PassingScorePercentage int             `json:"passing_score_percentage" validate:"gte=0,lte=100"`
	Questions              []quiz.Question `json:"questions" validate:"required,min=1"`
}

// POST /quizzes
// Authored quizzes are checked for integrity before they are stored, so a
// malformed quiz is rejected here instead of at grading time.
func UploadQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req uploadQuizReq
		if !decode(w, r, &req) {
			return
		}
		qz := quiz.Quiz{
			ID:                     strings.TrimSpace(req.ID),
			Title:                  strings.TrimSpace(req.Title),
			CourseID:               req.CourseID,
			TimeLimitSec:           req.TimeLimitSec,
			PassingScorePercentage: req.PassingScorePercentage,
			Questions:              req.Questions,
			CreatedAt:              time.Now().Unix(),
		}
		for i := range qz.Questions {
			qz.Questions[i].QuizID = qz.ID
		}
		if err := qz.Validate(); err != nil {
			writeError(w, err)
			return
		}
		if err := store.PutQuiz(r.Context(), qz); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"status": "ok", "id": qz.ID, "max_score": qz.MaxScore()})
	}
}

// GET /quizzes/{quizID}
// Callers allowed to author quizzes get the answer key; everyone else the
// student view.
func GetQuizHandler(store quiz.Store, canAuthor func(*http.Request) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qz, err := store.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if !canAuthor(r) {
			qz = qz.Public()
		}
		writeJSON(w, http.StatusOK, qz)
	}
}

// GET /quizzes?q=...&limit=50&offset=0
func ListQuizzesHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListQuizzes(r.Context(), quiz.ListOpts{
			Q:      strings.TrimSpace(r.URL.Query().Get("q")),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
