package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// Routes mounts the quiz and attempt API. The router must already put the
// caller's subject and role in the request context.
func Routes(store quiz.Store, mgr *attempt.Manager) func(chi.Router) {
	canAuthor := func(r *http.Request) bool { return rbac.Can(r.Context(), rbac.PermQuizCreate) }
	viewer := rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)

	return func(pr chi.Router) {
		pr.With(rbac.Require(rbac.PermQuizCreate)).
			Post("/quizzes", UploadQuizHandler(store))
		pr.With(rbac.Require(rbac.PermQuizView)).
			Get("/quizzes", ListQuizzesHandler(store))
		pr.With(rbac.Require(rbac.PermQuizView)).
			Get("/quizzes/{quizID}", GetQuizHandler(store, canAuthor))

		// Student flow
		pr.Route("/quizzes/{quizID}/attempts", func(ar chi.Router) {
			ar.With(rbac.Require(rbac.PermAttemptStart)).
				Post("/", StartAttemptHandler(mgr))
			ar.With(viewer).
				Get("/{attemptID}", GetAttemptHandler(mgr))
			ar.With(rbac.Require(rbac.PermAttemptAnswer)).
				Put("/{attemptID}/answers/{questionID}", RecordAnswerHandler(mgr))
			ar.With(rbac.Require(rbac.PermAttemptAnswer)).
				Post("/{attemptID}/bookmarks/{questionID}", ToggleBookmarkHandler(mgr))
			ar.With(rbac.Require(rbac.PermAttemptAnswer)).
				Post("/{attemptID}/navigate", NavigateHandler(mgr))
			ar.With(rbac.Require(rbac.PermAttemptAnswer)).
				Post("/{attemptID}/resume", ResumeHandler(mgr))
			ar.With(rbac.Require(rbac.PermAttemptSubmit)).
				Post("/{attemptID}/submit", SubmitAttemptHandler(mgr))
			ar.With(viewer).
				Get("/{attemptID}/review", ReviewHandler(mgr))
		})

		pr.With(viewer).
			Get("/attempts", ListAttemptsHandler(mgr))
		pr.With(rbac.Require(rbac.PermAttemptGrade)).
			Post("/attempts/{attemptID}/answers/{questionID}/grade", GradeAnswerHandler(mgr))
	}
}
