package grading

import (
	"context"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

func full(q quiz.Question) Result {
	ok, pts := true, q.Points
	return Result{IsCorrect: &ok, PointsEarned: &pts}
}

func zero(feedback ...string) Result {
	ok, pts := false, 0
	return Result{IsCorrect: &ok, PointsEarned: &pts, Feedback: feedback}
}

type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Grade(_ context.Context, q quiz.Question, a *quiz.Answer) (Result, error) {
	if a == nil || a.Data.OptionID == "" {
		return zero("no answer"), nil
	}
	correct, ok := q.CorrectOption()
	if !ok {
		return Result{}, &quiz.DataIntegrityError{QuizID: q.QuizID, QuestionID: q.ID, Reason: "no correct option"}
	}
	if a.Data.OptionID == correct.ID {
		return full(q), nil
	}
	return zero(), nil
}

type trueFalseStrategy struct{}

func (trueFalseStrategy) Grade(_ context.Context, q quiz.Question, a *quiz.Answer) (Result, error) {
	if a == nil || a.Data.Value == nil {
		return zero("no answer"), nil
	}
	if q.CorrectAnswer == nil {
		return Result{}, &quiz.DataIntegrityError{QuizID: q.QuizID, QuestionID: q.ID, Reason: "no correct answer"}
	}
	if *a.Data.Value == *q.CorrectAnswer {
		return full(q), nil
	}
	return zero(), nil
}

type fillBlankStrategy struct{ normalize func(string) string }

func (s fillBlankStrategy) Grade(_ context.Context, q quiz.Question, a *quiz.Answer) (Result, error) {
	if a == nil || strings.TrimSpace(a.Data.Text) == "" {
		return zero("no answer"), nil
	}
	got := s.normalize(a.Data.Text)
	if got == "" {
		return zero("no answer"), nil
	}
	for _, k := range q.AcceptableAnswers {
		key := s.normalize(k)
		if key == "" {
			return Result{}, &quiz.DataIntegrityError{QuizID: q.QuizID, QuestionID: q.ID, Reason: "acceptable answer is empty after normalization"}
		}
		if key == got {
			return full(q), nil
		}
	}
	return zero(), nil
}

// manualStrategy leaves essay and code answers for a person, blank ones
// included.
type manualStrategy struct{}

func (manualStrategy) Grade(context.Context, quiz.Question, *quiz.Answer) (Result, error) {
	return Result{NeedsManual: true, Feedback: []string{"manual grading required"}}, nil
}
