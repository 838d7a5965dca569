// Package presenter builds the read-only review of a graded attempt.
package presenter

import (
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type Item struct {
	QuestionID       string            `json:"question_id"`
	Order            int               `json:"order"`
	Type             quiz.QuestionType `json:"type"`
	PromptHTML       string            `json:"prompt_html,omitempty"`
	Answered         bool              `json:"answered"`
	YourAnswer       string            `json:"your_answer"`
	CorrectAnswer    string            `json:"correct_answer,omitempty"` // only for wrong answers
	Explanation      string            `json:"explanation,omitempty"`
	IsCorrect        *bool             `json:"is_correct"`
	PointsEarned     *int              `json:"points_earned"`
	PointsPossible   int               `json:"points_possible"`
	TimeSpentSeconds int               `json:"time_spent_seconds"`
	Bookmarked       bool              `json:"bookmarked"`
	Feedback         []string          `json:"feedback,omitempty"`
}

type Review struct {
	AttemptID       string      `json:"attempt_id"`
	QuizID          string      `json:"quiz_id"`
	QuizTitle       string      `json:"quiz_title"`
	Status          quiz.Status `json:"status"`
	Score           int         `json:"score"`
	MaxScore        int         `json:"max_score"`
	ScorePercentage int         `json:"score_percentage"`
	Passed          bool        `json:"passed"`
	Medal           quiz.Medal  `json:"medal"`
	PendingManual   int         `json:"pending_manual"`
	Items           []Item      `json:"items"`
}

// Build renders a graded attempt question by question in quiz order.
func Build(qz quiz.Quiz, a quiz.Attempt) (Review, error) {
	if a.Result == nil || !a.Status.Final() {
		return Review{}, &quiz.InvalidStateError{AttemptID: a.ID, Status: a.Status, Op: "review"}
	}
	res := a.Result
	marked := make(map[string]bool, len(a.Bookmarks))
	for _, id := range a.Bookmarks {
		marked[id] = true
	}
	rv := Review{
		AttemptID:       a.ID,
		QuizID:          qz.ID,
		QuizTitle:       qz.Title,
		Status:          a.Status,
		Score:           res.Score,
		MaxScore:        res.MaxScore,
		ScorePercentage: res.ScorePercentage,
		Passed:          res.Passed,
		Medal:           res.Medal,
		PendingManual:   res.PendingManual,
		Items:           make([]Item, 0, len(qz.Questions)),
	}
	for _, q := range qz.Ordered() {
		it := Item{
			QuestionID:     q.ID,
			Order:          q.Order,
			Type:           q.Type,
			PromptHTML:     q.PromptHTML,
			Explanation:    q.Explanation,
			PointsPossible: q.Points,
			Bookmarked:     marked[q.ID],
		}
		if ans, ok := a.Answers[q.ID]; ok {
			it.Answered = true
			it.YourAnswer = Describe(q, ans.Data)
		}
		if r, ok := res.Item(q.ID); ok {
			it.IsCorrect = r.IsCorrect
			it.PointsEarned = r.PointsEarned
			it.TimeSpentSeconds = r.TimeSpentSeconds
			it.Feedback = r.Feedback
		}
		if it.IsCorrect != nil && !*it.IsCorrect {
			it.CorrectAnswer = CorrectAnswer(q)
		}
		rv.Items = append(rv.Items, it)
	}
	return rv, nil
}

// Describe renders an answer payload as text a student recognises.
func Describe(q quiz.Question, d quiz.AnswerData) string {
	switch q.Type {
	case quiz.TypeMultipleChoice:
		if o, ok := q.Option(d.OptionID); ok && o.LabelHTML != "" {
			return o.LabelHTML
		}
		return d.OptionID
	case quiz.TypeTrueFalse:
		if d.Value == nil {
			return ""
		}
		return boolText(*d.Value)
	case quiz.TypeCodeChallenge:
		return d.Code
	default:
		return d.Text
	}
}

// CorrectAnswer is the canonical answer of an auto-graded question; manual
// questions have none.
func CorrectAnswer(q quiz.Question) string {
	switch q.Type {
	case quiz.TypeMultipleChoice:
		if o, ok := q.CorrectOption(); ok {
			if o.LabelHTML != "" {
				return o.LabelHTML
			}
			return o.ID
		}
	case quiz.TypeTrueFalse:
		if q.CorrectAnswer != nil {
			return boolText(*q.CorrectAnswer)
		}
	case quiz.TypeFillBlank:
		if len(q.AcceptableAnswers) > 0 {
			return q.AcceptableAnswers[0]
		}
	}
	return ""
}

func boolText(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
