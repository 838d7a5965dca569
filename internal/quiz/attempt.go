package quiz

import "strings"

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitting Status = "submitting" // frozen, grading not yet persisted
	StatusSubmitted  Status = "submitted"  // graded except for manual questions
	StatusGraded     Status = "graded"
)

// Final reports whether the attempt already has a persisted result.
func (s Status) Final() bool { return s == StatusSubmitted || s == StatusGraded }

// Trigger records what caused a submission.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerTimer  Trigger = "timer"
)

// AnswerData is the type-specific payload of an answer. Exactly the field that
// matches the question type is meaningful.
type AnswerData struct {
	OptionID string `json:"option_id,omitempty"` // multiple_choice
	Value    *bool  `json:"value,omitempty"`     // true_false
	Text     string `json:"text,omitempty"`      // fill_blank, essay
	Code     string `json:"code,omitempty"`      // code_challenge
	Language string `json:"language,omitempty"`
}

// CheckAnswer verifies that d is a well-formed payload for q.
func CheckAnswer(q Question, d AnswerData) error {
	switch q.Type {
	case TypeMultipleChoice:
		if d.OptionID == "" {
			return Invalid("question %s: option_id required", q.ID)
		}
		if _, ok := q.Option(d.OptionID); !ok {
			return Invalid("question %s: unknown option %q", q.ID, d.OptionID)
		}
	case TypeTrueFalse:
		if d.Value == nil {
			return Invalid("question %s: value required", q.ID)
		}
	case TypeFillBlank, TypeEssay:
		if strings.TrimSpace(d.Text) == "" {
			return Invalid("question %s: text required", q.ID)
		}
	case TypeCodeChallenge:
		if strings.TrimSpace(d.Code) == "" {
			return Invalid("question %s: code required", q.ID)
		}
	default:
		return Invalid("question %s: unknown type %q", q.ID, q.Type)
	}
	return nil
}

type Answer struct {
	QuestionID       string     `json:"question_id"`
	Data             AnswerData `json:"answer_data"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
}

type Attempt struct {
	ID                   string            `json:"id"`
	QuizID               string            `json:"quiz_id"`
	UserID               string            `json:"user_id"`
	Status               Status            `json:"status"`
	Answers              map[string]Answer `json:"answers"`
	Bookmarks            []string          `json:"bookmarked_questions"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	HasTimeLimit         bool              `json:"has_time_limit"`
	TimeRemainingSeconds int               `json:"time_remaining_seconds"`
	StartedAt            int64             `json:"started_at"`
	SubmittedAt          int64             `json:"submitted_at,omitempty"`
	GradedAt             int64             `json:"graded_at,omitempty"`
	SubmitTrigger        Trigger           `json:"submit_trigger,omitempty"`
	Result               *GradedResult     `json:"result,omitempty"`
}

// Owner reports whether userID owns the attempt.
func (a Attempt) Owner(userID string) bool { return a.UserID == userID }

type Medal string

const (
	MedalNone    Medal = "none"
	MedalBronze  Medal = "bronze"
	MedalSilver  Medal = "silver"
	MedalGold    Medal = "gold"
	MedalSupreme Medal = "supreme"
)

// ItemResult is the grading outcome of one question. IsCorrect and PointsEarned
// stay nil until a manual question has been graded.
type ItemResult struct {
	QuestionID       string       `json:"question_id"`
	Type             QuestionType `json:"type"`
	IsCorrect        *bool        `json:"is_correct"`
	PointsEarned     *int         `json:"points_earned"`
	PointsPossible   int          `json:"points_possible"`
	TimeSpentSeconds int          `json:"time_spent_seconds"`
	GradedBy         string       `json:"graded_by,omitempty"`
	Feedback         []string     `json:"feedback,omitempty"`
}

func (r ItemResult) Pending() bool { return r.PointsEarned == nil }

type GradedResult struct {
	AttemptID       string       `json:"attempt_id"`
	QuizID          string       `json:"quiz_id"`
	UserID          string       `json:"user_id"`
	Items           []ItemResult `json:"items"`
	Score           int          `json:"score"`
	MaxScore        int          `json:"max_score"`
	ScorePercentage int          `json:"score_percentage"`
	Passed          bool         `json:"passed"`
	Medal           Medal        `json:"medal"`
	PendingManual   int          `json:"pending_manual"`
	Trigger         Trigger      `json:"trigger,omitempty"`
	GradedAt        int64        `json:"graded_at"`
}

// Item returns the result row for a question.
func (g *GradedResult) Item(questionID string) (*ItemResult, bool) {
	for i := range g.Items {
		if g.Items[i].QuestionID == questionID {
			return &g.Items[i], true
		}
	}
	return nil, false
}

// Status is the attempt status this result implies.
func (g GradedResult) Status() Status {
	if g.PendingManual > 0 {
		return StatusSubmitted
	}
	return StatusGraded
}
