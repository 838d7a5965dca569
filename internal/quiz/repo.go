package quiz

import "context"

type ListOpts struct {
	Q      string
	Limit  int
	Offset int
}

type AttemptListOpts struct {
	QuizID string // filter by quiz
	UserID string // filter by student
	Status Status // optional
	Limit  int
	Offset int
	Sort   string // started_at|submitted_at, default started_at desc
}

type QuizSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	CourseID      string `json:"course_id,omitempty"`
	TimeLimitSec  int    `json:"time_limit_sec"`
	QuestionCount int    `json:"question_count"`
	MaxScore      int    `json:"max_score"`
	CreatedAt     int64  `json:"created_at"`
}

func summarize(qz Quiz) QuizSummary {
	return QuizSummary{
		ID:            qz.ID,
		Title:         qz.Title,
		CourseID:      qz.CourseID,
		TimeLimitSec:  qz.TimeLimitSec,
		QuestionCount: len(qz.Questions),
		MaxScore:      qz.MaxScore(),
		CreatedAt:     qz.CreatedAt,
	}
}

// Store persists quizzes and attempt records. An attempt is "active" while its
// status is in_progress or submitting; at most one active attempt may exist per
// (quiz, user).
type Store interface {
	PutQuiz(ctx context.Context, qz Quiz) error
	GetQuiz(ctx context.Context, id string) (Quiz, error) // full quiz, including answer data
	ListQuizzes(ctx context.Context, opts ListOpts) ([]QuizSummary, error)

	CreateAttempt(ctx context.Context, a Attempt) error // *ConflictError when an active attempt exists
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	FindActiveAttempt(ctx context.Context, quizID, userID string) (Attempt, error)
	SaveAttempt(ctx context.Context, a Attempt) error
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
}

func active(s Status) bool { return s == StatusInProgress || s == StatusSubmitting }
