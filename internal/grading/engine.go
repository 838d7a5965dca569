package grading

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// Result is the outcome of grading a single question response.
type Result struct {
	IsCorrect    *bool // nil while a manual grade is pending
	PointsEarned *int  // nil while a manual grade is pending
	NeedsManual  bool
	Feedback     []string
}

// Strategy grades a single question. a is nil when the question was not answered.
type Strategy interface {
	Grade(ctx context.Context, q quiz.Question, a *quiz.Answer) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q quiz.Question, a *quiz.Answer) (Result, error)
}

type defaultGrader struct {
	strategies map[quiz.QuestionType]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q quiz.Question, a *quiz.Answer) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{NeedsManual: true, Feedback: []string{"no strategy available"}}, nil
	}
	return s.Grade(ctx, q, a)
}

// Engine options

type Option func(*config)

type config struct {
	Normalize  func(string) string
	Now        func() time.Time
	Strategies map[quiz.QuestionType]Strategy
}

// WithNormalizer replaces the fill_blank text normalization policy.
func WithNormalizer(fn func(string) string) Option { return func(c *config) { c.Normalize = fn } }

func WithClock(now func() time.Time) Option { return func(c *config) { c.Now = now } }

// WithStrategy overrides the strategy for one question type.
func WithStrategy(t quiz.QuestionType, s Strategy) Option {
	return func(c *config) { c.Strategies[t] = s }
}

// Engine turns a frozen attempt into a GradedResult and applies manual grades.
type Engine struct {
	grader Grader
	now    func() time.Time
}

// NewEngine installs built-in strategies.
func NewEngine(opts ...Option) *Engine {
	cfg := &config{
		Normalize:  quiz.NormalizeText,
		Now:        time.Now,
		Strategies: map[quiz.QuestionType]Strategy{},
	}
	for _, o := range opts {
		o(cfg)
	}
	strategies := map[quiz.QuestionType]Strategy{
		quiz.TypeMultipleChoice: multipleChoiceStrategy{},
		quiz.TypeTrueFalse:      trueFalseStrategy{},
		quiz.TypeFillBlank:      fillBlankStrategy{normalize: cfg.Normalize},
		quiz.TypeEssay:          manualStrategy{},
		quiz.TypeCodeChallenge:  manualStrategy{},
	}
	for t, s := range cfg.Strategies {
		strategies[t] = s
	}
	return &Engine{grader: &defaultGrader{strategies: strategies}, now: cfg.Now}
}

// Grade scores every question of qz against the answers in a. The quiz is
// validated first; a malformed quiz yields a DataIntegrityError and no result.
func (e *Engine) Grade(ctx context.Context, qz quiz.Quiz, a quiz.Attempt) (quiz.GradedResult, error) {
	if err := qz.Validate(); err != nil {
		return quiz.GradedResult{}, err
	}
	res := quiz.GradedResult{
		AttemptID: a.ID,
		QuizID:    qz.ID,
		UserID:    a.UserID,
		Trigger:   a.SubmitTrigger,
		Items:     make([]quiz.ItemResult, 0, len(qz.Questions)),
	}
	for _, q := range qz.Ordered() {
		var ans *quiz.Answer
		if v, ok := a.Answers[q.ID]; ok {
			ans = &v
		}
		r, err := e.grader.Grade(ctx, q, ans)
		if err != nil {
			return quiz.GradedResult{}, fmt.Errorf("grade question %s: %w", q.ID, err)
		}
		item := quiz.ItemResult{
			QuestionID:     q.ID,
			Type:           q.Type,
			IsCorrect:      r.IsCorrect,
			PointsEarned:   r.PointsEarned,
			PointsPossible: q.Points,
			Feedback:       r.Feedback,
		}
		if r.NeedsManual {
			item.IsCorrect, item.PointsEarned = nil, nil
		} else {
			item.GradedBy = "auto"
		}
		if ans != nil {
			item.TimeSpentSeconds = ans.TimeSpentSeconds
		}
		res.Items = append(res.Items, item)
	}
	if err := recompute(&res, qz); err != nil {
		return quiz.GradedResult{}, err
	}
	res.GradedAt = e.now().Unix()
	return res, nil
}

// ManualGrade is a grader's verdict on one essay or code_challenge answer.
// When Criteria is set and the question carries a rubric, the rubric decides
// the points and PointsEarned is ignored.
type ManualGrade struct {
	PointsEarned *int               `json:"points_earned"`
	IsCorrect    *bool              `json:"is_correct,omitempty"`
	Criteria     map[string]float64 `json:"criteria,omitempty"`
	Feedback     string             `json:"feedback,omitempty"`
}

// ApplyManualGrade records g for questionID and recomputes the aggregate.
// The input result is not modified.
func (e *Engine) ApplyManualGrade(qz quiz.Quiz, res quiz.GradedResult, questionID string, g ManualGrade, gradedBy string) (quiz.GradedResult, error) {
	q, ok := qz.Question(questionID)
	if !ok {
		return quiz.GradedResult{}, fmt.Errorf("question %s: %w", questionID, quiz.ErrNotFound)
	}
	if !q.Type.Manual() {
		return quiz.GradedResult{}, quiz.Invalid("question %s is %s and is graded automatically", q.ID, q.Type)
	}

	var points int
	var notes []string
	switch {
	case len(g.Criteria) > 0 && q.Rubric != nil:
		pts, fb, err := ScoreRubric(*q.Rubric, g.Criteria, q.Points)
		if err != nil {
			return quiz.GradedResult{}, err
		}
		points, notes = pts, fb
	case g.PointsEarned != nil:
		points = *g.PointsEarned
		if points < 0 || points > q.Points {
			return quiz.GradedResult{}, quiz.Invalid("points %d outside [0, %d] for question %s", points, q.Points, q.ID)
		}
	default:
		return quiz.GradedResult{}, quiz.Invalid("points_earned or rubric criteria required")
	}
	correct := points == q.Points
	if g.IsCorrect != nil {
		correct = *g.IsCorrect
	}
	if fb := strings.TrimSpace(g.Feedback); fb != "" {
		notes = append(notes, fb)
	}

	out := res
	out.Items = append([]quiz.ItemResult(nil), res.Items...)
	item, ok := out.Item(questionID)
	if !ok {
		return quiz.GradedResult{}, fmt.Errorf("result item %s: %w", questionID, quiz.ErrNotFound)
	}
	item.PointsEarned = &points
	item.IsCorrect = &correct
	item.GradedBy = gradedBy
	item.Feedback = notes
	if err := recompute(&out, qz); err != nil {
		return quiz.GradedResult{}, err
	}
	out.GradedAt = e.now().Unix()
	return out, nil
}

// recompute derives the aggregate fields from the item rows.
func recompute(res *quiz.GradedResult, qz quiz.Quiz) error {
	score, max, pending := 0, 0, 0
	for _, it := range res.Items {
		max += it.PointsPossible
		if it.PointsEarned == nil {
			pending++
			continue
		}
		score += *it.PointsEarned
	}
	if max == 0 {
		return &quiz.DataIntegrityError{QuizID: qz.ID, Reason: "max score is zero"}
	}
	res.Score = score
	res.MaxScore = max
	res.PendingManual = pending
	res.ScorePercentage = Percentage(score, max)
	res.Passed = res.ScorePercentage >= qz.PassingScorePercentage
	res.Medal = MedalFor(res.ScorePercentage)
	return nil
}

// Percentage is round(100*score/max), half away from zero.
func Percentage(score, max int) int {
	return int(math.Round(100 * float64(score) / float64(max)))
}

// MedalFor maps a score percentage to its medal tier.
func MedalFor(pct int) quiz.Medal {
	switch {
	case pct >= 100:
		return quiz.MedalSupreme
	case pct >= 90:
		return quiz.MedalGold
	case pct >= 80:
		return quiz.MedalSilver
	case pct >= 70:
		return quiz.MedalBronze
	default:
		return quiz.MedalNone
	}
}
