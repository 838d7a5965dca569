package quiz

import "sort"

type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeTrueFalse      QuestionType = "true_false"
	TypeFillBlank      QuestionType = "fill_blank"
	TypeEssay          QuestionType = "essay"
	TypeCodeChallenge  QuestionType = "code_challenge"
)

// Manual reports whether answers of this type are graded by a person.
func (t QuestionType) Manual() bool {
	return t == TypeEssay || t == TypeCodeChallenge
}

func (t QuestionType) Known() bool {
	switch t {
	case TypeMultipleChoice, TypeTrueFalse, TypeFillBlank, TypeEssay, TypeCodeChallenge:
		return true
	}
	return false
}

type Option struct {
	ID        string `json:"id"`
	LabelHTML string `json:"label_html"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

type Criterion struct {
	Key       string  `json:"key"`
	Desc      string  `json:"desc"`
	MaxPoints float64 `json:"max_points"`
}

type Rubric struct {
	Criteria []Criterion `json:"criteria"`
	Max      float64     `json:"max_points"`
}

type Question struct {
	ID         string       `json:"id"`
	QuizID     string       `json:"quiz_id,omitempty"`
	Order      int          `json:"order"`
	Type       QuestionType `json:"type"`
	PromptHTML string       `json:"prompt_html,omitempty"`
	Points     int          `json:"points"`
	Difficulty string       `json:"difficulty,omitempty"`

	Options           []Option `json:"options,omitempty"`            // multiple_choice
	CorrectAnswer     *bool    `json:"correct_answer,omitempty"`     // true_false
	AcceptableAnswers []string `json:"acceptable_answers,omitempty"` // fill_blank
	Rubric            *Rubric  `json:"rubric,omitempty"`             // essay, code_challenge
	Explanation       string   `json:"explanation,omitempty"`
}

// Option returns the option with the given id.
func (q Question) Option(id string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// CorrectOption returns the first option flagged correct.
func (q Question) CorrectOption() (Option, bool) {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o, true
		}
	}
	return Option{}, false
}

// Public strips everything a student must not see while answering.
func (q Question) Public() Question {
	out := q
	out.CorrectAnswer = nil
	out.AcceptableAnswers = nil
	out.Explanation = ""
	out.Rubric = nil
	if len(q.Options) > 0 {
		out.Options = make([]Option, len(q.Options))
		for i, o := range q.Options {
			out.Options[i] = Option{ID: o.ID, LabelHTML: o.LabelHTML}
		}
	}
	return out
}

type Quiz struct {
	ID                     string     `json:"id"`
	Title                  string     `json:"title"`
	CourseID               string     `json:"course_id,omitempty"`
	TimeLimitSec           int        `json:"time_limit_sec"`
	PassingScorePercentage int        `json:"passing_score_percentage"`
	Questions              []Question `json:"questions"`

	CreatedAt int64 `json:"created_at,omitempty"`
}

func (qz Quiz) HasTimeLimit() bool { return qz.TimeLimitSec > 0 }

// MaxScore is the sum of all question points.
func (qz Quiz) MaxScore() int {
	total := 0
	for _, q := range qz.Questions {
		total += q.Points
	}
	return total
}

// Ordered returns the questions sorted by Order, stable on input position.
func (qz Quiz) Ordered() []Question {
	out := make([]Question, len(qz.Questions))
	copy(out, qz.Questions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Question looks up a question by id.
func (qz Quiz) Question(id string) (Question, bool) {
	for _, q := range qz.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Public returns the quiz as served to students: ordered, without answer data.
func (qz Quiz) Public() Quiz {
	out := qz
	ordered := qz.Ordered()
	out.Questions = make([]Question, len(ordered))
	for i, q := range ordered {
		out.Questions[i] = q.Public()
	}
	return out
}
