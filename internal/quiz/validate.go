package quiz

import "strconv"

// Validate checks that the quiz can be graded. Any problem is a DataIntegrityError;
// a malformed quiz must never be scored as zero.
func (qz Quiz) Validate() error {
	bad := func(qid, reason string) error {
		return &DataIntegrityError{QuizID: qz.ID, QuestionID: qid, Reason: reason}
	}
	if len(qz.Questions) == 0 {
		return bad("", "quiz has no questions")
	}
	if qz.PassingScorePercentage < 0 || qz.PassingScorePercentage > 100 {
		return bad("", "passing score percentage out of range")
	}
	if qz.TimeLimitSec < 0 {
		return bad("", "negative time limit")
	}
	seen := make(map[string]struct{}, len(qz.Questions))
	for _, q := range qz.Questions {
		if q.ID == "" {
			return bad("", "question without id")
		}
		if _, dup := seen[q.ID]; dup {
			return bad(q.ID, "duplicate question id")
		}
		seen[q.ID] = struct{}{}
		if q.Points <= 0 {
			return bad(q.ID, "points must be positive")
		}
		switch q.Type {
		case TypeMultipleChoice:
			correct := 0
			ids := make(map[string]struct{}, len(q.Options))
			for _, o := range q.Options {
				if o.ID == "" {
					return bad(q.ID, "option without id")
				}
				if _, dup := ids[o.ID]; dup {
					return bad(q.ID, "duplicate option id "+o.ID)
				}
				ids[o.ID] = struct{}{}
				if o.IsCorrect {
					correct++
				}
			}
			if correct != 1 {
				return bad(q.ID, "multiple choice needs exactly one correct option")
			}
		case TypeTrueFalse:
			if q.CorrectAnswer == nil {
				return bad(q.ID, "true/false without correct answer")
			}
		case TypeFillBlank:
			if len(q.AcceptableAnswers) == 0 {
				return bad(q.ID, "fill in the blank without acceptable answers")
			}
			for _, k := range q.AcceptableAnswers {
				if NormalizeText(k) == "" {
					return bad(q.ID, "acceptable answer "+strconv.Quote(k)+" is empty after normalization")
				}
			}
		case TypeEssay, TypeCodeChallenge:
		default:
			return bad(q.ID, "unknown question type "+string(q.Type))
		}
	}
	if qz.MaxScore() == 0 {
		return bad("", "max score is zero")
	}
	return nil
}
