package grading

import (
	"fmt"
	"math"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// ScoreRubric converts per-criterion awards into whole points for a question
// worth limit points. Each award is clamped to its criterion range, the sum is
// capped at the rubric maximum and at limit. Awards for criteria the rubric
// does not define are rejected.
func ScoreRubric(r quiz.Rubric, awarded map[string]float64, limit int) (int, []string, error) {
	known := make(map[string]quiz.Criterion, len(r.Criteria))
	for _, c := range r.Criteria {
		known[c.Key] = c
	}
	for k := range awarded {
		if _, ok := known[k]; !ok {
			return 0, nil, quiz.Invalid("unknown rubric criterion %q", k)
		}
	}

	total := 0.0
	notes := make([]string, 0, len(r.Criteria))
	for _, c := range r.Criteria {
		v := math.Min(math.Max(awarded[c.Key], 0), c.MaxPoints)
		total += v
		notes = append(notes, fmt.Sprintf("%s:%.2f/%.2f", c.Key, v, c.MaxPoints))
	}
	if r.Max > 0 {
		total = math.Min(total, r.Max)
	}
	points := int(math.Round(total))
	if points > limit {
		points = limit
	}
	return points, notes, nil
}
