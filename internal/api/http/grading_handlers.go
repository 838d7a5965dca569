package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

type gradeAnswerReq struct {
	PointsEarned *int               `json:"points_earned" validate:"omitempty,gte=0"`
	IsCorrect    *bool              `json:"is_correct"`
	Criteria     map[string]float64 `json:"criteria" validate:"omitempty,dive,keys,required,endkeys,gte=0"`
	Feedback     string             `json:"feedback" validate:"max=4000"`
}

// POST /attempts/{attemptID}/answers/{questionID}/grade
func GradeAnswerHandler(mgr *attempt.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gradeAnswerReq
		if !decode(w, r, &req) {
			return
		}
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		questionID := strings.TrimSpace(chi.URLParam(r, "questionID"))
		sub, _ := caller(r)
		res, err := mgr.GradeAnswer(r.Context(), attemptID, questionID, grading.ManualGrade{
			PointsEarned: req.PointsEarned,
			IsCorrect:    req.IsCorrect,
			Criteria:     req.Criteria,
			Feedback:     req.Feedback,
		}, sub)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
