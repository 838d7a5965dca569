package grading_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

var fixedNow = func() time.Time { return time.Unix(1_700_000_000, 0) }

func mcTF() quiz.Quiz {
	return quiz.Quiz{
		ID:                     "qz",
		PassingScorePercentage: 70,
		Questions: []quiz.Question{
			{ID: "mc", Order: 1, Type: quiz.TypeMultipleChoice, Points: 10, Options: []quiz.Option{
				{ID: "A"}, {ID: "B", IsCorrect: true}, {ID: "C"},
			}},
			{ID: "tf", Order: 2, Type: quiz.TypeTrueFalse, Points: 5, CorrectAnswer: boolPtr(true)},
		},
	}
}

func attemptWith(answers map[string]quiz.AnswerData) quiz.Attempt {
	a := quiz.Attempt{ID: "att", UserID: "u", Answers: map[string]quiz.Answer{}}
	for id, d := range answers {
		a.Answers[id] = quiz.Answer{QuestionID: id, Data: d}
	}
	return a
}

func TestGradeWorkedExamples(t *testing.T) {
	tests := []struct {
		name       string
		answers    map[string]quiz.AnswerData
		wantScore  int
		wantPct    int
		wantPassed bool
		wantMedal  quiz.Medal
	}{
		{
			name:      "all correct",
			answers:   map[string]quiz.AnswerData{"mc": {OptionID: "B"}, "tf": {Value: boolPtr(true)}},
			wantScore: 15, wantPct: 100, wantPassed: true, wantMedal: quiz.MedalSupreme,
		},
		{
			name:      "all wrong",
			answers:   map[string]quiz.AnswerData{"mc": {OptionID: "A"}, "tf": {Value: boolPtr(false)}},
			wantScore: 0, wantPct: 0, wantPassed: false, wantMedal: quiz.MedalNone,
		},
		{
			name:      "only mc",
			answers:   map[string]quiz.AnswerData{"mc": {OptionID: "B"}},
			wantScore: 10, wantPct: 67, wantPassed: false, wantMedal: quiz.MedalNone,
		},
		{
			name:      "unanswered",
			answers:   nil,
			wantScore: 0, wantPct: 0, wantPassed: false, wantMedal: quiz.MedalNone,
		},
	}
	e := grading.NewEngine(grading.WithClock(fixedNow))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Grade(context.Background(), mcTF(), attemptWith(tt.answers))
			if err != nil {
				t.Fatalf("Grade() error = %v", err)
			}
			if res.Score != tt.wantScore || res.MaxScore != 15 {
				t.Fatalf("score = %d/%d, want %d/15", res.Score, res.MaxScore, tt.wantScore)
			}
			if res.ScorePercentage != tt.wantPct {
				t.Errorf("ScorePercentage = %d, want %d", res.ScorePercentage, tt.wantPct)
			}
			if res.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v", res.Passed, tt.wantPassed)
			}
			if res.Medal != tt.wantMedal {
				t.Errorf("Medal = %q, want %q", res.Medal, tt.wantMedal)
			}
			if res.Status() != quiz.StatusGraded {
				t.Errorf("Status() = %q, want graded", res.Status())
			}
		})
	}
}

func TestGradeIsDeterministic(t *testing.T) {
	e := grading.NewEngine(grading.WithClock(fixedNow))
	a := attemptWith(map[string]quiz.AnswerData{"mc": {OptionID: "C"}, "tf": {Value: boolPtr(true)}})
	first, err := e.Grade(context.Background(), mcTF(), a)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Grade(context.Background(), mcTF(), a)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Grade() not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestMedalFor(t *testing.T) {
	tests := []struct {
		pct  int
		want quiz.Medal
	}{
		{100, quiz.MedalSupreme},
		{99, quiz.MedalGold},
		{90, quiz.MedalGold},
		{89, quiz.MedalSilver},
		{80, quiz.MedalSilver},
		{79, quiz.MedalBronze},
		{70, quiz.MedalBronze},
		{69, quiz.MedalNone},
		{0, quiz.MedalNone},
	}
	for _, tt := range tests {
		if got := grading.MedalFor(tt.pct); got != tt.want {
			t.Errorf("MedalFor(%d) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}

func TestPercentageRounds(t *testing.T) {
	tests := []struct{ score, max, want int }{
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13}, // 12.5 rounds up
		{15, 15, 100},
	}
	for _, tt := range tests {
		if got := grading.Percentage(tt.score, tt.max); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %d, want %d", tt.score, tt.max, got, tt.want)
		}
	}
}

func TestGradeRejectsMalformedQuiz(t *testing.T) {
	qz := mcTF()
	qz.Questions[0].Options[0].IsCorrect = true // two correct options
	_, err := grading.NewEngine().Grade(context.Background(), qz, attemptWith(nil))
	if !errors.Is(err, quiz.ErrDataIntegrity) {
		t.Fatalf("Grade() error = %v, want ErrDataIntegrity", err)
	}
}

func TestFillBlank(t *testing.T) {
	qz := quiz.Quiz{ID: "fb", Questions: []quiz.Question{
		{ID: "f", Type: quiz.TypeFillBlank, Points: 3, AcceptableAnswers: []string{"Mitochondria", "the mitochondrion"}},
	}}
	tests := []struct {
		text string
		want int
	}{
		{"mitochondria", 3},
		{"  MITOCHONDRIA. ", 3},
		{"The   Mitochondrion", 3},
		{"ｍｉｔｏｃｈｏｎｄｒｉａ", 3}, // full-width folds under NFKC
		{"mitochondira", 0},
		{"...", 0},
		{"", 0},
	}
	e := grading.NewEngine()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res, err := e.Grade(context.Background(), qz, attemptWith(map[string]quiz.AnswerData{"f": {Text: tt.text}}))
			if err != nil {
				t.Fatal(err)
			}
			if res.Score != tt.want {
				t.Fatalf("score for %q = %d, want %d", tt.text, res.Score, tt.want)
			}
		})
	}
}

func TestFillBlankRejectsKeyThatNormalizesAway(t *testing.T) {
	qz := quiz.Quiz{ID: "fb2", Questions: []quiz.Question{
		{ID: "f", Type: quiz.TypeFillBlank, Points: 3, AcceptableAnswers: []string{"?!"}},
	}}
	_, err := grading.NewEngine().Grade(context.Background(), qz, attemptWith(map[string]quiz.AnswerData{"f": {Text: "..."}}))
	if !errors.Is(err, quiz.ErrDataIntegrity) {
		t.Fatalf("Grade() = %v, want ErrDataIntegrity", err)
	}
}

func essayQuiz() quiz.Quiz {
	return quiz.Quiz{
		ID:                     "mixed",
		PassingScorePercentage: 50,
		Questions: []quiz.Question{
			{ID: "tf", Order: 1, Type: quiz.TypeTrueFalse, Points: 4, CorrectAnswer: boolPtr(false)},
			{ID: "es", Order: 2, Type: quiz.TypeEssay, Points: 6, Rubric: &quiz.Rubric{
				Max: 6,
				Criteria: []quiz.Criterion{
					{Key: "thesis", MaxPoints: 3},
					{Key: "evidence", MaxPoints: 3},
				},
			}},
			{ID: "cc", Order: 3, Type: quiz.TypeCodeChallenge, Points: 10},
		},
	}
}

func TestManualQuestionsStayPending(t *testing.T) {
	e := grading.NewEngine(grading.WithClock(fixedNow))
	res, err := e.Grade(context.Background(), essayQuiz(), attemptWith(map[string]quiz.AnswerData{
		"tf": {Value: boolPtr(false)},
		"es": {Text: "an essay"},
		"cc": {Code: "print(1)", Language: "python"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.PendingManual != 2 {
		t.Fatalf("PendingManual = %d, want 2", res.PendingManual)
	}
	for _, id := range []string{"es", "cc"} {
		it, _ := res.Item(id)
		if it.IsCorrect != nil || it.PointsEarned != nil {
			t.Fatalf("item %s = %+v, want nil correctness and points", id, it)
		}
	}
	if res.Score != 4 || res.MaxScore != 20 || res.ScorePercentage != 20 {
		t.Fatalf("provisional = %d/%d (%d%%), want 4/20 (20%%)", res.Score, res.MaxScore, res.ScorePercentage)
	}
	if res.Status() != quiz.StatusSubmitted {
		t.Fatalf("Status() = %q, want submitted", res.Status())
	}
}

func TestBlankManualAnswersStayPending(t *testing.T) {
	e := grading.NewEngine(grading.WithClock(fixedNow))
	res, err := e.Grade(context.Background(), essayQuiz(), attemptWith(map[string]quiz.AnswerData{
		"tf": {Value: boolPtr(false)},
		"cc": {Code: "   "},
	}))
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"es", "cc"} {
		it, _ := res.Item(id)
		if it.IsCorrect != nil || it.PointsEarned != nil || it.GradedBy != "" {
			t.Fatalf("item %s = %+v, want it left for manual grading", id, it)
		}
	}
	if res.PendingManual != 2 || res.Status() != quiz.StatusSubmitted {
		t.Fatalf("pending = %d, status = %q, want 2, submitted", res.PendingManual, res.Status())
	}
}

func TestApplyManualGrade(t *testing.T) {
	e := grading.NewEngine(grading.WithClock(fixedNow))
	qz := essayQuiz()
	res, err := e.Grade(context.Background(), qz, attemptWith(map[string]quiz.AnswerData{
		"tf": {Value: boolPtr(false)},
		"es": {Text: "an essay"},
		"cc": {Code: "print(1)"},
	}))
	if err != nil {
		t.Fatal(err)
	}

	after, err := e.ApplyManualGrade(qz, res, "cc", grading.ManualGrade{PointsEarned: intPtr(10)}, "teacher-1")
	if err != nil {
		t.Fatalf("ApplyManualGrade(cc) error = %v", err)
	}
	if after.Score != 14 || after.PendingManual != 1 {
		t.Fatalf("after cc = %d pending %d, want 14 pending 1", after.Score, after.PendingManual)
	}
	if res.PendingManual != 2 {
		t.Fatalf("input result mutated")
	}

	after, err = e.ApplyManualGrade(qz, after, "es", grading.ManualGrade{
		Criteria: map[string]float64{"thesis": 3, "evidence": 1.6},
		Feedback: "cite more sources",
	}, "teacher-1")
	if err != nil {
		t.Fatalf("ApplyManualGrade(es) error = %v", err)
	}
	it, _ := after.Item("es")
	if *it.PointsEarned != 5 || *it.IsCorrect {
		t.Fatalf("essay item = %d correct=%v, want 5 false", *it.PointsEarned, *it.IsCorrect)
	}
	if after.Score != 19 || after.ScorePercentage != 95 || after.Medal != quiz.MedalGold {
		t.Fatalf("final = %d %d%% %s, want 19 95%% gold", after.Score, after.ScorePercentage, after.Medal)
	}
	if after.Status() != quiz.StatusGraded {
		t.Fatalf("Status() = %q, want graded", after.Status())
	}

	// corrections after grading are recomputed too
	corrected, err := e.ApplyManualGrade(qz, after, "cc", grading.ManualGrade{PointsEarned: intPtr(0)}, "teacher-2")
	if err != nil {
		t.Fatal(err)
	}
	if corrected.Score != 9 || corrected.Status() != quiz.StatusGraded {
		t.Fatalf("corrected = %d %s, want 9 graded", corrected.Score, corrected.Status())
	}
}

func TestApplyManualGradeRejects(t *testing.T) {
	e := grading.NewEngine()
	qz := essayQuiz()
	res, err := e.Grade(context.Background(), qz, attemptWith(map[string]quiz.AnswerData{"es": {Text: "x"}, "cc": {Code: "y"}}))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		qid     string
		g       grading.ManualGrade
		wantErr error
	}{
		{"auto question", "tf", grading.ManualGrade{PointsEarned: intPtr(4)}, quiz.ErrValidation},
		{"too many points", "cc", grading.ManualGrade{PointsEarned: intPtr(11)}, quiz.ErrValidation},
		{"negative points", "cc", grading.ManualGrade{PointsEarned: intPtr(-1)}, quiz.ErrValidation},
		{"no points", "cc", grading.ManualGrade{}, quiz.ErrValidation},
		{"unknown criterion", "es", grading.ManualGrade{Criteria: map[string]float64{"style": 1}}, quiz.ErrValidation},
		{"unknown question", "zz", grading.ManualGrade{PointsEarned: intPtr(1)}, quiz.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ApplyManualGrade(qz, res, tt.qid, tt.g, "t")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ApplyManualGrade() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
