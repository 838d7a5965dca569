// Package attempt holds the live state of a student's attempt and the
// lifecycle around it: answering, the countdown, submission and grading.
package attempt

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const snapshotVersion = 1

// Snapshot is the persisted form of a State. It carries everything needed to
// resume the attempt, including the countdown, without the server.
type Snapshot struct {
	Version              int                    `json:"version"`
	QuizID               string                 `json:"quiz_id"`
	AttemptID            string                 `json:"attempt_id"`
	UserID               string                 `json:"user_id"`
	Status               quiz.Status            `json:"status"`
	Questions            []quiz.Question        `json:"questions"`
	Answers              map[string]quiz.Answer `json:"answers"`
	Bookmarks            []string               `json:"bookmarks"`
	TimeSpent            map[string]int         `json:"time_spent_seconds"`
	CurrentQuestionIndex int                    `json:"current_question_index"`
	TimeRemainingSeconds int                    `json:"time_remaining_seconds"`
	HasTimeLimit         bool                   `json:"has_time_limit"`
	SubmitTrigger        quiz.Trigger           `json:"submit_trigger,omitempty"`
	StartedAt            int64                  `json:"started_at"`
	SubmittedAt          int64                  `json:"submitted_at,omitempty"`
	SavedAt              int64                  `json:"saved_at"`
}

// State is one attempt held in memory. All methods are safe for concurrent use;
// none of them perform I/O.
type State struct {
	mu sync.Mutex

	id, quizID, userID string
	status             quiz.Status
	questions          []quiz.Question
	answers            map[string]quiz.Answer
	bookmarks          map[string]struct{}
	timeSpent          map[string]int
	index              int
	remaining          int
	hasLimit           bool
	trigger            quiz.Trigger
	startedAt          int64
	submittedAt        int64

	visitStart time.Time
	now        func() time.Time
}

// NewState builds the live state for a stored attempt. questions must be in
// presentation order.
func NewState(a quiz.Attempt, questions []quiz.Question, now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	s := &State{
		id:          a.ID,
		quizID:      a.QuizID,
		userID:      a.UserID,
		status:      a.Status,
		questions:   questions,
		answers:     make(map[string]quiz.Answer, len(a.Answers)),
		bookmarks:   make(map[string]struct{}, len(a.Bookmarks)),
		timeSpent:   map[string]int{},
		index:       a.CurrentQuestionIndex,
		remaining:   a.TimeRemainingSeconds,
		hasLimit:    a.HasTimeLimit,
		trigger:     a.SubmitTrigger,
		startedAt:   a.StartedAt,
		submittedAt: a.SubmittedAt,
		now:         now,
	}
	if s.status == "" {
		s.status = quiz.StatusInProgress
	}
	// A saved index can outlive a quiz edit that removed questions.
	s.index = min(max(s.index, 0), max(len(questions)-1, 0))
	for id, ans := range a.Answers {
		s.answers[id] = ans
		if ans.TimeSpentSeconds > 0 {
			s.timeSpent[id] = ans.TimeSpentSeconds
		}
	}
	for _, id := range a.Bookmarks {
		s.bookmarks[id] = struct{}{}
	}
	s.visitStart = now()
	return s
}

func (s *State) ID() string     { return s.id }
func (s *State) QuizID() string { return s.quizID }
func (s *State) UserID() string { return s.userID }

func (s *State) Status() quiz.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *State) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

func (s *State) HasTimeLimit() bool { return s.hasLimit }

func (s *State) Trigger() quiz.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trigger
}

// Questions returns the student view of the questions in order.
func (s *State) Questions() []quiz.Question { return s.questions }

func (s *State) question(id string) (quiz.Question, bool) {
	for _, q := range s.questions {
		if q.ID == id {
			return q, true
		}
	}
	return quiz.Question{}, false
}

func (s *State) mutable(op string) error {
	if s.status != quiz.StatusInProgress {
		return &quiz.InvalidStateError{AttemptID: s.id, Status: s.status, Op: op}
	}
	return nil
}

// RecordAnswer stores d as the answer to questionID, replacing any earlier one.
func (s *State) RecordAnswer(questionID string, d quiz.AnswerData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutable("record answer"); err != nil {
		return err
	}
	q, ok := s.question(questionID)
	if !ok {
		return quiz.Invalid("unknown question %s", questionID)
	}
	if err := quiz.CheckAnswer(q, d); err != nil {
		return err
	}
	s.answers[questionID] = quiz.Answer{QuestionID: questionID, Data: d}
	return nil
}

// ToggleBookmark flips the bookmark on questionID and reports the new value.
func (s *State) ToggleBookmark(questionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutable("toggle bookmark"); err != nil {
		return false, err
	}
	if _, ok := s.question(questionID); !ok {
		return false, quiz.Invalid("unknown question %s", questionID)
	}
	if _, on := s.bookmarks[questionID]; on {
		delete(s.bookmarks, questionID)
		return false, nil
	}
	s.bookmarks[questionID] = struct{}{}
	return true, nil
}

// Navigate moves to index and returns the resulting position. An index out of
// range leaves the position unchanged.
func (s *State) Navigate(index int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutable("navigate"); err != nil {
		return s.index, err
	}
	if index < 0 || index >= len(s.questions) || index == s.index {
		return s.index, nil
	}
	s.accrue()
	s.index = index
	return s.index, nil
}

// accrue books the time since the current visit began to the current question.
func (s *State) accrue() {
	now := s.now()
	if s.index >= 0 && s.index < len(s.questions) {
		secs := int(now.Sub(s.visitStart).Round(time.Second) / time.Second)
		if secs > 0 {
			s.timeSpent[s.questions[s.index].ID] += secs
		}
	}
	s.visitStart = now
}

// Tick consumes one second of a timed attempt. It implements countdown.Target.
func (s *State) Tick() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != quiz.StatusInProgress || !s.hasLimit {
		return s.remaining, false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	return s.remaining, true
}

// BeginSubmit freezes the attempt. Answers supplied with the submission are
// merged last-write-wins and must all be valid, otherwise nothing changes.
// It reports whether this call performed the freeze; a repeated submit
// reports false and ignores its answers.
func (s *State) BeginSubmit(answers []quiz.Answer, trigger quiz.Trigger) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != quiz.StatusInProgress {
		return false, nil
	}
	for _, a := range answers {
		q, ok := s.question(a.QuestionID)
		if !ok {
			return false, quiz.Invalid("unknown question %s", a.QuestionID)
		}
		if err := quiz.CheckAnswer(q, a.Data); err != nil {
			return false, err
		}
		if a.TimeSpentSeconds < 0 {
			return false, quiz.Invalid("question %s: negative time spent", a.QuestionID)
		}
	}
	for _, a := range answers {
		s.answers[a.QuestionID] = a
	}
	s.accrue()
	s.status = quiz.StatusSubmitting
	s.trigger = trigger
	s.submittedAt = s.now().Unix()
	return true, nil
}

// Finish records the outcome of a persisted submission.
func (s *State) Finish(res quiz.GradedResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = res.Status()
}

// Attempt renders the state as an attempt record. Time spent per answer is the
// value reported by the client when it sent one, otherwise the tracked time.
func (s *State) Attempt() quiz.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := quiz.Attempt{
		ID:                   s.id,
		QuizID:               s.quizID,
		UserID:               s.userID,
		Status:               s.status,
		Answers:              make(map[string]quiz.Answer, len(s.answers)),
		Bookmarks:            s.bookmarkList(),
		CurrentQuestionIndex: s.index,
		HasTimeLimit:         s.hasLimit,
		TimeRemainingSeconds: s.remaining,
		StartedAt:            s.startedAt,
		SubmittedAt:          s.submittedAt,
		SubmitTrigger:        s.trigger,
	}
	for id, ans := range s.answers {
		if ans.TimeSpentSeconds <= 0 {
			ans.TimeSpentSeconds = s.timeSpent[id]
		}
		a.Answers[id] = ans
	}
	return a
}

func (s *State) bookmarkList() []string {
	out := make([]string, 0, len(s.bookmarks))
	for id := range s.bookmarks {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Version:              snapshotVersion,
		QuizID:               s.quizID,
		AttemptID:            s.id,
		UserID:               s.userID,
		Status:               s.status,
		Questions:            s.questions,
		Answers:              make(map[string]quiz.Answer, len(s.answers)),
		Bookmarks:            s.bookmarkList(),
		TimeSpent:            make(map[string]int, len(s.timeSpent)),
		CurrentQuestionIndex: s.index,
		TimeRemainingSeconds: s.remaining,
		HasTimeLimit:         s.hasLimit,
		SubmitTrigger:        s.trigger,
		StartedAt:            s.startedAt,
		SubmittedAt:          s.submittedAt,
		SavedAt:              s.now().Unix(),
	}
	for k, v := range s.answers {
		snap.Answers[k] = v
	}
	for k, v := range s.timeSpent {
		snap.TimeSpent[k] = v
	}
	return snap
}

func (s *State) Serialize() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// Deserialize rebuilds a State from Serialize output. The countdown resumes
// from the saved remaining time.
func Deserialize(data []byte, now func() time.Time) (*State, error) {
	snap, err := unmarshalSnapshot(data)
	if err != nil {
		return nil, err
	}
	return FromSnapshot(snap, now)
}

func unmarshalSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func FromSnapshot(snap Snapshot, now func() time.Time) (*State, error) {
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot version %d not supported", snap.Version)
	}
	if snap.AttemptID == "" || snap.QuizID == "" {
		return nil, fmt.Errorf("snapshot missing attempt or quiz id")
	}
	if snap.TimeRemainingSeconds < 0 {
		snap.TimeRemainingSeconds = 0
	}
	st := NewState(quiz.Attempt{
		ID:                   snap.AttemptID,
		QuizID:               snap.QuizID,
		UserID:               snap.UserID,
		Status:               snap.Status,
		Answers:              snap.Answers,
		Bookmarks:            snap.Bookmarks,
		CurrentQuestionIndex: snap.CurrentQuestionIndex,
		HasTimeLimit:         snap.HasTimeLimit,
		TimeRemainingSeconds: snap.TimeRemainingSeconds,
		StartedAt:            snap.StartedAt,
		SubmittedAt:          snap.SubmittedAt,
		SubmitTrigger:        snap.SubmitTrigger,
	}, snap.Questions, now)
	st.timeSpent = map[string]int{}
	for k, v := range snap.TimeSpent {
		st.timeSpent[k] = v
	}
	return st, nil
}
