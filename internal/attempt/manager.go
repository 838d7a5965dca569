package attempt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/events"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/presenter"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

var ErrClosed = errors.New("attempt manager closed")

// Broadcaster pushes live updates to the clients watching an attempt.
type Broadcaster interface {
	Broadcast(attemptID, msgType string, payload any)
}

type ManagerConfig struct {
	Store        quiz.Store
	Engine       *grading.Engine
	Checkpointer *Checkpointer    // nil keeps progress in memory only
	Events       events.Publisher // optional
	Live         Broadcaster      // optional
	Period       time.Duration
	Retry        Backoff
	Now          func() time.Time
}

// Manager owns the live sessions of all attempts in progress on this node.
// Submitted attempts live only in the store.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex // guards sessions and closed; never held while calling into a Session
	sessions map[string]*Session
	closed   bool

	gradeMu sync.Mutex // serializes manual grading
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Engine == nil {
		cfg.Engine = grading.NewEngine()
	}
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg, sessions: map[string]*Session{}}
}

// Started is the response to starting an attempt. TimeLimitSeconds is nil for
// untimed quizzes.
type Started struct {
	Attempt          quiz.Attempt    `json:"-"`
	AttemptID        string          `json:"attempt_id"`
	Questions        []quiz.Question `json:"questions"`
	TimeLimitSeconds *int            `json:"time_limit_seconds"`
}

// View is an attempt together with the student view of its questions.
type View struct {
	quiz.Attempt
	Questions []quiz.Question `json:"questions,omitempty"`
}

// Start opens a new attempt of quizID for userID. A *quiz.ConflictError is
// returned while the user still has an unsubmitted attempt of the quiz.
func (m *Manager) Start(ctx context.Context, quizID, userID string) (Started, error) {
	qz, err := m.cfg.Store.GetQuiz(ctx, quizID)
	if err != nil {
		return Started{}, err
	}
	if err := qz.Validate(); err != nil {
		return Started{}, err
	}
	existing, err := m.cfg.Store.FindActiveAttempt(ctx, quizID, userID)
	switch {
	case err == nil:
		return Started{}, &quiz.ConflictError{QuizID: quizID, UserID: userID, AttemptID: existing.ID}
	case !errors.Is(err, quiz.ErrNotFound):
		return Started{}, err
	}

	a := quiz.Attempt{
		ID:                   uuid.NewString(),
		QuizID:               quizID,
		UserID:               userID,
		Status:               quiz.StatusInProgress,
		Answers:              map[string]quiz.Answer{},
		Bookmarks:            []string{},
		HasTimeLimit:         qz.HasTimeLimit(),
		TimeRemainingSeconds: qz.TimeLimitSec,
		StartedAt:            m.cfg.Now().Unix(),
	}
	if err := m.cfg.Store.CreateAttempt(ctx, a); err != nil {
		return Started{}, err
	}
	questions := qz.Public().Questions
	sess, err := m.attach(NewState(a, questions, m.cfg.Now))
	if err != nil {
		return Started{}, err
	}
	sess.Touch()

	metrics.AttemptsStarted.Inc()
	m.publish(ctx, events.AttemptStarted, a.ID, map[string]any{
		"quiz_id": quizID, "user_id": userID, "time_limit_seconds": qz.TimeLimitSec,
	})
	out := Started{Attempt: a, AttemptID: a.ID, Questions: questions}
	if qz.HasTimeLimit() {
		limit := qz.TimeLimitSec
		out.TimeLimitSeconds = &limit
	}
	return out, nil
}

func (m *Manager) RecordAnswer(ctx context.Context, attemptID, userID, questionID string, d quiz.AnswerData) error {
	sess, a, err := m.open(ctx, attemptID, userID, false)
	if err != nil {
		return err
	}
	if sess == nil {
		return &quiz.InvalidStateError{AttemptID: attemptID, Status: a.Status, Op: "record answer"}
	}
	if err := sess.State().RecordAnswer(questionID, d); err != nil {
		return err
	}
	sess.Touch()
	return nil
}

func (m *Manager) ToggleBookmark(ctx context.Context, attemptID, userID, questionID string) (bool, error) {
	sess, a, err := m.open(ctx, attemptID, userID, false)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, &quiz.InvalidStateError{AttemptID: attemptID, Status: a.Status, Op: "toggle bookmark"}
	}
	on, err := sess.State().ToggleBookmark(questionID)
	if err != nil {
		return false, err
	}
	sess.Touch()
	return on, nil
}

// Navigate moves the attempt to index and returns the resulting position.
func (m *Manager) Navigate(ctx context.Context, attemptID, userID string, index int) (int, error) {
	sess, a, err := m.open(ctx, attemptID, userID, false)
	if err != nil {
		return 0, err
	}
	if sess == nil {
		return a.CurrentQuestionIndex, &quiz.InvalidStateError{AttemptID: attemptID, Status: a.Status, Op: "navigate"}
	}
	pos, err := sess.State().Navigate(index)
	if err != nil {
		return pos, err
	}
	sess.Touch()
	return pos, nil
}

// Resume re-attaches to an attempt in progress, restoring it from its snapshot
// when this node does not hold it.
func (m *Manager) Resume(ctx context.Context, attemptID, userID string) (View, error) {
	sess, a, err := m.open(ctx, attemptID, userID, false)
	if err != nil {
		return View{}, err
	}
	if sess == nil {
		return View{}, &quiz.InvalidStateError{AttemptID: attemptID, Status: a.Status, Op: "resume"}
	}
	st := sess.State()
	return View{Attempt: st.Attempt(), Questions: st.Questions()}, nil
}

// GetAttempt returns the current record of an attempt. viewAll lets graders
// read attempts they do not own.
func (m *Manager) GetAttempt(ctx context.Context, attemptID, userID string, viewAll bool) (quiz.Attempt, error) {
	sess, a, err := m.open(ctx, attemptID, userID, viewAll)
	if err != nil {
		return quiz.Attempt{}, err
	}
	if sess != nil {
		return sess.State().Attempt(), nil
	}
	return a, nil
}

// Submit freezes and grades the attempt. Repeated calls return the stored
// result unchanged and ignore their answers.
func (m *Manager) Submit(ctx context.Context, attemptID, userID string, answers []quiz.Answer) (quiz.GradedResult, error) {
	sess, a, err := m.open(ctx, attemptID, userID, false)
	if err != nil {
		return quiz.GradedResult{}, err
	}
	if sess == nil {
		if a.Result == nil {
			return quiz.GradedResult{}, &quiz.DataIntegrityError{QuizID: a.QuizID, Reason: "attempt " + a.ID + " is " + string(a.Status) + " without a result"}
		}
		return *a.Result, nil
	}
	res, err := sess.Submit(ctx, answers, quiz.TriggerManual)
	if err != nil {
		if !errors.Is(err, quiz.ErrValidation) && !errors.Is(err, quiz.ErrDataIntegrity) {
			metrics.SubmitRetries.WithLabelValues(string(quiz.TriggerManual)).Inc()
			sess.Retry()
		}
		return quiz.GradedResult{}, err
	}
	return res, nil
}

// GradeAnswer records a grader's verdict on a manual question of a submitted
// attempt and returns the recomputed result.
func (m *Manager) GradeAnswer(ctx context.Context, attemptID, questionID string, g grading.ManualGrade, graderID string) (quiz.GradedResult, error) {
	m.gradeMu.Lock()
	defer m.gradeMu.Unlock()

	a, err := m.cfg.Store.GetAttempt(ctx, attemptID)
	if err != nil {
		return quiz.GradedResult{}, err
	}
	if !a.Status.Final() || a.Result == nil {
		return quiz.GradedResult{}, &quiz.InvalidStateError{AttemptID: attemptID, Status: a.Status, Op: "grade answer"}
	}
	qz, err := m.cfg.Store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return quiz.GradedResult{}, err
	}
	res, err := m.cfg.Engine.ApplyManualGrade(qz, *a.Result, questionID, g, graderID)
	if err != nil {
		return quiz.GradedResult{}, err
	}
	before := a.Status
	a.Result = &res
	a.Status = res.Status()
	a.GradedAt = res.GradedAt
	if err := m.cfg.Store.SaveAttempt(ctx, a); err != nil {
		return quiz.GradedResult{}, fmt.Errorf("save grade: %w", err)
	}

	metrics.ManualGrades.Inc()
	m.publish(ctx, events.AnswerGraded, attemptID, map[string]any{
		"question_id": questionID, "graded_by": graderID, "score": res.Score, "pending_manual": res.PendingManual,
	})
	if before != quiz.StatusGraded && a.Status == quiz.StatusGraded {
		metrics.Results.WithLabelValues(string(res.Medal)).Inc()
		m.publish(ctx, events.AttemptGraded, attemptID, res)
	}
	m.broadcast(attemptID, "graded", res)
	return res, nil
}

// Review renders a submitted attempt for its owner or a grader.
func (m *Manager) Review(ctx context.Context, attemptID, userID string, viewAll bool) (presenter.Review, error) {
	sess, a, err := m.open(ctx, attemptID, userID, viewAll)
	if err != nil {
		return presenter.Review{}, err
	}
	if sess != nil {
		return presenter.Review{}, &quiz.InvalidStateError{AttemptID: attemptID, Status: sess.State().Status(), Op: "review"}
	}
	qz, err := m.cfg.Store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return presenter.Review{}, err
	}
	return presenter.Build(qz, a)
}

func (m *Manager) ListAttempts(ctx context.Context, opts quiz.AttemptListOpts) ([]quiz.Attempt, error) {
	return m.cfg.Store.ListAttempts(ctx, opts)
}

// Rehydrate restores the active attempts this node does not hold yet and that
// need a live session on their own: those with a snapshot, timed ones whose
// countdown must keep running, and submissions still waiting for a result.
// Other untimed attempts stay in the store until their owner opens them.
// Snapshots of finished or unknown attempts are removed. It returns the number
// of sessions restored.
func (m *Manager) Rehydrate(ctx context.Context) (int, error) {
	restored := 0
	if _, err := m.Reap(ctx); err != nil {
		log.Printf("rehydrate: reap snapshots: %v", err)
	}
	snapshots := map[string]bool{}
	if m.cfg.Checkpointer != nil {
		ids, err := m.cfg.Checkpointer.Stored(ctx)
		if err != nil {
			return 0, fmt.Errorf("list snapshots: %w", err)
		}
		for _, id := range ids {
			snapshots[id] = true
		}
	}
	for _, status := range []quiz.Status{quiz.StatusInProgress, quiz.StatusSubmitting} {
		const pageSize = 200
		for offset := 0; ; offset += pageSize {
			batch, err := m.cfg.Store.ListAttempts(ctx, quiz.AttemptListOpts{Status: status, Limit: pageSize, Offset: offset})
			if err != nil {
				return restored, err
			}
			for _, a := range batch {
				if m.lookup(a.ID) != nil {
					continue
				}
				if !snapshots[a.ID] && !a.HasTimeLimit && a.Status != quiz.StatusSubmitting {
					continue
				}
				if _, err := m.restore(ctx, a); err != nil {
					log.Printf("rehydrate %s: %v", a.ID, err)
					continue
				}
				restored++
			}
			if len(batch) < pageSize {
				break
			}
		}
	}
	return restored, nil
}

// Reap deletes snapshots that no longer belong to an active attempt.
func (m *Manager) Reap(ctx context.Context) (int, error) {
	if m.cfg.Checkpointer == nil {
		return 0, nil
	}
	ids, err := m.cfg.Checkpointer.Stored(ctx)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, id := range ids {
		if m.lookup(id) != nil {
			continue
		}
		a, err := m.cfg.Store.GetAttempt(ctx, id)
		switch {
		case errors.Is(err, quiz.ErrNotFound):
		case err != nil:
			log.Printf("reap %s: %v", id, err)
			continue
		case !a.Status.Final():
			continue
		}
		if err := m.cfg.Checkpointer.Forget(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("reap %s: %v", id, err)
			continue
		}
		reaped++
	}
	return reaped, nil
}

// RetryPending restarts submission of every live attempt stuck in submitting.
func (m *Manager) RetryPending() int {
	n := 0
	for _, s := range m.live() {
		if s.State().Status() == quiz.StatusSubmitting {
			s.Retry()
			n++
		}
	}
	return n
}

// Close stops every countdown and queues a last checkpoint of each session.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = map[string]*Session{}
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
		m.checkpoint(s.State())
	}
	metrics.LiveSessions.Set(0)
}

func (m *Manager) lookup(attemptID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[attemptID]
}

func (m *Manager) live() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// open resolves attemptID for userID. An active attempt comes back as its live
// session, restored on demand; a finished one as the stored record with a nil
// session. Ownership is checked before anything is restored.
func (m *Manager) open(ctx context.Context, attemptID, userID string, viewAll bool) (*Session, quiz.Attempt, error) {
	if s := m.lookup(attemptID); s != nil {
		st := s.State()
		if !viewAll && st.UserID() != userID {
			return nil, quiz.Attempt{}, &quiz.ForbiddenError{AttemptID: attemptID, UserID: userID}
		}
		return s, quiz.Attempt{ID: st.ID(), QuizID: st.QuizID(), UserID: st.UserID(), Status: st.Status()}, nil
	}
	a, err := m.cfg.Store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, quiz.Attempt{}, err
	}
	if !viewAll && !a.Owner(userID) {
		return nil, quiz.Attempt{}, &quiz.ForbiddenError{AttemptID: attemptID, UserID: userID}
	}
	if a.Status.Final() {
		return nil, a, nil
	}
	s, err := m.restore(ctx, a)
	if err != nil {
		return nil, quiz.Attempt{}, err
	}
	return s, a, nil
}

// restore rebuilds the live session of an active attempt. The snapshot wins
// when present; otherwise the countdown is recomputed from the wall clock.
func (m *Manager) restore(ctx context.Context, a quiz.Attempt) (*Session, error) {
	st, err := m.restoreState(ctx, a)
	if err != nil {
		return nil, err
	}
	return m.attach(st)
}

func (m *Manager) restoreState(ctx context.Context, a quiz.Attempt) (*State, error) {
	if m.cfg.Checkpointer != nil {
		snap, err := m.cfg.Checkpointer.Load(ctx, a.ID)
		switch {
		case err == nil:
			st, err := FromSnapshot(snap, m.cfg.Now)
			if err == nil && st.UserID() == a.UserID && st.QuizID() == a.QuizID {
				return st, nil
			}
			log.Printf("snapshot %s unusable, rebuilding from the attempt record: %v", a.ID, err)
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("load snapshot %s: %w", a.ID, err)
		}
	}
	qz, err := m.cfg.Store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return nil, err
	}
	if a.HasTimeLimit && a.Status == quiz.StatusInProgress {
		elapsed := int(m.cfg.Now().Unix() - a.StartedAt)
		a.TimeRemainingSeconds = max(qz.TimeLimitSec-elapsed, 0)
	}
	return NewState(a, qz.Public().Questions, m.cfg.Now), nil
}

// attach registers st as a live session and starts it. When another caller
// attached the same attempt first, that session is returned instead.
func (m *Manager) attach(st *State) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if s, ok := m.sessions[st.ID()]; ok {
		m.mu.Unlock()
		return s, nil
	}
	id := st.ID()
	var sess *Session
	sess = NewSession(st, SessionConfig{
		Period:     m.cfg.Period,
		Retry:      m.cfg.Retry,
		Submit:     m.finalize,
		Checkpoint: m.checkpoint,
		OnTick: func(remaining int) {
			m.broadcast(id, "tick", map[string]int{"time_remaining_seconds": remaining})
		},
		OnFinish: func(res quiz.GradedResult) { m.finished(sess, res) },
		OnRetry: func(trigger quiz.Trigger, err error) {
			metrics.SubmitRetries.WithLabelValues(string(trigger)).Inc()
		},
	})
	m.sessions[id] = sess
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.LiveSessions.Set(float64(n))
	sess.Start()
	return sess, nil
}

func (m *Manager) checkpoint(st *State) {
	if m.cfg.Checkpointer != nil {
		m.cfg.Checkpointer.Save(st)
	}
}

// finalize grades a frozen attempt and persists it with its result.
func (m *Manager) finalize(ctx context.Context, a quiz.Attempt) (quiz.GradedResult, error) {
	start := time.Now()
	qz, err := m.cfg.Store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return quiz.GradedResult{}, err
	}
	res, err := m.cfg.Engine.Grade(ctx, qz, a)
	if err != nil {
		return quiz.GradedResult{}, err
	}
	a.Status = res.Status()
	a.Result = &res
	a.GradedAt = res.GradedAt
	if err := m.cfg.Store.SaveAttempt(ctx, a); err != nil {
		return quiz.GradedResult{}, fmt.Errorf("save attempt %s: %w", a.ID, err)
	}
	metrics.GradingDuration.Observe(time.Since(start).Seconds())
	return res, nil
}

// finished runs once per session after its result was persisted. It is
// called with the session's submit lock held.
func (m *Manager) finished(sess *Session, res quiz.GradedResult) {
	id := sess.State().ID()
	m.mu.Lock()
	if m.sessions[id] == sess {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.LiveSessions.Set(float64(n))
	sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if m.cfg.Checkpointer != nil {
		if err := m.cfg.Checkpointer.Forget(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("forget snapshot %s: %v", id, err)
		}
	}

	metrics.AttemptsSubmitted.WithLabelValues(string(res.Trigger)).Inc()
	m.publish(ctx, events.AttemptSubmitted, id, res)
	if res.Status() == quiz.StatusGraded {
		metrics.Results.WithLabelValues(string(res.Medal)).Inc()
		m.publish(ctx, events.AttemptGraded, id, res)
	}
	m.broadcast(id, "submitted", res)
}

func (m *Manager) publish(ctx context.Context, typ events.Type, key string, data any) {
	e, err := events.New(typ, key, data)
	if err == nil {
		err = m.cfg.Events.Publish(ctx, e)
	}
	if err != nil {
		log.Printf("publish %s %s: %v", typ, key, err)
	}
}

func (m *Manager) broadcast(attemptID, msgType string, payload any) {
	if m.cfg.Live != nil {
		m.cfg.Live.Broadcast(attemptID, msgType, payload)
	}
}
