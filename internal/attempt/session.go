package attempt

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/countdown"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// SubmitFunc grades and persists a frozen attempt. It must be safe to call
// again after a failure.
type SubmitFunc func(ctx context.Context, a quiz.Attempt) (quiz.GradedResult, error)

type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

type SessionConfig struct {
	Period     time.Duration // countdown tick, one second by default
	Submit     SubmitFunc
	Checkpoint func(*State)                          // called after every change and tick
	OnTick     func(remaining int)                   // optional
	OnFinish   func(quiz.GradedResult)               // optional, after the result was recorded
	OnRetry    func(trigger quiz.Trigger, err error) // optional, before each retry wait
	Retry      Backoff
}

// Session owns one live State together with its countdown. It guarantees that
// a submission is graded once no matter how many callers race to submit.
type Session struct {
	state *State
	cfg   SessionConfig
	timer *countdown.Controller

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex // serializes submission
	result   *quiz.GradedResult
	retrying atomic.Bool
}

func NewSession(st *State, cfg SessionConfig) *Session {
	if cfg.Period <= 0 {
		cfg.Period = time.Second
	}
	if cfg.Retry.Initial <= 0 {
		cfg.Retry.Initial = time.Second
	}
	if cfg.Retry.Max < cfg.Retry.Initial {
		cfg.Retry.Max = 30 * time.Second
	}
	s := &Session{state: st, cfg: cfg}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.timer = countdown.New(st, s.expire, countdown.WithPeriod(cfg.Period), countdown.WithTickHook(s.tick))
	return s
}

func (s *Session) State() *State { return s.state }

// Start begins ticking a timed attempt. A session restored in the middle of a
// submission resumes retrying it instead.
func (s *Session) Start() {
	switch s.state.Status() {
	case quiz.StatusInProgress:
		if s.state.HasTimeLimit() {
			s.timer.Start()
		}
	case quiz.StatusSubmitting:
		go s.retrySubmit(s.state.Trigger())
	}
}

// Close stops the countdown and abandons pending retries. The state is left as is.
func (s *Session) Close() {
	s.timer.Stop()
	s.cancel()
}

func (s *Session) Result() (quiz.GradedResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return quiz.GradedResult{}, false
	}
	return *s.result, true
}

func (s *Session) checkpoint() {
	if s.cfg.Checkpoint != nil {
		s.cfg.Checkpoint(s.state)
	}
}

// Touch checkpoints the state after an edit.
func (s *Session) Touch() { s.checkpoint() }

func (s *Session) tick(remaining int) {
	s.checkpoint()
	if s.cfg.OnTick != nil {
		s.cfg.OnTick(remaining)
	}
}

func (s *Session) expire() { s.retrySubmit(quiz.TriggerTimer) }

// Submit freezes the attempt and grades it. Repeated or concurrent calls get
// the result of the single grading run; their answers are ignored.
func (s *Session) Submit(ctx context.Context, answers []quiz.Answer, trigger quiz.Trigger) (quiz.GradedResult, error) {
	froze, err := s.state.BeginSubmit(answers, trigger)
	if err != nil {
		return quiz.GradedResult{}, err
	}
	if froze {
		s.timer.Stop()
		s.checkpoint()
	}
	return s.flush(ctx)
}

func (s *Session) flush(ctx context.Context) (quiz.GradedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil {
		return *s.result, nil
	}
	res, err := s.cfg.Submit(ctx, s.state.Attempt())
	if err != nil {
		return quiz.GradedResult{}, err
	}
	s.state.Finish(res)
	s.result = &res
	if s.cfg.OnFinish != nil {
		s.cfg.OnFinish(res)
	}
	return res, nil
}

// Retry restarts submission of an attempt stuck in submitting.
func (s *Session) Retry() {
	if s.state.Status() == quiz.StatusSubmitting {
		go s.retrySubmit(s.state.Trigger())
	}
}

// retrySubmit submits with capped exponential backoff until it succeeds, the
// quiz turns out to be malformed, or the session is closed.
func (s *Session) retrySubmit(trigger quiz.Trigger) {
	if !s.retrying.CompareAndSwap(false, true) {
		return
	}
	defer s.retrying.Store(false)

	delay := s.cfg.Retry.Initial
	for n := 1; ; n++ {
		_, err := s.Submit(s.ctx, nil, trigger)
		if err == nil {
			return
		}
		if errors.Is(err, quiz.ErrDataIntegrity) {
			log.Printf("submit %s: giving up: %v", s.state.ID(), err)
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		log.Printf("submit %s (%s) try %d failed: %v; retrying in %s", s.state.ID(), trigger, n, err, delay)
		if s.cfg.OnRetry != nil {
			s.cfg.OnRetry(trigger, err)
		}
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.cfg.Retry.Max {
			delay = s.cfg.Retry.Max
		}
	}
}
