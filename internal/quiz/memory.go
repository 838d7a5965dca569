package quiz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.RWMutex
	quizzes  map[string]Quiz
	attempts map[string]Attempt
}

// NewInMemoryStore returns a Store kept entirely in process memory.
func NewInMemoryStore() Store {
	return &memoryStore{
		quizzes:  map[string]Quiz{},
		attempts: map[string]Attempt{},
	}
}

func (m *memoryStore) PutQuiz(_ context.Context, qz Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qz.CreatedAt == 0 {
		if prev, ok := m.quizzes[qz.ID]; ok {
			qz.CreatedAt = prev.CreatedAt
		} else {
			qz.CreatedAt = time.Now().Unix()
		}
	}
	m.quizzes[qz.ID] = qz
	return nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	qz, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	return qz, nil
}

func (m *memoryStore) ListQuizzes(_ context.Context, opts ListOpts) ([]QuizSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(opts.Q))
	out := make([]QuizSummary, 0, len(m.quizzes))
	for _, qz := range m.quizzes {
		if needle != "" && !strings.Contains(strings.ToLower(qz.Title), needle) {
			continue
		}
		out = append(out, summarize(qz))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[a.QuizID]; !ok {
		return fmt.Errorf("quiz %s: %w", a.QuizID, ErrNotFound)
	}
	for _, other := range m.attempts {
		if other.QuizID == a.QuizID && other.UserID == a.UserID && active(other.Status) {
			return &ConflictError{QuizID: a.QuizID, UserID: a.UserID, AttemptID: other.ID}
		}
	}
	m.attempts[a.ID] = cloneAttempt(a)
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return cloneAttempt(a), nil
}

func (m *memoryStore) FindActiveAttempt(_ context.Context, quizID, userID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.UserID == userID && active(a.Status) {
			return cloneAttempt(a), nil
		}
	}
	return Attempt{}, fmt.Errorf("active attempt for %s/%s: %w", quizID, userID, ErrNotFound)
}

func (m *memoryStore) SaveAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[a.ID]; !ok {
		return fmt.Errorf("attempt %s: %w", a.ID, ErrNotFound)
	}
	m.attempts[a.ID] = cloneAttempt(a)
	return nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Attempt, 0)
	for _, a := range m.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, cloneAttempt(a))
	}
	bySubmitted := strings.HasPrefix(strings.ToLower(opts.Sort), "submitted_at")
	sort.Slice(out, func(i, j int) bool {
		ki, kj := out[i].StartedAt, out[j].StartedAt
		if bySubmitted {
			ki, kj = out[i].SubmittedAt, out[j].SubmittedAt
		}
		if ki != kj {
			return ki > kj
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func cloneAttempt(a Attempt) Attempt {
	out := a
	out.Answers = make(map[string]Answer, len(a.Answers))
	for k, v := range a.Answers {
		out.Answers[k] = v
	}
	out.Bookmarks = append([]string(nil), a.Bookmarks...)
	if a.Result != nil {
		r := *a.Result
		r.Items = append([]ItemResult(nil), a.Result.Items...)
		out.Result = &r
	}
	return out
}
