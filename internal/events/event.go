// Package events records attempt lifecycle events and forwards them to
// downstream consumers such as notification or certificate services.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type Type string

const (
	AttemptStarted   Type = "attempt.started"
	AttemptSubmitted Type = "attempt.submitted"
	AttemptGraded    Type = "attempt.graded"
	AnswerGraded     Type = "answer.graded"
)

type Event struct {
	Type      Type            `json:"type"`
	Key       string          `json:"key"` // attempt id
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

// New encodes data as the payload of an event keyed by key.
func New(typ Type, key string, data any) (Event, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Key: key, Data: b, CreatedAt: time.Now().Unix()}, nil
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
