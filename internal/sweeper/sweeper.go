// Package sweeper runs periodic housekeeping over live attempts: stale
// snapshots are reaped, orphaned attempts restored and stuck submissions
// retried.
package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "@every 1m"

// Maintainer is implemented by attempt.Manager.
type Maintainer interface {
	Reap(ctx context.Context) (int, error)
	Rehydrate(ctx context.Context) (int, error)
	RetryPending() int
}

type Sweeper struct {
	c *cron.Cron
	m Maintainer
}

// Start schedules a sweep on schedule (cron spec or @every descriptor).
func Start(m Maintainer, schedule string) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	s := &Sweeper{
		c: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		m: m,
	}
	if _, err := s.c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.RunOnce(ctx)
	}); err != nil {
		return nil, err
	}
	log.Printf("[SWEEPER] started schedule=%q", schedule)
	s.c.Start()
	return s, nil
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) {
	reaped, err := s.m.Reap(ctx)
	if err != nil {
		log.Printf("[SWEEPER] reap: %v", err)
	}
	restored, err := s.m.Rehydrate(ctx)
	if err != nil {
		log.Printf("[SWEEPER] rehydrate: %v", err)
	}
	retried := s.m.RetryPending()
	if reaped+restored+retried > 0 {
		log.Printf("[SWEEPER] reaped=%d restored=%d retried=%d", reaped, restored, retried)
	}
}

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	<-s.c.Stop().Done()
}
