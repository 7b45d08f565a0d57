package notify

import (
	"context"
	"time"

	"signoff/internal/events"
)

// Scheduler reruns the generator on a fixed interval and whenever the task
// set changes.
type Scheduler struct {
	Generator Generator
	Interval  time.Duration
	Bus       *events.Bus
}

// Run blocks until ctx is cancelled.
func (s Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var changes <-chan events.Change
	if s.Bus != nil {
		ch, cancel := s.Bus.Subscribe(64)
		defer cancel()
		changes = ch
	}
	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if c.Kind == events.KindTask {
				s.runOnce(ctx)
			}
		}
	}
}

func (s Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.Generator.Run(ctx); err != nil && ctx.Err() == nil {
		s.Generator.logger().WithError(err).Error("deadline notification run failed")
	}
}
