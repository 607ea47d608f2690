package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Processor is one claim-publish-delete unit of work.
type Processor interface {
	ProcessNext(ctx context.Context) (bool, error)
}

// Scheduler drives dispatch cycles on a fixed period: each tick drains the
// backlog to empty, then sleeps until the next tick. End-to-end latency is
// bounded by roughly one interval under normal load without busy-looping on
// an empty table. Multiple replicas may each run a Scheduler; they coordinate
// only through the store's row locks.
type Scheduler struct {
	processor Processor
	interval  time.Duration
	logger    *slog.Logger
}

func NewScheduler(processor Processor, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{processor: processor, interval: interval, logger: logger}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Drain(ctx)
		}
	}
}

// Drain processes rows until the backlog is empty or a row fails. A failure
// ends the current cycle only; the next tick resumes where the table stands.
func (s *Scheduler) Drain(ctx context.Context) {
	for {
		processed, err := s.processor.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("outbox drain cycle halted", "err", err)
			}
			return
		}
		if !processed {
			return
		}
	}
}
