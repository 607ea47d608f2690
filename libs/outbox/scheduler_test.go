package outbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type scriptedProcessor struct {
	remaining atomic.Int64
	calls     atomic.Int64
	failAt    int64
}

func (p *scriptedProcessor) ProcessNext(context.Context) (bool, error) {
	n := p.calls.Add(1)
	if p.failAt > 0 && n == p.failAt {
		return false, errors.New("broker unreachable")
	}
	if p.remaining.Add(-1) >= 0 {
		return true, nil
	}
	return false, nil
}

func TestDrain_ToEmpty(t *testing.T) {
	p := &scriptedProcessor{}
	p.remaining.Store(7)
	s := NewScheduler(p, time.Second, testLogger())

	s.Drain(context.Background())

	// 7 processed rows plus the final empty-backlog probe.
	if got := p.calls.Load(); got != 8 {
		t.Fatalf("expected 8 ProcessNext calls, got %d", got)
	}
}

func TestDrain_StopsCycleOnError(t *testing.T) {
	p := &scriptedProcessor{failAt: 3}
	p.remaining.Store(10)
	s := NewScheduler(p, time.Second, testLogger())

	s.Drain(context.Background())

	if got := p.calls.Load(); got != 3 {
		t.Fatalf("expected drain to halt at call 3, got %d calls", got)
	}
}

func TestRun_ResumesAfterFailedCycle(t *testing.T) {
	p := &scriptedProcessor{failAt: 1}
	p.remaining.Store(4)
	s := NewScheduler(p, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	// First tick fails immediately; later ticks drain the 4 rows.
	if got := p.calls.Load(); got < 6 {
		t.Fatalf("expected at least 6 ProcessNext calls across ticks, got %d", got)
	}
}
