package practice

import (
	"context"
	"time"
)

type tickKind int

const (
	tickClock tickKind = iota
	tickMetrics
	tickEye
)

func (k tickKind) String() string {
	switch k {
	case tickClock:
		return "clock"
	case tickMetrics:
		return "metrics"
	case tickEye:
		return "eye"
	default:
		return "unknown"
	}
}

// tick carries the session generation it was scheduled for, so ticks queued before a stop are
// recognised as stale.
type tick struct {
	kind tickKind
	gen  uint64
	at   time.Time
}

// timerTask is one independently cancellable periodic task.
type timerTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startTimer(parent context.Context, kind tickKind, every time.Duration, gen uint64, out chan<- tick) *timerTask {
	ctx, cancel := context.WithCancel(parent)
	t := &timerTask{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case at := <-ticker.C:
				select {
				case out <- tick{kind: kind, gen: gen, at: at}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return t
}

func (t *timerTask) stop() {
	t.cancel()
	<-t.done
}

// timerSet owns the session's periodic tasks. Tasks start and stop individually; stopAll ends
// them as a unit.
type timerSet struct {
	tasks map[tickKind]*timerTask
}

func newTimerSet() *timerSet {
	return &timerSet{tasks: make(map[tickKind]*timerTask)}
}

func (s *timerSet) start(ctx context.Context, kind tickKind, every time.Duration, gen uint64, out chan<- tick) {
	if _, running := s.tasks[kind]; running || every <= 0 {
		return
	}
	s.tasks[kind] = startTimer(ctx, kind, every, gen, out)
}

func (s *timerSet) stop(kind tickKind) {
	if t, ok := s.tasks[kind]; ok {
		t.stop()
		delete(s.tasks, kind)
	}
}

func (s *timerSet) running(kind tickKind) bool {
	_, ok := s.tasks[kind]
	return ok
}

func (s *timerSet) stopAll() {
	for kind, t := range s.tasks {
		t.stop()
		delete(s.tasks, kind)
	}
}
