package recognizer

import (
	"context"
	"sync"
	"time"
)

// Step is one scripted recognizer callback, emitted Delay after the previous one.
type Step struct {
	Delay   time.Duration
	Final   string
	Interim string
	Error   ErrorKind
	End     bool
}

func (s Step) event(at time.Time) Event {
	switch {
	case s.Error != "":
		return Event{Type: EventError, Kind: s.Error, At: at}
	case s.End:
		return Event{Type: EventEnd, At: at}
	default:
		return Event{Type: EventResult, Final: s.Final, Interim: s.Interim, At: at}
	}
}

// Script replays a fixed sequence of callbacks. A restart after an end or error resumes at the
// next unplayed step, as a real recognizer resumes listening.
type Script struct {
	steps  []Step
	events chan Event

	mu     sync.Mutex
	next   int
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScript(steps []Step) *Script {
	return &Script{
		steps:  append([]Step(nil), steps...),
		events: make(chan Event, len(steps)+1),
	}
}

func (s *Script) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.play(runCtx, s.done)
	return nil
}

func (s *Script) play(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		s.mu.Lock()
		if s.next >= len(s.steps) {
			s.mu.Unlock()
			return
		}
		step := s.steps[s.next]
		s.mu.Unlock()

		if step.Delay > 0 {
			timer := time.NewTimer(step.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return
		}

		terminal := step.End || step.Error != ""
		s.mu.Lock()
		s.next++
		if terminal && s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.mu.Unlock()

		// The buffer holds every step, so this never blocks.
		s.events <- step.event(time.Now())
		if terminal {
			return
		}
	}
}

// Stop halts playback and waits for the player goroutine to exit.
func (s *Script) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Script) Events() <-chan Event { return s.events }

// Remaining is the number of steps not yet played.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.next
}
