package recognizer

import (
	"context"
	"sync"
	"time"
)

type Command string

const (
	CommandStart Command = "start"
	CommandStop  Command = "stop"
)

// CommandSink forwards start/stop commands to wherever recognition actually runs.
type CommandSink func(ctx context.Context, cmd Command) error

const relayBuffer = 64

// Relay is a recognizer whose audio and recognition live on the client. The connection handler
// feeds client callbacks in through Deliver; Start and Stop are forwarded as commands.
type Relay struct {
	sink CommandSink
	now  func() time.Time

	mu        sync.Mutex
	listening bool
	events    chan Event
}

func NewRelay(sink CommandSink) *Relay {
	return &Relay{
		sink:   sink,
		now:    time.Now,
		events: make(chan Event, relayBuffer),
	}
}

func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	r.listening = true
	r.mu.Unlock()
	if r.sink == nil {
		return nil
	}
	return r.sink(ctx, CommandStart)
}

func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	wasListening := r.listening
	r.listening = false
	r.mu.Unlock()
	if !wasListening || r.sink == nil {
		return nil
	}
	return r.sink(ctx, CommandStop)
}

func (r *Relay) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening
}

func (r *Relay) Events() <-chan Event { return r.events }

// Deliver queues one client callback. Events arriving after Stop are still delivered; the
// session owner decides whether they matter.
func (r *Relay) Deliver(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = r.now()
	}
	select {
	case r.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
