package capture

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrEngineIdle = errors.New("engine is not capturing")
	ErrStaleEvent = errors.New("event belongs to a finished capture")
)

// Signaller tells the client which native capture to drive and which cycle
// its events belong to.
type Signaller interface {
	Signal(kind string, variant Variant, tag Tag)
}

// RemoteEngine forwards start/stop to a client that owns the native speech
// or microphone API and receives that API's events through Push.
type RemoteEngine struct {
	variant Variant
	signal  Signaller

	mu   sync.Mutex
	tag  Tag
	emit func(Event)
}

func NewRemoteEngine(variant Variant, signal Signaller) *RemoteEngine {
	return &RemoteEngine{variant: variant, signal: signal}
}

func (r *RemoteEngine) Start(_ context.Context, tag Tag, emit func(Event)) error {
	r.mu.Lock()
	r.tag = tag
	r.emit = emit
	r.mu.Unlock()
	r.signal.Signal("capture.start", r.variant, tag)
	return nil
}

func (r *RemoteEngine) Stop() error {
	r.mu.Lock()
	tag := r.tag
	r.mu.Unlock()
	r.signal.Signal("capture.stop", r.variant, tag)
	return nil
}

// Push delivers a client-side engine event to the capture named by tag.
// Events for any other cycle are rejected with ErrStaleEvent.
func (r *RemoteEngine) Push(tag Tag, ev Event) error {
	r.mu.Lock()
	if r.emit == nil {
		r.mu.Unlock()
		return ErrEngineIdle
	}
	if tag != r.tag {
		r.mu.Unlock()
		return ErrStaleEvent
	}
	emit := r.emit
	if ev.Kind == EventEnd {
		r.emit = nil
	}
	r.mu.Unlock()
	emit(ev)
	return nil
}
