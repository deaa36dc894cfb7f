package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fadilmartias/pte-practice/internal/capture"
	"github.com/fadilmartias/pte-practice/internal/model"
)

// Controller runs one session's Machine on its own goroutine. Every command,
// timer callback and async result is funnelled through the loop, so the
// Machine never sees concurrent calls.
type Controller struct {
	id      string
	machine *Machine
	speech  *capture.RemoteEngine
	audio   *capture.RemoteEngine

	inbox     chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
	lastSeen  atomic.Int64
}

func NewController(id string, caps Capabilities, deps Deps) *Controller {
	deps = deps.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	sig := signaller{id: id, notifier: deps.Notifier}

	c := &Controller{
		id:      id,
		speech:  capture.NewRemoteEngine(capture.VariantTranscription, sig),
		audio:   capture.NewRemoteEngine(capture.VariantRecording, sig),
		inbox:   make(chan func(), 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		cancel:  cancel,
	}
	engines := map[capture.Variant]capture.Engine{
		capture.VariantTranscription: c.speech,
		capture.VariantRecording:     c.audio,
	}
	c.machine = newMachine(ctx, id, caps, deps, engines, c.post)
	c.touch()
	go c.run()
	return c
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.done:
			c.machine.reset()
			return
		}
	}
}

func (c *Controller) post(m msg) {
	select {
	case c.inbox <- func() { c.machine.Deliver(m) }:
	case <-c.done:
	}
}

func (c *Controller) call(fn func(m *Machine) error) (Snapshot, error) {
	c.touch()
	type result struct {
		snap Snapshot
		err  error
	}
	out := make(chan result, 1)
	select {
	case c.inbox <- func() {
		err := fn(c.machine)
		out <- result{snap: c.machine.Snapshot(), err: err}
	}:
	case <-c.done:
		return Snapshot{}, ErrClosed
	}
	select {
	case r := <-out:
		return r.snap, r.err
	case <-c.stopped:
		return Snapshot{}, ErrClosed
	}
}

func (c *Controller) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Controller) Snapshot() (Snapshot, error) {
	return c.call(func(*Machine) error { return nil })
}

func (c *Controller) SelectTask(t model.TaskType) (Snapshot, error) {
	return c.call(func(m *Machine) error { return m.SelectTask(t) })
}

func (c *Controller) Dismiss() (Snapshot, error) {
	return c.call(func(m *Machine) error {
		m.Dismiss()
		return nil
	})
}

func (c *Controller) StartCapture() (Snapshot, error) {
	return c.call(func(m *Machine) error { return m.StartCapture() })
}

func (c *Controller) StopCapture() (Snapshot, error) {
	return c.call(func(m *Machine) error { return m.StopCapture() })
}

func (c *Controller) PlaybackDone() (Snapshot, error) {
	return c.call(func(m *Machine) error { return m.PlaybackDone() })
}

func (c *Controller) UpdateText(text string) (int, error) {
	var count int
	_, err := c.call(func(m *Machine) error {
		var err error
		count, err = m.UpdateText(text)
		return err
	})
	return count, err
}

func (c *Controller) Submit() (Snapshot, error) {
	return c.call(func(m *Machine) error { return m.Submit() })
}

func (c *Controller) CheckOrder(order []int) (bool, Snapshot, error) {
	var correct bool
	snap, err := c.call(func(m *Machine) error {
		var err error
		correct, err = m.CheckOrder(order)
		return err
	})
	return correct, snap, err
}

func (c *Controller) SelectOption(index int) (Snapshot, error) {
	return c.call(func(m *Machine) error { return m.SelectOption(index) })
}

// PushSpeech relays a speech-recognition event from the client. tag is the
// epoch and cycle announced by capture.start; events for any other capture
// are rejected with capture.ErrStaleEvent.
func (c *Controller) PushSpeech(tag capture.Tag, ev capture.Event) error {
	c.touch()
	return c.speech.Push(tag, ev)
}

// PushAudio relays a microphone recording event from the client.
func (c *Controller) PushAudio(tag capture.Tag, ev capture.Event) error {
	c.touch()
	return c.audio.Push(tag, ev)
}

// Close stops the loop, cancelling the timer, any capture and in-flight
// requests. It is safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
	<-c.stopped
}
