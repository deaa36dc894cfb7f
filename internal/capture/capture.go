// Package capture manages one audio capture session per task: either a
// continuous speech-to-text session or a raw microphone recording.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type State string

const (
	StateIdle       State = "idle"
	StateArmed      State = "armed"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
)

type Variant string

const (
	VariantTranscription Variant = "transcription"
	VariantRecording     Variant = "recording"
)

var (
	ErrNotArmed     = errors.New("capture is not armed")
	ErrActive       = errors.New("capture already in progress")
	ErrNotRecording = errors.New("capture is not recording")
)

type EventKind string

const (
	EventStarted EventKind = "started"
	EventResult  EventKind = "result"
	EventChunk   EventKind = "chunk"
	EventEnd     EventKind = "end"
	EventError   EventKind = "error"
)

type Segment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Tag names one capture cycle of one task. Clients echo it on every engine
// event they relay.
type Tag struct {
	Epoch uint64 `json:"epoch"`
	Cycle uint64 `json:"cycle"`
}

// Event is emitted by an Engine while a capture is running.
type Event struct {
	Kind     EventKind
	Segments []Segment
	Chunk    []byte
	Err      error
}

// Engine is a native capture capability: a speech recognizer or a
// microphone. Start begins capturing the cycle named by tag and reports
// progress through emit; the engine must emit EventEnd once after Stop or
// after it stops on its own.
type Engine interface {
	Start(ctx context.Context, tag Tag, emit func(Event)) error
	Stop() error
}

// Outcome is the single terminal result of a start/stop cycle.
type Outcome struct {
	Transcript string
	Audio      []byte
	Inaudible  bool
}

type accumulator interface {
	reset()
	add(ev Event)
	finalize() Outcome
}

// Controller is not safe for concurrent use; its owner serialises calls and
// engine events.
type Controller struct {
	variant Variant
	engine  Engine
	acc     accumulator
	state   State
	cycle   uint64
	lastErr error
}

func NewController(variant Variant, engine Engine) *Controller {
	c := &Controller{variant: variant, engine: engine, state: StateIdle}
	switch variant {
	case VariantRecording:
		c.acc = &audioBuffer{}
	default:
		c.variant = VariantTranscription
		c.acc = &transcriptBuffer{}
	}
	return c
}

func (c *Controller) Variant() Variant { return c.variant }
func (c *Controller) State() State     { return c.state }

// Cycle identifies the current start/stop cycle. Events belonging to an
// earlier cycle are ignored by Handle.
func (c *Controller) Cycle() uint64 { return c.cycle }

// LastError is the most recent engine error, kept until the next Start.
func (c *Controller) LastError() error { return c.lastErr }

func (c *Controller) Arm() error {
	switch c.state {
	case StateRecording, StateFinalizing:
		return ErrActive
	}
	c.state = StateArmed
	return nil
}

// Start begins a new cycle for the owner's epoch. emit receives engine
// events tagged with the cycle they belong to; the owner passes them back
// into Handle.
func (c *Controller) Start(ctx context.Context, epoch uint64, emit func(cycle uint64, ev Event)) error {
	switch c.state {
	case StateRecording, StateFinalizing:
		return ErrActive
	case StateIdle:
		return ErrNotArmed
	}
	c.cycle++
	cycle := c.cycle
	c.acc.reset()
	c.lastErr = nil
	c.state = StateRecording
	tag := Tag{Epoch: epoch, Cycle: cycle}
	if err := c.engine.Start(ctx, tag, func(ev Event) { emit(cycle, ev) }); err != nil {
		c.state = StateArmed
		return fmt.Errorf("start %s: %w", c.variant, err)
	}
	return nil
}

// Stop asks the engine to finish. The outcome arrives with the engine's
// end event.
func (c *Controller) Stop() error {
	if c.state != StateRecording {
		return ErrNotRecording
	}
	c.state = StateFinalizing
	if err := c.engine.Stop(); err != nil {
		return fmt.Errorf("stop %s: %w", c.variant, err)
	}
	return nil
}

// Abort tears the capture down without producing an outcome.
func (c *Controller) Abort() {
	if c.state == StateRecording || c.state == StateFinalizing {
		_ = c.engine.Stop()
	}
	c.cycle++
	c.acc.reset()
	c.state = StateIdle
}

// Handle applies an engine event. It returns an outcome exactly once per
// cycle, when the engine ends; done is false for every other event.
func (c *Controller) Handle(cycle uint64, ev Event) (out Outcome, done bool) {
	if cycle != c.cycle {
		return Outcome{}, false
	}
	switch c.state {
	case StateRecording, StateFinalizing:
	default:
		return Outcome{}, false
	}

	switch ev.Kind {
	case EventResult, EventChunk:
		c.acc.add(ev)
		return Outcome{}, false
	case EventError:
		c.lastErr = ev.Err
		return Outcome{}, false
	case EventEnd:
		out = c.acc.finalize()
		c.acc.reset()
		// Nothing heard leaves the capture re-armable.
		c.state = StateArmed
		if !out.Inaudible {
			c.state = StateIdle
		}
		return out, true
	}
	return Outcome{}, false
}

type transcriptBuffer struct {
	b strings.Builder
}

func (t *transcriptBuffer) reset() { t.b.Reset() }

func (t *transcriptBuffer) add(ev Event) {
	for _, seg := range ev.Segments {
		if seg.Final {
			t.b.WriteString(seg.Text)
		}
	}
}

func (t *transcriptBuffer) finalize() Outcome {
	text := strings.TrimSpace(t.b.String())
	if text == "" {
		return Outcome{Inaudible: true}
	}
	return Outcome{Transcript: text}
}

type audioBuffer struct {
	chunks [][]byte
	size   int
}

func (a *audioBuffer) reset() {
	a.chunks = nil
	a.size = 0
}

func (a *audioBuffer) add(ev Event) {
	if len(ev.Chunk) == 0 {
		return
	}
	a.chunks = append(a.chunks, ev.Chunk)
	a.size += len(ev.Chunk)
}

func (a *audioBuffer) finalize() Outcome {
	if a.size == 0 {
		return Outcome{Inaudible: true}
	}
	blob := make([]byte, 0, a.size)
	for _, c := range a.chunks {
		blob = append(blob, c...)
	}
	return Outcome{Audio: blob}
}
