// Package session owns the practice-task lifecycle of one client: task
// loading, timed phases, audio capture and evaluation, with stale async
// results discarded by epoch.
package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fadilmartias/pte-practice/internal/capture"
	"github.com/fadilmartias/pte-practice/internal/evaluation"
	"github.com/fadilmartias/pte-practice/internal/loader"
	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/fadilmartias/pte-practice/internal/render"
	"github.com/fadilmartias/pte-practice/internal/timer"
)

type State string

const (
	StateIdle            State = "idle"
	StateLoading         State = "loading"
	StateActive          State = "active"
	StateCapturing       State = "capturing"
	StateEvaluating      State = "evaluating"
	StateShowingFeedback State = "showing-feedback"
	StateError           State = "error"
)

var (
	ErrClosed             = errors.New("session closed")
	ErrNotFound           = errors.New("session not found")
	ErrWrongState         = errors.New("action not allowed in current state")
	ErrNotApplicable      = errors.New("action does not apply to this task")
	ErrCaptureActive      = errors.New("capture already in progress")
	ErrCaptureUnavailable = errors.New("speech capture is not supported on this client")
	ErrPreparing          = errors.New("preparation time has not ended")
	ErrLocked             = errors.New("task already answered correctly")
)

// Capabilities are the native APIs the client reported when the session was
// created.
type Capabilities struct {
	SpeechRecognition bool `json:"speechRecognition"`
	Microphone        bool `json:"microphone"`
	SpeechSynthesis   bool `json:"speechSynthesis"`
}

// Message is one push to the client.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

const (
	MsgView         = "view"
	MsgTick         = "tick"
	MsgNotice       = "notice"
	MsgCaptureStart = "capture.start"
	MsgCaptureStop  = "capture.stop"
)

// Notifier pushes messages to a session's client. Notify must not block.
type Notifier interface {
	Notify(sessionID string, msg Message)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, Message) {}

// Recorder stores a summary of every feedback shown.
type Recorder interface {
	Record(ctx context.Context, sessionID string, payload *model.TaskPayload, fb *model.Feedback) error
}

type Deps struct {
	Loader    loader.LoaderInterface
	Evaluator evaluation.DispatcherInterface
	Registry  *render.Registry
	Recorder  Recorder
	Notifier  Notifier
	Clock     timer.Clock
	Logger    *slog.Logger
	// Spawn runs a blocking job off the controller loop. Tests replace it to
	// control when jobs finish.
	Spawn func(job func())
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Clock == nil {
		d.Clock = timer.RealClock
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Spawn == nil {
		d.Spawn = func(job func()) { go job() }
	}
	if d.Registry == nil {
		d.Registry = render.NewRegistry(render.DefaultTimings())
	}
	return d
}

type signaller struct {
	id       string
	notifier Notifier
}

type signalPayload struct {
	Variant capture.Variant `json:"variant"`
	capture.Tag
}

func (s signaller) Signal(kind string, variant capture.Variant, tag capture.Tag) {
	s.notifier.Notify(s.id, Message{Type: kind, Payload: signalPayload{Variant: variant, Tag: tag}})
}

type TimerView struct {
	Label     string `json:"label"`
	Remaining int    `json:"remaining"`
}

// Snapshot is the client-visible state of a session.
type Snapshot struct {
	ID           string            `json:"id"`
	State        State             `json:"state"`
	Epoch        uint64            `json:"epoch"`
	Capabilities Capabilities      `json:"capabilities"`
	Task         model.TaskType    `json:"taskType,omitempty"`
	View         *render.View      `json:"view,omitempty"`
	Policy       render.PolicyKind `json:"policy,omitempty"`
	Capture      capture.State     `json:"capture,omitempty"`
	Variant      capture.Variant   `json:"variant,omitempty"`
	Cycle        uint64            `json:"cycle,omitempty"`
	Timer        *TimerView        `json:"timer,omitempty"`
	Cue          string            `json:"cue,omitempty"`
	PlaybackURL  string            `json:"playbackUrl,omitempty"`
	WordCount    int               `json:"wordCount"`
	Verdict      *bool             `json:"verdict,omitempty"`
	Locked       bool              `json:"locked"`
	Feedback     *model.Feedback   `json:"feedback,omitempty"`
	Error        string            `json:"error,omitempty"`
	Notice       string            `json:"notice,omitempty"`
	Unsupported  string            `json:"unsupported,omitempty"`
}
