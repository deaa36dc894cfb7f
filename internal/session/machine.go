package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/fadilmartias/pte-practice/internal/capture"
	"github.com/fadilmartias/pte-practice/internal/loader"
	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/fadilmartias/pte-practice/internal/render"
	"github.com/fadilmartias/pte-practice/internal/timer"
	"github.com/fadilmartias/pte-practice/internal/util"
)

const (
	noticeInaudible   = "Couldn't hear you. Please try again."
	noticeUnsupported = "Your browser does not support speech recognition or microphone capture. Speaking tasks are unavailable."
	cueBeep           = "beep"
)

type phase int

const (
	phaseNone phase = iota
	phasePrep
	phaseAnswer
	phaseWriting
)

// msg is an async result posted back into the controller loop. Every msg
// carries the epoch it was started under.
type msg interface {
	epochOf() uint64
}

type loadDone struct {
	epoch   uint64
	payload *model.TaskPayload
	err     error
}

type evalDone struct {
	epoch    uint64
	feedback *model.Feedback
	err      error
}

type timerTick struct {
	epoch, tag uint64
	remaining  int
}

type timerDone struct {
	epoch, tag uint64
}

type captureEvent struct {
	epoch, cycle uint64
	ev           capture.Event
}

func (m loadDone) epochOf() uint64     { return m.epoch }
func (m evalDone) epochOf() uint64     { return m.epoch }
func (m timerTick) epochOf() uint64    { return m.epoch }
func (m timerDone) epochOf() uint64    { return m.epoch }
func (m captureEvent) epochOf() uint64 { return m.epoch }

// Machine is the session state machine. It is not safe for concurrent use:
// the Controller loop is its only caller.
type Machine struct {
	ctx     context.Context
	id      string
	caps    Capabilities
	deps    Deps
	log     *slog.Logger
	engines map[capture.Variant]capture.Engine
	post    func(msg)
	timers  *timer.Slot

	state    State
	epoch    uint64
	task     model.TaskType
	payload  *model.TaskPayload
	renderer render.Renderer
	view     *render.View
	policy   render.Policy
	capture  *capture.Controller

	timerTag   uint64
	timerLabel string
	remaining  int
	phase      phase

	played      bool
	cue         string
	playbackURL string
	text        string
	verdict     *bool
	locked      bool
	feedback    *model.Feedback
	errMsg      string
	notice      string
	unsupported string
}

func newMachine(ctx context.Context, id string, caps Capabilities, deps Deps, engines map[capture.Variant]capture.Engine, post func(msg)) *Machine {
	deps = deps.withDefaults()
	return &Machine{
		ctx:     ctx,
		id:      id,
		caps:    caps,
		deps:    deps,
		log:     deps.Logger.With("session_id", id),
		engines: engines,
		post:    post,
		timers:  timer.NewSlot(deps.Clock),
		state:   StateIdle,
	}
}

// Deliver applies an async result. Results from a superseded epoch are
// dropped here and nowhere else.
func (m *Machine) Deliver(in msg) {
	if in.epochOf() != m.epoch {
		m.log.Debug("discarding stale result", "epoch", in.epochOf(), "current_epoch", m.epoch, "type", fmt.Sprintf("%T", in))
		return
	}
	switch v := in.(type) {
	case loadDone:
		m.onLoad(v)
	case evalDone:
		m.onEvaluated(v)
	case timerTick:
		if v.tag != m.timerTag {
			return
		}
		m.remaining = v.remaining
		m.deps.Notifier.Notify(m.id, Message{Type: MsgTick, Payload: TimerView{Label: m.timerLabel, Remaining: v.remaining}})
		return
	case timerDone:
		if v.tag != m.timerTag {
			return
		}
		m.onTimerDone()
	case captureEvent:
		m.onCapture(v)
	}
	m.publish()
}

func (m *Machine) SelectTask(t model.TaskType) error {
	r, err := m.deps.Registry.For(t)
	if err != nil {
		return err
	}
	m.reset()
	m.state = StateLoading
	m.task = t
	m.renderer = r
	m.log.Info("loading task", "task", t, "epoch", m.epoch)

	epoch, ctx, ld, post := m.epoch, m.ctx, m.deps.Loader, m.post
	m.deps.Spawn(func() {
		p, err := ld.Load(ctx, t)
		post(loadDone{epoch: epoch, payload: p, err: err})
	})
	m.publish()
	return nil
}

// Dismiss abandons whatever the session is doing and returns it to Idle.
func (m *Machine) Dismiss() {
	m.reset()
	m.publish()
}

func (m *Machine) StartCapture() error {
	if err := m.requireActive(); err != nil {
		return err
	}
	if !m.policy.Spoken() {
		return ErrNotApplicable
	}
	if m.phase == phasePrep {
		return ErrPreparing
	}
	m.played = true
	if err := m.beginCapture(); err != nil {
		return err
	}
	m.publish()
	return nil
}

func (m *Machine) StopCapture() error {
	if m.state != StateCapturing || m.capture == nil {
		return fmt.Errorf("%w: %s", ErrWrongState, m.state)
	}
	if err := m.capture.Stop(); err != nil {
		if errors.Is(err, capture.ErrNotRecording) {
			return fmt.Errorf("%w: capture is %s", ErrWrongState, m.capture.State())
		}
		return err
	}
	m.log.Info("capture stopping", "task", m.task, "epoch", m.epoch)
	m.publish()
	return nil
}

// PlaybackDone is reported by the client when the prompt audio has finished.
func (m *Machine) PlaybackDone() error {
	if err := m.requireActive(); err != nil {
		return err
	}
	if m.policy.Kind != render.PolicyAfterPlayback {
		return ErrNotApplicable
	}
	if m.played {
		return nil
	}
	m.played = true
	if err := m.beginCapture(); err != nil {
		m.publish()
		return err
	}
	m.publish()
	return nil
}

// UpdateText replaces the written response and returns its word count.
func (m *Machine) UpdateText(text string) (int, error) {
	if err := m.requireActive(); err != nil {
		return 0, err
	}
	if m.policy.Kind != render.PolicyTextInput {
		return 0, ErrNotApplicable
	}
	m.text = text
	return util.WordCount(text), nil
}

// Submit sends the written response for evaluation. A response below the
// task minimum is rejected and the task stays active.
func (m *Machine) Submit() error {
	if err := m.requireActive(); err != nil {
		return err
	}
	if m.policy.Kind != render.PolicyTextInput {
		return ErrNotApplicable
	}
	if err := m.policy.CheckText(m.text); err != nil {
		return err
	}
	if err := m.submitText(); err != nil {
		return err
	}
	m.publish()
	return nil
}

// CheckOrder compares order with the paragraph's solution. A correct
// verdict locks the task.
func (m *Machine) CheckOrder(order []int) (bool, error) {
	if err := m.requireActive(); err != nil {
		return false, err
	}
	if m.policy.Kind != render.PolicyLocalOrder {
		return false, ErrNotApplicable
	}
	if m.locked {
		return true, ErrLocked
	}
	resp, err := m.renderer.Respond(m.payload, render.Input{Order: order})
	if err != nil {
		return false, err
	}
	correct := render.CheckOrder(m.payload.Reorder.Solution, resp.Order)
	m.verdict = &correct
	m.locked = correct
	m.log.Info("order checked", "task", m.task, "epoch", m.epoch, "correct", correct)
	m.publish()
	return correct, nil
}

// SelectOption answers a multiple-choice task. It is graded locally and
// cannot be changed afterwards.
func (m *Machine) SelectOption(index int) error {
	if err := m.requireActive(); err != nil {
		return err
	}
	if m.policy.Kind != render.PolicyLocalChoice {
		return ErrNotApplicable
	}
	resp, err := m.renderer.Respond(m.payload, render.Input{Choice: &index})
	if err != nil {
		return err
	}
	m.showFeedback(render.CheckChoice(m.payload.Choice, *resp.Choice))
	m.publish()
	return nil
}

func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		ID:           m.id,
		State:        m.state,
		Epoch:        m.epoch,
		Capabilities: m.caps,
		Task:         m.task,
		Cue:          m.cue,
		PlaybackURL:  m.playbackURL,
		WordCount:    util.WordCount(m.text),
		Locked:       m.locked,
		Feedback:     m.feedback,
		Error:        m.errMsg,
		Notice:       m.notice,
		Unsupported:  m.unsupported,
	}
	if m.view != nil {
		v := *m.view
		s.View = &v
		s.Policy = m.policy.Kind
	}
	if m.capture != nil {
		s.Capture = m.capture.State()
		s.Variant = m.capture.Variant()
		s.Cycle = m.capture.Cycle()
	}
	if m.phase != phaseNone {
		s.Timer = &TimerView{Label: m.timerLabel, Remaining: m.remaining}
	}
	if m.verdict != nil {
		v := *m.verdict
		s.Verdict = &v
	}
	return s
}

// reset tears down the current task: the timer is cancelled, any capture is
// aborted and the epoch advances so in-flight results are ignored.
func (m *Machine) reset() {
	m.stopTimer()
	if m.capture != nil {
		m.capture.Abort()
	}
	m.epoch++
	m.state = StateIdle
	m.task = ""
	m.payload = nil
	m.renderer = nil
	m.view = nil
	m.policy = render.Policy{}
	m.capture = nil
	m.played = false
	m.cue = ""
	m.playbackURL = ""
	m.text = ""
	m.verdict = nil
	m.locked = false
	m.feedback = nil
	m.errMsg = ""
	m.notice = ""
	m.unsupported = ""
}

// requireActive guards task commands. A failed session is returned to Idle
// by whatever the user does next, though the command itself is refused.
func (m *Machine) requireActive() error {
	switch m.state {
	case StateActive:
		return nil
	case StateCapturing:
		return ErrCaptureActive
	case StateError:
		m.reset()
		m.publish()
		return fmt.Errorf("%w: %s", ErrWrongState, StateError)
	}
	return fmt.Errorf("%w: %s", ErrWrongState, m.state)
}

func (m *Machine) fail(message string) {
	m.stopTimer()
	if m.capture != nil {
		m.capture.Abort()
		m.capture = nil
	}
	m.state = StateError
	m.errMsg = message
	m.log.Warn("task failed", "task", m.task, "epoch", m.epoch, "error", message)
}

func (m *Machine) onLoad(v loadDone) {
	if v.err != nil {
		m.fail(loadMessage(v.err))
		return
	}
	view, policy, err := m.renderer.Mount(v.payload)
	if err != nil {
		m.fail("Failed to load task: " + err.Error())
		return
	}
	m.payload = v.payload
	m.view = &view
	m.policy = policy
	m.state = StateActive
	m.log.Info("task mounted", "task", m.task, "epoch", m.epoch, "policy", policy.Kind)

	if policy.Spoken() {
		m.prepareCapture()
	}
	switch policy.Kind {
	case render.PolicyDelayed:
		m.startTimer(policy.PrepSeconds, "Preparation Time", phasePrep)
	case render.PolicyAfterPlayback:
		if !m.caps.SpeechSynthesis && view.Speak != "" {
			m.playbackURL = "/api/tts?text=" + url.QueryEscape(view.Speak)
		}
	case render.PolicyTextInput:
		if policy.Seconds > 0 {
			m.startTimer(policy.Seconds, "Time Remaining", phaseWriting)
		}
	}
}

func loadMessage(err error) string {
	var le *loader.LoadError
	if errors.As(err, &le) {
		if le.Err != nil && !le.Malformed {
			return fmt.Sprintf("Failed to load task: %s: %v", le.Reason, le.Err)
		}
		return "Failed to load task: " + le.Reason
	}
	return "Failed to load task: " + err.Error()
}

// prepareCapture picks transcription when the client can recognise speech
// and raw recording when it only has a microphone.
func (m *Machine) prepareCapture() {
	var variant capture.Variant
	switch {
	case m.caps.SpeechRecognition:
		variant = capture.VariantTranscription
	case m.caps.Microphone:
		variant = capture.VariantRecording
	default:
		m.unsupported = noticeUnsupported
		return
	}
	engine, ok := m.engines[variant]
	if !ok {
		m.unsupported = noticeUnsupported
		return
	}
	m.capture = capture.NewController(variant, engine)
	_ = m.capture.Arm()
}

func (m *Machine) beginCapture() error {
	if m.capture == nil {
		return ErrCaptureUnavailable
	}
	epoch, post := m.epoch, m.post
	err := m.capture.Start(m.ctx, epoch, func(cycle uint64, ev capture.Event) {
		post(captureEvent{epoch: epoch, cycle: cycle, ev: ev})
	})
	switch {
	case errors.Is(err, capture.ErrActive):
		return ErrCaptureActive
	case err != nil:
		m.setNotice(fmt.Sprintf("Error: %v. Please try again.", err))
		return err
	}
	m.state = StateCapturing
	m.notice = ""
	m.log.Info("capture started", "task", m.task, "epoch", m.epoch, "variant", m.capture.Variant(), "cycle", m.capture.Cycle())
	if m.policy.AnswerSeconds > 0 {
		m.startTimer(m.policy.AnswerSeconds, "Answering Time", phaseAnswer)
	} else {
		m.stopTimer()
	}
	return nil
}

func (m *Machine) onCapture(v captureEvent) {
	if m.capture == nil {
		return
	}
	if v.ev.Kind == capture.EventError && v.ev.Err != nil && v.cycle == m.capture.Cycle() {
		m.setNotice(fmt.Sprintf("Error: %v. Please try again.", v.ev.Err))
	}
	out, done := m.capture.Handle(v.cycle, v.ev)
	if !done {
		return
	}
	m.stopTimer()
	if out.Inaudible {
		m.state = StateActive
		if lastErr := m.capture.LastError(); lastErr != nil {
			m.setNotice(fmt.Sprintf("Error: %v. Please try again.", lastErr))
		} else {
			m.setNotice(noticeInaudible)
		}
		m.log.Info("nothing heard, capture re-armed", "task", m.task, "epoch", m.epoch)
		return
	}
	resp, err := m.renderer.Respond(m.payload, render.Input{Transcript: out.Transcript, Audio: out.Audio})
	if err != nil {
		m.fail(err.Error())
		return
	}
	m.evaluate(resp)
}

func (m *Machine) onTimerDone() {
	ph := m.phase
	m.phase = phaseNone
	m.remaining = 0

	switch ph {
	case phasePrep:
		m.cue = cueBeep
		if err := m.beginCapture(); err != nil {
			m.log.Warn("auto capture failed", "task", m.task, "epoch", m.epoch, "error", err)
		}
	case phaseAnswer:
		if m.capture != nil && m.capture.State() == capture.StateRecording {
			m.log.Info("answer window elapsed, stopping capture", "task", m.task, "epoch", m.epoch)
			_ = m.capture.Stop()
		}
	case phaseWriting:
		if m.state != StateActive {
			return
		}
		if strings.TrimSpace(m.text) == "" {
			m.fail("Time expired with no response.")
			return
		}
		if err := m.submitText(); err != nil {
			m.fail(err.Error())
		}
	}
}

func (m *Machine) submitText() error {
	resp, err := m.renderer.Respond(m.payload, render.Input{Text: m.text})
	if err != nil {
		return err
	}
	m.stopTimer()
	m.evaluate(resp)
	return nil
}

func (m *Machine) evaluate(resp *model.Response) {
	m.state = StateEvaluating
	m.log.Info("evaluating response", "task", m.task, "epoch", m.epoch)

	epoch, ctx, ev, post := m.epoch, m.ctx, m.deps.Evaluator, m.post
	m.deps.Spawn(func() {
		fb, err := ev.Evaluate(ctx, resp)
		post(evalDone{epoch: epoch, feedback: fb, err: err})
	})
}

func (m *Machine) onEvaluated(v evalDone) {
	if m.state != StateEvaluating {
		return
	}
	if v.err != nil {
		m.fail("Error during evaluation: " + v.err.Error())
		return
	}
	m.showFeedback(v.feedback)
}

func (m *Machine) showFeedback(fb *model.Feedback) {
	m.stopTimer()
	m.state = StateShowingFeedback
	m.feedback = fb
	m.log.Info("feedback ready", "task", m.task, "epoch", m.epoch, "score", fb.OverallScore, "max", fb.MaxScore)

	rec := m.deps.Recorder
	if rec == nil {
		return
	}
	ctx, id, payload, log := m.ctx, m.id, m.payload, m.log
	m.deps.Spawn(func() {
		if err := rec.Record(ctx, id, payload, fb); err != nil {
			log.Warn("failed to record attempt", "error", err)
		}
	})
}

func (m *Machine) startTimer(seconds int, label string, ph phase) {
	m.timerTag++
	tag, epoch, post := m.timerTag, m.epoch, m.post
	m.timerLabel = label
	m.remaining = seconds
	m.phase = ph
	m.timers.Start(seconds, label,
		func(left int) { post(timerTick{epoch: epoch, tag: tag, remaining: left}) },
		func() { post(timerDone{epoch: epoch, tag: tag}) },
	)
}

func (m *Machine) stopTimer() {
	m.timers.Stop()
	m.timerTag++
	m.phase = phaseNone
	m.timerLabel = ""
	m.remaining = 0
}

func (m *Machine) setNotice(text string) {
	m.notice = text
	m.deps.Notifier.Notify(m.id, Message{Type: MsgNotice, Payload: map[string]string{"message": text}})
}

func (m *Machine) publish() {
	m.deps.Notifier.Notify(m.id, Message{Type: MsgView, Payload: m.Snapshot()})
}
