package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fadilmartias/pte-practice/internal/capture"
	"github.com/fadilmartias/pte-practice/internal/evaluation"
	"github.com/fadilmartias/pte-practice/internal/loader"
	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/fadilmartias/pte-practice/internal/render"
	"github.com/fadilmartias/pte-practice/internal/service"
	"github.com/fadilmartias/pte-practice/internal/timer"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Load(ctx context.Context, t model.TaskType) (*model.TaskPayload, error) {
	args := m.Called(ctx, t)
	p, _ := args.Get(0).(*model.TaskPayload)
	return p, args.Error(1)
}

type mockEvaluator struct {
	mock.Mock
}

func (m *mockEvaluator) Evaluate(ctx context.Context, resp *model.Response) (*model.Feedback, error) {
	args := m.Called(ctx, resp)
	fb, _ := args.Get(0).(*model.Feedback)
	return fb, args.Error(1)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Record(ctx context.Context, id string, p *model.TaskPayload, fb *model.Feedback) error {
	return m.Called(ctx, id, p, fb).Error(0)
}

type notes struct {
	mu   sync.Mutex
	msgs []Message
}

func (n *notes) Notify(_ string, msg Message) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
}

func (n *notes) last(kind string) any {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.msgs) - 1; i >= 0; i-- {
		if n.msgs[i].Type == kind {
			return n.msgs[i].Payload
		}
	}
	return nil
}

func (n *notes) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.msgs {
		if m.Type == kind {
			c++
		}
	}
	return c
}

type fakeClock interface {
	timer.Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, n int) error
}

type harness struct {
	t     *testing.T
	ctrl  *Controller
	clock fakeClock
	load  *mockLoader
	eval  *mockEvaluator
	notes *notes
	jobs  chan func()
}

func newHarness(t *testing.T, caps Capabilities, opts ...func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		clock: clockwork.NewFakeClock(),
		load:  &mockLoader{},
		eval:  &mockEvaluator{},
		notes: &notes{},
		jobs:  make(chan func(), 16),
	}
	deps := Deps{
		Loader:    h.load,
		Evaluator: h.eval,
		Registry:  render.NewRegistry(render.DefaultTimings()),
		Notifier:  h.notes,
		Clock:     h.clock,
		Spawn:     func(job func()) { h.jobs <- job },
	}
	for _, o := range opts {
		o(&deps)
	}
	h.ctrl = NewController("test-session", caps, deps)
	t.Cleanup(h.ctrl.Close)
	return h
}

// nextJob returns the next spawned job without running it.
func (h *harness) nextJob() func() {
	h.t.Helper()
	select {
	case job := <-h.jobs:
		return job
	case <-time.After(wait):
		h.t.Fatal("no job spawned")
		return nil
	}
}

func (h *harness) runJob() {
	h.t.Helper()
	h.nextJob()()
}

func (h *harness) waitFor(cond func(s Snapshot) bool) Snapshot {
	h.t.Helper()
	var snap Snapshot
	require.Eventually(h.t, func() bool {
		s, err := h.ctrl.Snapshot()
		if err != nil {
			return false
		}
		snap = s
		return cond(s)
	}, wait, 5*time.Millisecond)
	return snap
}

// waiters blocks until exactly n timers hold a ticker on the clock.
func (h *harness) waiters(n int) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(h.t, h.clock.BlockUntilContext(ctx, n), "want %d live timers", n)
}

// elapse moves the clock forward one second at a time and waits for each
// tick to reach the notifier before the next.
func (h *harness) elapse(seconds int) {
	h.t.Helper()
	for i := 0; i < seconds; i++ {
		h.waiters(1)
		before := h.notes.count(MsgTick)
		h.clock.Advance(time.Second)
		require.Eventually(h.t, func() bool { return h.notes.count(MsgTick) > before }, wait, time.Millisecond)
	}
}

func (h *harness) tag() capture.Tag {
	h.t.Helper()
	snap, err := h.ctrl.Snapshot()
	require.NoError(h.t, err)
	return capture.Tag{Epoch: snap.Epoch, Cycle: snap.Cycle}
}

func (h *harness) waitState(state State) Snapshot {
	h.t.Helper()
	return h.waitFor(func(s Snapshot) bool { return s.State == state })
}

func (h *harness) mount(t model.TaskType, p *model.TaskPayload) Snapshot {
	h.t.Helper()
	h.load.On("Load", mock.Anything, t).Return(p, nil).Once()
	_, err := h.ctrl.SelectTask(t)
	require.NoError(h.t, err)
	h.runJob()
	return h.waitState(StateActive)
}

func speak(h *harness, text string) {
	h.t.Helper()
	tag := h.tag()
	require.NoError(h.t, h.ctrl.PushSpeech(tag, capture.Event{Kind: capture.EventResult, Segments: []capture.Segment{{Text: text, Final: true}}}))
	require.NoError(h.t, h.ctrl.PushSpeech(tag, capture.Event{Kind: capture.EventEnd}))
}

var allCaps = Capabilities{SpeechRecognition: true, Microphone: true, SpeechSynthesis: true}

func readAloudPayload() *model.TaskPayload {
	return &model.TaskPayload{Type: model.TaskReadAloud, ReadAloud: &model.ReadAloudPayload{Text: "The quick brown fox."}}
}

func spokenFeedback() *model.Feedback {
	return &model.Feedback{TaskType: model.TaskReadAloud, OverallScore: 70, MaxScore: 90}
}

func TestDescribeImageTimedPhases(t *testing.T) {
	h := newHarness(t, allCaps)
	snap := h.mount(model.TaskDescribeImage, &model.TaskPayload{
		Type:          model.TaskDescribeImage,
		DescribeImage: &model.DescribeImagePayload{ImageURL: "https://images.example.com/1.jpg", Alt: "a busy market", Photographer: "Ana"},
	})
	require.NotNil(t, snap.Timer)
	assert.Equal(t, "Preparation Time", snap.Timer.Label)
	assert.Equal(t, 25, snap.Timer.Remaining)
	assert.Equal(t, capture.StateArmed, snap.Capture)

	_, err := h.ctrl.StartCapture()
	assert.ErrorIs(t, err, ErrPreparing)

	h.elapse(24)
	snap = h.waitFor(func(s Snapshot) bool { return s.Timer != nil && s.Timer.Remaining == 1 })
	assert.Equal(t, StateActive, snap.State)

	h.elapse(1)
	snap = h.waitState(StateCapturing)
	assert.Equal(t, "beep", snap.Cue)
	assert.Equal(t, capture.StateRecording, snap.Capture)
	require.NotNil(t, snap.Timer)
	assert.Equal(t, "Answering Time", snap.Timer.Label)
	assert.Equal(t, 40, snap.Timer.Remaining)
	assert.Equal(t, 1, h.notes.count(MsgCaptureStart))

	h.elapse(40)
	snap = h.waitFor(func(s Snapshot) bool { return s.Capture == capture.StateFinalizing })
	assert.Equal(t, StateCapturing, snap.State)
	assert.Equal(t, 1, h.notes.count(MsgCaptureStop))

	h.eval.On("Evaluate", mock.Anything, mock.MatchedBy(func(r *model.Response) bool {
		return r.TaskType == model.TaskDescribeImage && r.ReferenceText == "An image showing: a busy market" && r.Transcript == "people are shopping"
	})).Return(spokenFeedback(), nil).Once()
	speak(h, "people are shopping")
	h.waitState(StateEvaluating)
	h.runJob()
	snap = h.waitState(StateShowingFeedback)
	assert.Equal(t, 70.0, snap.Feedback.OverallScore)
	assert.Nil(t, snap.Timer)
	h.eval.AssertExpectations(t)
}

func TestStaleEvaluationIsDiscarded(t *testing.T) {
	h := newHarness(t, allCaps)
	h.mount(model.TaskReadAloud, readAloudPayload())

	_, err := h.ctrl.StartCapture()
	require.NoError(t, err)
	speak(h, "the quick brown fox")
	h.waitState(StateEvaluating)
	staleEval := h.nextJob()

	h.load.On("Load", mock.Anything, model.TaskEssay).
		Return(&model.TaskPayload{Type: model.TaskEssay, Essay: &model.EssayPayload{Prompt: "Topic X"}}, nil).Once()
	_, err = h.ctrl.SelectTask(model.TaskEssay)
	require.NoError(t, err)
	h.runJob()
	h.waitState(StateActive)

	h.eval.On("Evaluate", mock.Anything, mock.Anything).Return(spokenFeedback(), nil).Once()
	staleEval()

	snap, err := h.ctrl.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, StateActive, snap.State)
	assert.Equal(t, model.TaskEssay, snap.Task)
	assert.Nil(t, snap.Feedback)
}

func TestRapidSwitchingKeepsOneTimer(t *testing.T) {
	h := newHarness(t, allCaps)
	image := &model.TaskPayload{Type: model.TaskDescribeImage, DescribeImage: &model.DescribeImagePayload{ImageURL: "https://x.example.com/a.png", Alt: "a chart"}}
	essay := &model.TaskPayload{Type: model.TaskEssay, Essay: &model.EssayPayload{Prompt: "Topic"}}
	h.load.On("Load", mock.Anything, model.TaskDescribeImage).Return(image, nil)
	h.load.On("Load", mock.Anything, model.TaskEssay).Return(essay, nil)

	for i := 0; i < 20; i++ {
		tt := model.TaskDescribeImage
		if i%2 == 1 {
			tt = model.TaskEssay
		}
		_, err := h.ctrl.SelectTask(tt)
		require.NoError(t, err)
		h.runJob()
		h.waitFor(func(s Snapshot) bool { return s.State == StateActive && s.Task == tt })
	}

	h.waiters(1)
	snap, err := h.ctrl.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.Timer)
	assert.Equal(t, "Time Remaining", snap.Timer.Label)
	assert.Equal(t, 1200, snap.Timer.Remaining)
}

func TestEmptyTranscriptRearmsCapture(t *testing.T) {
	h := newHarness(t, allCaps)
	h.mount(model.TaskReadAloud, readAloudPayload())

	_, err := h.ctrl.StartCapture()
	require.NoError(t, err)
	_, err = h.ctrl.StartCapture()
	assert.ErrorIs(t, err, ErrCaptureActive)

	tag := h.tag()
	require.NoError(t, h.ctrl.PushSpeech(tag, capture.Event{Kind: capture.EventResult, Segments: []capture.Segment{{Text: "uh", Final: false}}}))
	require.NoError(t, h.ctrl.PushSpeech(tag, capture.Event{Kind: capture.EventEnd}))

	snap := h.waitState(StateActive)
	assert.Equal(t, noticeInaudible, snap.Notice)
	assert.Equal(t, capture.StateArmed, snap.Capture)
	assert.Equal(t, model.TaskReadAloud, snap.Task)

	snap, err = h.ctrl.StartCapture()
	require.NoError(t, err)
	assert.Equal(t, StateCapturing, snap.State)
	assert.Empty(t, snap.Notice)
	h.eval.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything)
}

func TestRecognitionErrorIsReported(t *testing.T) {
	h := newHarness(t, allCaps)
	h.mount(model.TaskReadAloud, readAloudPayload())
	_, err := h.ctrl.StartCapture()
	require.NoError(t, err)

	tag := h.tag()
	require.NoError(t, h.ctrl.PushSpeech(tag, capture.Event{Kind: capture.EventError, Err: errors.New("not-allowed")}))
	require.NoError(t, h.ctrl.PushSpeech(tag, capture.Event{Kind: capture.EventEnd}))

	snap := h.waitState(StateActive)
	assert.Equal(t, "Error: not-allowed. Please try again.", snap.Notice)
	assert.Equal(t, capture.StateArmed, snap.Capture)
}

func TestRecordingFallbackSendsAudio(t *testing.T) {
	h := newHarness(t, Capabilities{Microphone: true, SpeechSynthesis: true})
	snap := h.mount(model.TaskReadAloud, readAloudPayload())
	assert.Equal(t, capture.VariantRecording, snap.Variant)

	_, err := h.ctrl.StartCapture()
	require.NoError(t, err)
	tag := h.tag()
	assert.Equal(t, signalPayload{Variant: capture.VariantRecording, Tag: tag}, h.notes.last(MsgCaptureStart))
	require.NoError(t, h.ctrl.PushAudio(tag, capture.Event{Kind: capture.EventChunk, Chunk: []byte("ab")}))
	require.NoError(t, h.ctrl.PushAudio(tag, capture.Event{Kind: capture.EventChunk, Chunk: []byte("cd")}))
	_, err = h.ctrl.StopCapture()
	require.NoError(t, err)
	assert.Equal(t, signalPayload{Variant: capture.VariantRecording, Tag: tag}, h.notes.last(MsgCaptureStop))
	require.NoError(t, h.ctrl.PushAudio(tag, capture.Event{Kind: capture.EventEnd}))

	h.eval.On("Evaluate", mock.Anything, mock.MatchedBy(func(r *model.Response) bool {
		return string(r.Audio) == "abcd" && r.ReferenceText == "The quick brown fox."
	})).Return(spokenFeedback(), nil).Once()
	h.waitState(StateEvaluating)
	h.runJob()
	h.waitState(StateShowingFeedback)
	assert.ErrorIs(t, h.ctrl.PushSpeech(tag, capture.Event{Kind: capture.EventEnd}), capture.ErrEngineIdle)
}

func TestEventsFromPreviousTaskAreRejected(t *testing.T) {
	h := newHarness(t, Capabilities{SpeechRecognition: true})
	h.mount(model.TaskReadAloud, readAloudPayload())
	_, err := h.ctrl.StartCapture()
	require.NoError(t, err)
	old := h.tag()
	assert.Equal(t, signalPayload{Variant: capture.VariantTranscription, Tag: old}, h.notes.last(MsgCaptureStart))

	h.mount(model.TaskRepeatSentence, &model.TaskPayload{Type: model.TaskRepeatSentence, Repeat: &model.RepeatPayload{Text: "Birds fly south."}})
	snap, err := h.ctrl.PlaybackDone()
	require.NoError(t, err)
	require.Equal(t, StateCapturing, snap.State)
	current := capture.Tag{Epoch: snap.Epoch, Cycle: snap.Cycle}
	require.NotEqual(t, old, current)
	assert.Equal(t, signalPayload{Variant: capture.VariantTranscription, Tag: current}, h.notes.last(MsgCaptureStart))

	late := capture.Event{Kind: capture.EventResult, Segments: []capture.Segment{{Text: "the quick brown fox", Final: true}}}
	assert.ErrorIs(t, h.ctrl.PushSpeech(old, late), capture.ErrStaleEvent)
	assert.ErrorIs(t, h.ctrl.PushSpeech(old, capture.Event{Kind: capture.EventEnd}), capture.ErrStaleEvent)

	snap, err = h.ctrl.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, StateCapturing, snap.State)
	assert.Equal(t, capture.StateRecording, snap.Capture)
	assert.Equal(t, model.TaskRepeatSentence, snap.Task)
	h.eval.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything)

	h.eval.On("Evaluate", mock.Anything, mock.MatchedBy(func(r *model.Response) bool {
		return r.TaskType == model.TaskRepeatSentence && r.Transcript == "birds fly south"
	})).Return(spokenFeedback(), nil).Once()
	speak(h, "birds fly south")
	h.waitState(StateEvaluating)
	h.runJob()
	h.waitState(StateShowingFeedback)
	h.eval.AssertExpectations(t)
}

func TestLoadNetworkFailureShowsReason(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	backend := service.NewBackendServiceWithURL(url, time.Second)

	h := newHarness(t, allCaps, func(d *Deps) {
		d.Loader = loader.New(loader.NewBackendSource(backend))
	})
	_, err := h.ctrl.SelectTask(model.TaskReadAloud)
	require.NoError(t, err)
	h.runJob()

	snap := h.waitState(StateError)
	assert.Contains(t, snap.Error, "Failed to load task")
	assert.Contains(t, snap.Error, "network error")
	assert.Contains(t, snap.Error, "/generate/read-aloud")
	assert.Nil(t, snap.View)

	_, err = h.ctrl.StartCapture()
	assert.ErrorIs(t, err, ErrWrongState)
	snap, err = h.ctrl.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Error)

	snap, err = h.ctrl.SelectTask(model.TaskReadAloud)
	require.NoError(t, err)
	assert.Equal(t, StateLoading, snap.State)
	assert.Empty(t, snap.Error)
}

func TestMalformedPayloadShowsReason(t *testing.T) {
	h := newHarness(t, allCaps, func(d *Deps) {
		d.Loader = loader.New(stubSource(`{"sentences":["only one"],"solution":[0]}`))
	})
	_, err := h.ctrl.SelectTask(model.TaskReorderParagraph)
	require.NoError(t, err)
	h.runJob()
	snap := h.waitState(StateError)
	assert.Contains(t, snap.Error, "sentences")

	snap, err = h.ctrl.Dismiss()
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
}

func TestEssayScenario(t *testing.T) {
	bodies := make(chan map[string]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/evaluate/essay", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies <- body
		w.Write([]byte(`{
			"content": {"score": 4, "max_score": 5, "feedback": "Relevant."},
			"form": {"word_count": 57, "feedback": "Too short.", "score": 0, "is_valid": false},
			"grammar": {"score": 3, "max_score": 5, "feedback": "Some errors."},
			"vocabulary": {"score": 3, "max_score": 5, "feedback": "Basic."},
			"structure": {"score": 2, "max_score": 5, "feedback": "Loose."},
			"overall_score_out_of_90": 41,
			"final_summary": "Write more."
		}`))
	}))
	defer srv.Close()

	rec := &mockRecorder{}
	rec.On("Record", mock.Anything, "test-session", mock.Anything, mock.Anything).Return(nil).Once()
	h := newHarness(t, allCaps, func(d *Deps) {
		d.Evaluator = evaluation.NewDispatcher(service.NewBackendServiceWithURL(srv.URL, 5*time.Second))
		d.Recorder = rec
	})
	snap := h.mount(model.TaskEssay, &model.TaskPayload{Type: model.TaskEssay, Essay: &model.EssayPayload{Prompt: "Topic X"}})
	assert.Equal(t, "Time Remaining", snap.Timer.Label)
	assert.Equal(t, 1200, snap.Timer.Remaining)
	assert.Equal(t, &render.WordRange{Min: 200, Max: 300}, snap.View.WordRange)

	short := "one two three four five six seven eight nine ten"
	count, err := h.ctrl.UpdateText(short)
	require.NoError(t, err)
	assert.Equal(t, 10, count)
	_, err = h.ctrl.Submit()
	assert.ErrorIs(t, err, render.ErrTooShort)
	snap, err = h.ctrl.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, StateActive, snap.State)

	long := short + " remote work changes how teams communicate and plan their days"
	_, err = h.ctrl.UpdateText(long)
	require.NoError(t, err)
	snap, err = h.ctrl.Submit()
	require.NoError(t, err)
	assert.Equal(t, StateEvaluating, snap.State)
	assert.Nil(t, snap.Timer)

	h.runJob()
	snap = h.waitState(StateShowingFeedback)
	assert.Equal(t, map[string]string{"prompt": "Topic X", "essayText": long}, <-bodies)
	require.Len(t, snap.Feedback.Criteria, 5)
	require.NotNil(t, snap.Feedback.Form)
	assert.Equal(t, 57, snap.Feedback.Form.WordCount)
	assert.Equal(t, 41.0, snap.Feedback.OverallScore)

	h.runJob()
	rec.AssertExpectations(t)
}

func TestEvaluationFailureIsTerminal(t *testing.T) {
	h := newHarness(t, allCaps)
	h.mount(model.TaskReadAloud, readAloudPayload())
	_, err := h.ctrl.StartCapture()
	require.NoError(t, err)
	speak(h, "hello")

	h.eval.On("Evaluate", mock.Anything, mock.Anything).
		Return(nil, &evaluation.ServerError{Status: 500, Message: "model overloaded"}).Once()
	h.waitState(StateEvaluating)
	h.runJob()

	snap := h.waitState(StateError)
	assert.Equal(t, "Error during evaluation: model overloaded", snap.Error)
	assert.Empty(t, snap.Capture)
	h.eval.AssertNumberOfCalls(t, "Evaluate", 1)
}

func TestWritingTimerExpiry(t *testing.T) {
	timings := render.DefaultTimings()
	timings.Summary = 2
	summary := &model.TaskPayload{Type: model.TaskSummarizeWrittenText, Summary: &model.SummaryPayload{Text: "A long passage."}}

	t.Run("empty response fails", func(t *testing.T) {
		h := newHarness(t, allCaps, func(d *Deps) { d.Registry = render.NewRegistry(timings) })
		h.mount(model.TaskSummarizeWrittenText, summary)
		h.elapse(2)
		snap := h.waitState(StateError)
		assert.Equal(t, "Time expired with no response.", snap.Error)
	})

	t.Run("text is submitted", func(t *testing.T) {
		h := newHarness(t, allCaps, func(d *Deps) { d.Registry = render.NewRegistry(timings) })
		h.mount(model.TaskSummarizeWrittenText, summary)
		_, err := h.ctrl.UpdateText("short")
		require.NoError(t, err)

		h.eval.On("Evaluate", mock.Anything, mock.MatchedBy(func(r *model.Response) bool {
			return r.Text == "short" && r.ReferenceText == "A long passage."
		})).Return(&model.Feedback{TaskType: model.TaskSummarizeWrittenText, OverallScore: 3, MaxScore: 7}, nil).Once()
		h.elapse(2)
		h.waitState(StateEvaluating)
		h.runJob()
		snap := h.waitState(StateShowingFeedback)
		assert.Equal(t, 7.0, snap.Feedback.MaxScore)
	})
}

func TestAnyActionLeavesErrorState(t *testing.T) {
	timings := render.DefaultTimings()
	timings.Summary = 1
	summary := &model.TaskPayload{Type: model.TaskSummarizeWrittenText, Summary: &model.SummaryPayload{Text: "A long passage."}}
	actions := map[string]func(c *Controller) error{
		"update text": func(c *Controller) error { _, err := c.UpdateText("late"); return err },
		"submit":      func(c *Controller) error { _, err := c.Submit(); return err },
		"playback":    func(c *Controller) error { _, err := c.PlaybackDone(); return err },
		"choice":      func(c *Controller) error { _, err := c.SelectOption(0); return err },
		"reorder":     func(c *Controller) error { _, _, err := c.CheckOrder([]int{0}); return err },
	}
	for name, act := range actions {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, allCaps, func(d *Deps) { d.Registry = render.NewRegistry(timings) })
			h.mount(model.TaskSummarizeWrittenText, summary)
			h.elapse(1)
			before := h.waitState(StateError)

			assert.ErrorIs(t, act(h.ctrl), ErrWrongState)
			snap, err := h.ctrl.Snapshot()
			require.NoError(t, err)
			assert.Equal(t, StateIdle, snap.State)
			assert.Empty(t, snap.Error)
			assert.Nil(t, snap.View)
			assert.Greater(t, snap.Epoch, before.Epoch)
		})
	}
}

func TestAnswerAfterPlayback(t *testing.T) {
	h := newHarness(t, Capabilities{SpeechRecognition: true})
	snap := h.mount(model.TaskAnswerShortQuestion, &model.TaskPayload{
		Type:          model.TaskAnswerShortQuestion,
		ShortQuestion: &model.ShortQuestionPayload{Question: "What do bees make?", Answer: "honey"},
	})
	assert.Equal(t, "What do bees make?", snap.View.Speak)
	assert.Equal(t, "/api/tts?text=What+do+bees+make%3F", snap.PlaybackURL)
	assert.Equal(t, capture.StateArmed, snap.Capture)

	snap, err := h.ctrl.PlaybackDone()
	require.NoError(t, err)
	assert.Equal(t, StateCapturing, snap.State)
	assert.Equal(t, 10, snap.Timer.Remaining)

	h.eval.On("Evaluate", mock.Anything, mock.MatchedBy(func(r *model.Response) bool {
		return r.CorrectAnswer != nil && *r.CorrectAnswer == "honey" && r.Transcript == "honey"
	})).Return(spokenFeedback(), nil).Once()
	speak(h, "honey")
	h.waitState(StateEvaluating)
	h.runJob()
	h.waitState(StateShowingFeedback)
}

func TestUnsupportedCapabilities(t *testing.T) {
	h := newHarness(t, Capabilities{})
	snap := h.mount(model.TaskReadAloud, readAloudPayload())
	assert.Equal(t, noticeUnsupported, snap.Unsupported)
	assert.Empty(t, snap.Capture)

	_, err := h.ctrl.StartCapture()
	assert.ErrorIs(t, err, ErrCaptureUnavailable)
	assert.ErrorIs(t, h.ctrl.PushSpeech(capture.Tag{Epoch: snap.Epoch, Cycle: 1}, capture.Event{Kind: capture.EventEnd}), capture.ErrEngineIdle)

	snap = h.mount(model.TaskEssay, &model.TaskPayload{Type: model.TaskEssay, Essay: &model.EssayPayload{Prompt: "Topic"}})
	assert.Empty(t, snap.Unsupported)
}

func TestReorderVerdict(t *testing.T) {
	h := newHarness(t, allCaps)
	h.mount(model.TaskReorderParagraph, &model.TaskPayload{
		Type: model.TaskReorderParagraph,
		Reorder: &model.ReorderPayload{
			Sentences: []string{"Finally it rained.", "First the clouds came.", "Then the wind rose."},
			Solution:  []int{1, 2, 0},
		},
	})

	for i := 0; i < 2; i++ {
		correct, snap, err := h.ctrl.CheckOrder([]int{0, 1, 2})
		require.NoError(t, err)
		assert.False(t, correct)
		assert.False(t, snap.Locked)
		require.NotNil(t, snap.Verdict)
		assert.False(t, *snap.Verdict)
	}

	correct, snap, err := h.ctrl.CheckOrder([]int{1, 2, 0})
	require.NoError(t, err)
	assert.True(t, correct)
	assert.True(t, snap.Locked)
	assert.Equal(t, StateActive, snap.State)

	_, _, err = h.ctrl.CheckOrder([]int{0, 1, 2})
	assert.ErrorIs(t, err, ErrLocked)
	h.eval.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything)
}

func TestMultipleChoiceGradedLocally(t *testing.T) {
	rec := &mockRecorder{}
	rec.On("Record", mock.Anything, "test-session", mock.Anything, mock.MatchedBy(func(fb *model.Feedback) bool {
		return fb.OverallScore == 0
	})).Return(nil).Once()
	h := newHarness(t, allCaps, func(d *Deps) { d.Recorder = rec })

	correct := 2
	h.mount(model.TaskMultipleChoiceSingle, &model.TaskPayload{
		Type: model.TaskMultipleChoiceSingle,
		Choice: &model.ChoicePayload{
			Passage: "Bees make honey.", Question: "What do bees make?",
			Options: []string{"milk", "silk", "honey"}, CorrectIndex: &correct,
		},
	})

	_, err := h.ctrl.SelectOption(5)
	assert.Error(t, err)

	snap, err := h.ctrl.SelectOption(0)
	require.NoError(t, err)
	assert.Equal(t, StateShowingFeedback, snap.State)
	assert.Equal(t, "Incorrect.", snap.Feedback.Summary)

	_, err = h.ctrl.SelectOption(2)
	assert.ErrorIs(t, err, ErrWrongState)

	h.runJob()
	rec.AssertExpectations(t)
}

func TestCloseRejectsCommands(t *testing.T) {
	h := newHarness(t, allCaps)
	h.mount(model.TaskDescribeImage, &model.TaskPayload{
		Type:          model.TaskDescribeImage,
		DescribeImage: &model.DescribeImagePayload{ImageURL: "https://x.example.com/a.png", Alt: "a map"},
	})
	h.waiters(1)

	h.ctrl.Close()
	h.ctrl.Close()
	_, err := h.ctrl.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)
	h.waiters(0)
}

type stubSource string

func (s stubSource) Name() string                 { return "stub" }
func (s stubSource) Supports(model.TaskType) bool { return true }
func (s stubSource) Fetch(context.Context, model.TaskType) ([]byte, error) {
	return []byte(s), nil
}
