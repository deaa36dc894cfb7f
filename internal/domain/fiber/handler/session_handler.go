package handler

import (
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/fadilmartias/pte-practice/internal/capture"
	"github.com/fadilmartias/pte-practice/internal/dto"
	"github.com/fadilmartias/pte-practice/internal/middleware"
	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/fadilmartias/pte-practice/internal/session"
	"github.com/fadilmartias/pte-practice/internal/util"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const maxChunkSize = 5 * 1024 * 1024

type SessionManager interface {
	Create(caps session.Capabilities) *session.Controller
	Get(id string) (*session.Controller, error)
	Delete(id string) error
}

type SessionHandler struct {
	sessions SessionManager
	validate *validator.Validate
}

func NewSessionHandler(sessions SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions, validate: util.NewValidator()}
}

func (h *SessionHandler) RegisterRoutes(router fiber.Router) {
	s := router.Group("/sessions")
	s.Post("/", middleware.RateLimiter(10, time.Minute), h.Create)
	s.Get("/:id", h.Get)
	s.Delete("/:id", h.Delete)
	s.Post("/:id/task", h.SelectTask)
	s.Post("/:id/dismiss", h.Dismiss)
	s.Post("/:id/capture/start", h.StartCapture)
	s.Post("/:id/capture/stop", h.StopCapture)
	relay := middleware.SessionRateLimiter(600, time.Minute)
	s.Post("/:id/speech", relay, h.Speech)
	s.Post("/:id/audio", relay, h.Audio)
	s.Post("/:id/playback-done", h.PlaybackDone)
	s.Put("/:id/text", h.UpdateText)
	s.Post("/:id/submit", h.Submit)
	s.Post("/:id/reorder", h.Reorder)
	s.Post("/:id/choice", h.Choice)
}

func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body", err)
		}
	}
	ctrl := h.sessions.Create(session.Capabilities{
		SpeechRecognition: req.Capabilities.SpeechRecognition,
		Microphone:        req.Capabilities.Microphone,
		SpeechSynthesis:   req.Capabilities.SpeechSynthesis,
	})
	snap, err := ctrl.Snapshot()
	if err != nil {
		return failure(c, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusCreated,
		Message: "Session created",
		Data:    snap,
	})
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	return h.withSession(c, "Session", func(ctrl *session.Controller) (any, error) {
		return ctrl.Snapshot()
	})
}

func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	if err := h.sessions.Delete(c.Params("id")); err != nil {
		return failure(c, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusOK,
		Message: "Session closed",
	})
}

func (h *SessionHandler) SelectTask(c *fiber.Ctx) error {
	var req dto.SelectTaskRequest
	if err := h.parse(&req, c); err != nil {
		return h.invalid(c, err)
	}
	t, err := model.ParseTaskType(req.TaskType)
	if err != nil {
		return badRequest(c, err.Error(), err)
	}
	return h.withSession(c, "Task loading", func(ctrl *session.Controller) (any, error) {
		return ctrl.SelectTask(t)
	})
}

func (h *SessionHandler) Dismiss(c *fiber.Ctx) error {
	return h.withSession(c, "Session reset", func(ctrl *session.Controller) (any, error) {
		return ctrl.Dismiss()
	})
}

func (h *SessionHandler) StartCapture(c *fiber.Ctx) error {
	return h.withSession(c, "Capture started", func(ctrl *session.Controller) (any, error) {
		return ctrl.StartCapture()
	})
}

func (h *SessionHandler) StopCapture(c *fiber.Ctx) error {
	return h.withSession(c, "Capture stopping", func(ctrl *session.Controller) (any, error) {
		return ctrl.StopCapture()
	})
}

func (h *SessionHandler) Speech(c *fiber.Ctx) error {
	var req dto.SpeechEventRequest
	if err := h.parse(&req, c); err != nil {
		return h.invalid(c, err)
	}
	tag := capture.Tag{Epoch: req.Epoch, Cycle: req.Cycle}
	ev := capture.Event{Kind: capture.EventKind(req.Kind), Segments: req.Segments}
	if req.Kind == string(capture.EventError) {
		ev.Err = errors.New(req.Error)
	}
	return h.withSession(c, "Event accepted", func(ctrl *session.Controller) (any, error) {
		return nil, ctrl.PushSpeech(tag, ev)
	})
}

// Audio accepts either a multipart "chunk" of recorded audio or a JSON
// lifecycle event. Both carry the epoch and cycle of the capture.
func (h *SessionHandler) Audio(c *fiber.Ctx) error {
	var (
		tag capture.Tag
		ev  capture.Event
	)
	if file, err := c.FormFile("chunk"); err == nil {
		if tag, err = formTag(c); err != nil {
			return badRequest(c, "epoch and cycle are required", err)
		}
		if file.Size > maxChunkSize {
			return badRequest(c, "chunk is too large (max 5MB)", nil)
		}
		f, err := file.Open()
		if err != nil {
			return badRequest(c, "cannot read chunk", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return badRequest(c, "cannot read chunk", err)
		}
		ev = capture.Event{Kind: capture.EventChunk, Chunk: data}
	} else {
		var req dto.AudioEventRequest
		if err := h.parse(&req, c); err != nil {
			return h.invalid(c, err)
		}
		tag = capture.Tag{Epoch: req.Epoch, Cycle: req.Cycle}
		ev = capture.Event{Kind: capture.EventKind(req.Kind)}
		if req.Kind == string(capture.EventError) {
			ev.Err = errors.New(req.Error)
		}
	}
	return h.withSession(c, "Event accepted", func(ctrl *session.Controller) (any, error) {
		return nil, ctrl.PushAudio(tag, ev)
	})
}

func formTag(c *fiber.Ctx) (capture.Tag, error) {
	epoch, err := strconv.ParseUint(c.FormValue("epoch"), 10, 64)
	if err != nil {
		return capture.Tag{}, err
	}
	cycle, err := strconv.ParseUint(c.FormValue("cycle"), 10, 64)
	if err != nil {
		return capture.Tag{}, err
	}
	if epoch == 0 || cycle == 0 {
		return capture.Tag{}, errors.New("epoch and cycle must be positive")
	}
	return capture.Tag{Epoch: epoch, Cycle: cycle}, nil
}

func (h *SessionHandler) PlaybackDone(c *fiber.Ctx) error {
	return h.withSession(c, "Playback finished", func(ctrl *session.Controller) (any, error) {
		return ctrl.PlaybackDone()
	})
}

func (h *SessionHandler) UpdateText(c *fiber.Ctx) error {
	var req dto.UpdateTextRequest
	if err := h.parse(&req, c); err != nil {
		return h.invalid(c, err)
	}
	return h.withSession(c, "Text updated", func(ctrl *session.Controller) (any, error) {
		count, err := ctrl.UpdateText(req.Text)
		return fiber.Map{"wordCount": count}, err
	})
}

func (h *SessionHandler) Submit(c *fiber.Ctx) error {
	return h.withSession(c, "Response submitted", func(ctrl *session.Controller) (any, error) {
		return ctrl.Submit()
	})
}

func (h *SessionHandler) Reorder(c *fiber.Ctx) error {
	var req dto.ReorderRequest
	if err := h.parse(&req, c); err != nil {
		return h.invalid(c, err)
	}
	return h.withSession(c, "Order checked", func(ctrl *session.Controller) (any, error) {
		correct, snap, err := ctrl.CheckOrder(req.Order)
		verdict := "Incorrect"
		if correct {
			verdict = "Correct"
		}
		return fiber.Map{"correct": correct, "verdict": verdict, "session": snap}, err
	})
}

func (h *SessionHandler) Choice(c *fiber.Ctx) error {
	var req dto.ChoiceRequest
	if err := h.parse(&req, c); err != nil {
		return h.invalid(c, err)
	}
	return h.withSession(c, "Answer graded", func(ctrl *session.Controller) (any, error) {
		return ctrl.SelectOption(*req.Index)
	})
}

func (h *SessionHandler) withSession(c *fiber.Ctx, message string, fn func(ctrl *session.Controller) (any, error)) error {
	ctrl, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return failure(c, err)
	}
	data, err := fn(ctrl)
	if err != nil {
		return failure(c, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusOK,
		Message: message,
		Data:    data,
	})
}

func (h *SessionHandler) parse(req any, c *fiber.Ctx) error {
	if err := c.BodyParser(req); err != nil {
		return err
	}
	return h.validate.Struct(req)
}

func (h *SessionHandler) invalid(c *fiber.Ctx, err error) error {
	if formErr := util.FormErrorFrom(err); formErr != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{}, formErr)
	}
	return badRequest(c, "invalid request body", err)
}
