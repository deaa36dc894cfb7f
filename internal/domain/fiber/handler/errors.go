package handler

import (
	"errors"

	"github.com/fadilmartias/pte-practice/internal/capture"
	"github.com/fadilmartias/pte-practice/internal/render"
	"github.com/fadilmartias/pte-practice/internal/session"
	"github.com/fadilmartias/pte-practice/internal/util"
	"github.com/gofiber/fiber/v2"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		return fiber.StatusGone
	case errors.Is(err, session.ErrWrongState),
		errors.Is(err, session.ErrCaptureActive),
		errors.Is(err, session.ErrPreparing),
		errors.Is(err, session.ErrLocked),
		errors.Is(err, session.ErrNotApplicable),
		errors.Is(err, capture.ErrEngineIdle),
		errors.Is(err, capture.ErrStaleEvent):
		return fiber.StatusConflict
	case errors.Is(err, render.ErrTooShort),
		errors.Is(err, render.ErrNoAnswer),
		errors.Is(err, session.ErrCaptureUnavailable):
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusBadRequest
}

func failure(c *fiber.Ctx, err error) error {
	return util.ErrorResponse(c, util.ErrorResponseFormat{
		Code:    statusFor(err),
		Message: err.Error(),
	}, err)
}

func badRequest(c *fiber.Ctx, message string, err error) error {
	return util.ErrorResponse(c, util.ErrorResponseFormat{
		Code:    fiber.StatusBadRequest,
		Message: message,
	}, err)
}
