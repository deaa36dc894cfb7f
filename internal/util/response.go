package util

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/fadilmartias/pte-practice/internal/config"
	"github.com/fadilmartias/pte-practice/internal/response"
	"github.com/gofiber/fiber/v2"
)

type SuccessResponseFormat struct {
	Code       int
	Message    string
	Data       any
	Pagination *response.Pagination
	Meta       any
}

type OrderedSuccessResponse struct {
	Success    bool                 `json:"success"`
	Message    string               `json:"message"`
	Meta       any                  `json:"meta,omitempty"`
	Pagination *response.Pagination `json:"pagination,omitempty"`
	Data       any                  `json:"data,omitempty"`
}

type ErrorResponseFormat struct {
	Code       int
	Message    string
	DevMessage string
	Details    any
}

type OrderedErrorResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	DevMessage string `json:"dev_message,omitempty"`
	Details    any    `json:"details,omitempty"`
	Trace      string `json:"trace,omitempty"`
}

// FormError reports per-field problems with a request body.
type FormError struct {
	Errors  map[string]string
	Message string
}

func (e *FormError) Error() string {
	return fmt.Sprintf("form error: %s", e.Message)
}

func NewFormError(message string, errors map[string]string) *FormError {
	return &FormError{
		Message: message,
		Errors:  errors,
	}
}

func SuccessResponse(c *fiber.Ctx, params SuccessResponseFormat) error {
	return c.Status(params.Code).JSON(OrderedSuccessResponse{
		Success:    true,
		Message:    params.Message,
		Data:       params.Data,
		Pagination: params.Pagination,
		Meta:       params.Meta,
	})
}

// ErrorResponse writes the error envelope. A FormError cause fills Details
// with its fields and defaults the status to 400. Outside production the
// cause's message is attached, plus a stack trace for 5xx.
func ErrorResponse(c *fiber.Ctx, params ErrorResponseFormat, cause ...error) error {
	var err error
	if len(cause) > 0 {
		err = cause[0]
	}

	code := params.Code
	out := OrderedErrorResponse{Message: params.Message, Details: params.Details}

	var formErr *FormError
	if errors.As(err, &formErr) {
		if out.Details == nil {
			out.Details = formErr.Errors
		}
		if out.Message == "" {
			out.Message = formErr.Message
		}
		if code == 0 {
			code = fiber.StatusBadRequest
		}
	}
	if code == 0 {
		code = fiber.StatusInternalServerError
	}

	if !config.LoadAppConfig().IsProduction() {
		out.DevMessage = params.DevMessage
		if out.DevMessage == "" && err != nil {
			out.DevMessage = err.Error()
		}
		if code >= fiber.StatusInternalServerError {
			out.Trace = string(debug.Stack())
		}
	}
	return c.Status(code).JSON(out)
}
