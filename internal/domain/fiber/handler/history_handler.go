package handler

import (
	"context"
	"errors"
	"time"

	"github.com/fadilmartias/pte-practice/internal/dto"
	"github.com/fadilmartias/pte-practice/internal/response"
	"github.com/fadilmartias/pte-practice/internal/util"
	"github.com/gofiber/fiber/v2"
)

var errHistoryDisabled = errors.New("practice history is not enabled")

type HistoryUsecase interface {
	History(ctx context.Context, page, pageSize int) ([]dto.AttemptDTO, *response.Pagination, error)
	ExportHistory(ctx context.Context) ([]byte, error)
}

type HistoryHandler struct {
	uc HistoryUsecase
}

// NewHistoryHandler accepts a nil usecase when no database is configured;
// every route then answers 503.
func NewHistoryHandler(uc HistoryUsecase) *HistoryHandler {
	return &HistoryHandler{uc: uc}
}

func (h *HistoryHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/history", h.List)
	router.Get("/history/export", h.Export)
}

func (h *HistoryHandler) List(c *fiber.Ctx) error {
	if h.uc == nil {
		return h.disabled(c)
	}
	items, page, err := h.uc.History(c.UserContext(), c.QueryInt("page", 1), c.QueryInt("page_size", 20))
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusInternalServerError,
			Message: "failed to load history",
		}, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:       fiber.StatusOK,
		Message:    "Practice history",
		Data:       items,
		Pagination: page,
	})
}

func (h *HistoryHandler) Export(c *fiber.Ctx) error {
	if h.uc == nil {
		return h.disabled(c)
	}
	data, err := h.uc.ExportHistory(c.UserContext())
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusInternalServerError,
			Message: "failed to export history",
		}, err)
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Attachment("pte-history-" + time.Now().Format("20060102") + ".xlsx")
	return c.Send(data)
}

func (h *HistoryHandler) disabled(c *fiber.Ctx) error {
	return util.ErrorResponse(c, util.ErrorResponseFormat{
		Code:    fiber.StatusServiceUnavailable,
		Message: errHistoryDisabled.Error(),
	})
}
