package handler

import (
	"errors"
	"strings"

	"github.com/fadilmartias/pte-practice/internal/service"
	"github.com/fadilmartias/pte-practice/internal/util"
	"github.com/gofiber/fiber/v2"
)

const maxSpeakLength = 2000

type TTSHandler struct {
	tts service.TTSServiceInterface
}

func NewTTSHandler(tts service.TTSServiceInterface) *TTSHandler {
	return &TTSHandler{tts: tts}
}

func (h *TTSHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/tts", h.Speak)
}

// Speak returns the prompt audio for clients that cannot synthesize speech.
func (h *TTSHandler) Speak(c *fiber.Ctx) error {
	text := strings.TrimSpace(c.Query("text"))
	if text == "" {
		return badRequest(c, "text is required", nil)
	}
	if len(text) > maxSpeakLength {
		return badRequest(c, "text is too long", nil)
	}
	audio, contentType, err := h.tts.Synthesize(c.UserContext(), text)
	if err != nil {
		code := fiber.StatusBadGateway
		if errors.Is(err, service.ErrTTSUnavailable) {
			code = fiber.StatusServiceUnavailable
		}
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    code,
			Message: "speech synthesis unavailable",
		}, err)
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	return c.Send(audio)
}
