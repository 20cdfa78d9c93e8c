package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"ragkb/app/agent"
	"ragkb/types"
)

type RequestHandler struct {
	pipeline *agent.Pipeline
	logger   *slog.Logger
}

func NewRequestHandler(pipeline *agent.Pipeline, logger *slog.Logger) *RequestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestHandler{
		pipeline: pipeline,
		logger:   logger.With("component", "api"),
	}
}

func (h *RequestHandler) HandleIngest(c *fiber.Ctx) error {
	var params types.IngestParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	res, err := h.pipeline.Ingest(c.UserContext(), *params.Text)
	if err != nil {
		return err
	}

	return c.JSON(types.IngestResponse{Status: "indexed", Chunks: res.ChunkCount})
}

func (h *RequestHandler) HandleAsk(c *fiber.Ctx) error {
	var params types.AskParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	answer, err := h.pipeline.Ask(c.UserContext(), *params.Question)
	if err != nil {
		return err
	}

	return c.JSON(types.AskResponse{Answer: answer.Answer})
}
