package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"ragkb/app/agent"
	"ragkb/types"
)

type CheckHandler struct {
	pipeline *agent.Pipeline
}

func NewCheckHandler(pipeline *agent.Pipeline) *CheckHandler {
	return &CheckHandler{pipeline: pipeline}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	stats, err := h.pipeline.Stats(c.UserContext())
	if err != nil {
		return err
	}

	resp := types.HealthResponse{
		Result: "ok",
		Ready:  h.pipeline.Ready(),
		Chunks: stats.Chunks,
	}
	if stats.Generation != uuid.Nil {
		resp.Generation = stats.Generation.String()
	}
	return c.JSON(resp)
}
