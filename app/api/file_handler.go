package api

import (
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"

	"ragkb/app/agent"
	"ragkb/loader"
	"ragkb/types"
)

// FileHandler ingests an uploaded .txt, .md or .pdf file as the new corpus.
type FileHandler struct {
	pipeline  *agent.Pipeline
	converter *loader.Converter
}

func NewFileHandler(pipeline *agent.Pipeline, converter *loader.Converter) *FileHandler {
	return &FileHandler{
		pipeline:  pipeline,
		converter: converter,
	}
}

func (h *FileHandler) HandleIngestFile(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return NewError(fiber.StatusBadRequest, KindBadRequest, "multipart field 'file' is required")
	}
	if !h.converter.Supported(fileHeader.Filename) {
		return NewError(fiber.StatusUnsupportedMediaType, KindBadRequest, "unsupported file type: "+filepath.Ext(fileHeader.Filename))
	}

	dir, err := os.MkdirTemp("", "ragkb-upload-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, filepath.Base(fileHeader.Filename))
	if err := c.SaveFile(fileHeader, path); err != nil {
		return err
	}

	text, err := h.converter.ToText(c.UserContext(), path)
	if err != nil {
		return err
	}

	res, err := h.pipeline.Ingest(c.UserContext(), text)
	if err != nil {
		return err
	}

	return c.JSON(types.IngestResponse{Status: "indexed", Chunks: res.ChunkCount})
}
