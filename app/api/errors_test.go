package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"ragkb/types"
)

func TestToAPIError(t *testing.T) {
	tests := []struct {
		err  error
		code int
		kind string
	}{
		{types.NewConfigurationError("embedding provider"), fiber.StatusBadRequest, KindConfigurationMissing},
		{fmt.Errorf("ingest: %w", types.NewConfigurationError()), fiber.StatusBadRequest, KindConfigurationMissing},
		{types.NewProviderError("generate", context.DeadlineExceeded), fiber.StatusBadGateway, KindProviderError},
		{ErrBadRequest(), fiber.StatusBadRequest, KindBadRequest},
		{fiber.ErrRequestEntityTooLarge, fiber.StatusRequestEntityTooLarge, KindBadRequest},
		{fiber.ErrServiceUnavailable, fiber.StatusServiceUnavailable, KindInternal},
		{errors.New("disk full"), fiber.StatusInternalServerError, KindInternal},
	}

	for _, tt := range tests {
		got := toAPIError(tt.err)
		assert.Equal(t, tt.code, got.Code, tt.err.Error())
		assert.Equal(t, tt.kind, got.Kind, tt.err.Error())
		assert.NotEmpty(t, got.Message)
	}
}
