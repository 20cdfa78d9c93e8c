package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"ragkb/types"
)

const (
	KindConfigurationMissing = "configuration_missing"
	KindProviderError        = "provider_error"
	KindBadRequest           = "bad_request"
	KindInternal             = "internal"
)

type Error struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, kind, msg string) Error {
	return Error{
		Code:    code,
		Kind:    kind,
		Message: msg,
	}
}

func ErrBadRequest() Error {
	return NewError(fiber.StatusBadRequest, KindBadRequest, "invalid JSON request")
}

// ErrorHandler maps pipeline and transport errors to JSON payloads. Logging
// is left to the request logger.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var valErr types.ValidationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}

	apiErr := toAPIError(err)
	return c.Status(apiErr.Code).JSON(apiErr)
}

func toAPIError(err error) Error {
	var (
		apiErr   Error
		provErr  *types.ProviderError
		fiberErr *fiber.Error
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, types.ErrConfigurationMissing):
		return NewError(fiber.StatusBadRequest, KindConfigurationMissing, err.Error())
	case errors.As(err, &provErr):
		return NewError(fiber.StatusBadGateway, KindProviderError, err.Error())
	case errors.As(err, &fiberErr):
		kind := KindInternal
		if fiberErr.Code < fiber.StatusInternalServerError {
			kind = KindBadRequest
		}
		return NewError(fiberErr.Code, kind, fiberErr.Message)
	}
	return NewError(fiber.StatusInternalServerError, KindInternal, err.Error())
}
