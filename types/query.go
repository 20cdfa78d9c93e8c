package types

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

// Text and Question must be present but may be empty.
type IngestParams struct {
	Text *string `json:"text" validate:"required"`
}

type AskParams struct {
	Question *string `json:"question" validate:"required"`
}

var validate = validator.New()

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *IngestParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *AskParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(s any) map[string]string {
	if err := validate.Struct(s); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: http.StatusUnprocessableEntity,
		Errors: errors,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

type IngestResponse struct {
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
}

type AskResponse struct {
	Answer string `json:"answer"`
}

type HealthResponse struct {
	Result     string `json:"result"`
	Ready      bool   `json:"ready"`
	Chunks     int    `json:"chunks"`
	Generation string `json:"generation,omitempty"`
}
