package errors

import (
	"net/http"
)

// APIError is implemented by every error the flash API returns to callers
type APIError interface {
	Error() string
	GetStatus() int
}

// Flash API specific error type with context
type apiError struct {
	Code   string `json:"Code"`
	Status int    `json:"Status"`
	Title  string `json:"Title"`
}

func (e *apiError) Error() string { return e.Title }

// GetStatus returns the HTTP status code mapped to this error
func (e *apiError) GetStatus() int { return e.Status }

// APIError type to specifically handle internal server errors
type InternalServerError struct {
	apiError
}

// NewInternalServerError creates a new InternalServerError struct
func NewInternalServerError() *InternalServerError {
	err := new(InternalServerError)
	err.Code = "ERROR"
	err.Title = "Something wrong happened."
	err.Status = http.StatusInternalServerError
	return err
}

// APIError type to specifically handle bad requests
type BadRequest struct {
	apiError
}

// NewBadRequest creates a new BadRequest error struct
func NewBadRequest(message string) *BadRequest {
	err := new(BadRequest)
	err.Code = "BAD_REQUEST"
	err.Title = message
	err.Status = http.StatusBadRequest
	return err
}

// APIError type to specifically handle 404s
type NotFound struct {
	apiError
}

// NewNotFound creates a new NotFound error struct
func NewNotFound(message string) *NotFound {
	err := new(NotFound)
	err.Code = "NOT_FOUND"
	err.Title = message
	err.Status = http.StatusNotFound
	return err
}
