package handlers

import "net/http"

// Client-facing error messages.
const (
	msgFileRequired     = "file field is required"
	msgInvalidImage     = "invalid image format"
	msgFileTooLarge     = "file too large"
	msgPredictionFailed = "prediction failed"
)

// ValidationError is a rejected client input. It maps to a 4xx response.
type ValidationError struct {
	Status  int
	Message string
	reason  string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	errFileRequired    = &ValidationError{Status: http.StatusBadRequest, Message: msgFileRequired, reason: "missing_file"}
	errInvalidImage    = &ValidationError{Status: http.StatusBadRequest, Message: msgInvalidImage, reason: "invalid_image"}
	errUnsupportedType = &ValidationError{Status: http.StatusBadRequest, Message: msgInvalidImage, reason: "unsupported_type"}
	errFileTooLarge    = &ValidationError{Status: http.StatusRequestEntityTooLarge, Message: msgFileTooLarge, reason: "too_large"}
)
