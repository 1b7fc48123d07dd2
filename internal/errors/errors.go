package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	ErrMalformedBody   = errors.New("malformed request body")
	ErrBackendStatus   = errors.New("backend returned non-2xx response")
	ErrBackendResponse = errors.New("backend returned an unusable payload")
)

// ErrNoUserMessage is returned when a request has no usable user turn.
var ErrNoUserMessage = &ValidationError{Detail: "No user message found in the request"}

// ValidationError is a client-caused failure. It maps to 400.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

// BackendError wraps any failure of the single backend call. It maps to 500.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string { return "Error from API: " + e.Err.Error() }

func (e *BackendError) Unwrap() error { return e.Err }

type detailError struct {
	Detail string `json:"detail"`
}

// WriteDetail writes {"detail": detail} with the given status code.
func WriteDetail(w http.ResponseWriter, statusCode int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(detailError{Detail: detail})
}

// StatusFor maps an error returned by the completion path to an HTTP status.
func StatusFor(err error) int {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
