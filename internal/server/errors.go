package server

import (
	"encoding/json"
	"errors"
	"net/http"
)

// errorCode classifies an apiError for the JSON error envelope.
type errorCode string

const (
	codeBadRequest    errorCode = "bad_request"
	codeNotFound      errorCode = "not_found"
	codeConflict      errorCode = "conflict"
	codeInternalError errorCode = "internal_error"
)

var statusByCode = map[errorCode]int{
	codeBadRequest:    http.StatusBadRequest,
	codeNotFound:      http.StatusNotFound,
	codeConflict:      http.StatusConflict,
	codeInternalError: http.StatusInternalServerError,
}

// apiError is the error type every handler in this package returns.
type apiError struct {
	code    errorCode
	message string
	cause   error
}

func (e *apiError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *apiError) Unwrap() error { return e.cause }

func (e *apiError) StatusCode() int {
	if status, ok := statusByCode[e.code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func badRequest(message string) *apiError {
	return &apiError{code: codeBadRequest, message: message}
}

func notFound(message string) *apiError {
	return &apiError{code: codeNotFound, message: message}
}

func internalError(message string, cause error) *apiError {
	return &apiError{code: codeInternalError, message: message, cause: cause}
}

type errorBody struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeError writes err as a JSON error envelope with the appropriate
// status code. Any error that isn't an *apiError is treated as internal.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		apiErr = internalError("unexpected error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode())
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: apiErr.code, Message: apiErr.Error()}})
}

// writeJSONResponse writes out as a 200 JSON body, or delegates to
// writeError if err is non-nil.
func writeJSONResponse(w http.ResponseWriter, out any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

// writeAccepted writes a 202 Accepted body for operations dispatched onto
// a background goroutine.
func writeAccepted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}
