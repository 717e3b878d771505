package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Error codes returned in the body of every failed request.
const (
	codeInvalidRequest    = "invalid_request"
	codeNotFound          = "not_found"
	codeRunInProgress     = "run_in_progress"
	codeInvalidTransition = "invalid_transition"
	codeInternal          = "internal"
)

// apiError is rendered as {"error": {"code": ..., "message": ...}}.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	AlertID string `json:"alertId,omitempty"`
}

func (e apiError) Error() string { return e.Code + ": " + e.Message }

type errorBody struct {
	Error apiError `json:"error"`
}

func badRequest(format string, args ...any) apiError {
	return apiError{Status: http.StatusBadRequest, Code: codeInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func internalError(err error) apiError {
	return apiError{Status: http.StatusInternalServerError, Code: codeInternal, Message: err.Error()}
}

// decodeBody reads a single JSON object into v. An empty body leaves v
// untouched, so every body this API accepts is optional.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest("malformed body: %v", err)
	}
	if dec.More() {
		return badRequest("body must hold a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
