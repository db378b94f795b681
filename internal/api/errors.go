package api

import (
	"fmt"
	"net/http"

	"okr-go/internal/okr"
)

// Error is a non-2xx response from the OKR API.
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Is lets callers match rejected tokens with errors.Is(err, okr.ErrUnauthorized).
func (e *Error) Is(target error) bool {
	if target == okr.ErrUnauthorized {
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	if target == okr.ErrNotFound {
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// errorBody is the JSON error envelope returned by the API.
type errorBody struct {
	Error string `json:"error"`
}

// Generic messages used when the server gives no usable error text.
const (
	msgRegister         = "registration failed"
	msgLogin            = "login failed"
	msgListObjectives   = "failed to fetch objectives"
	msgCreateObjective  = "failed to create objective"
	msgUpdateObjective  = "failed to update objective"
	msgDeleteObjective  = "failed to delete objective"
	msgCreateKeyResult  = "failed to create key result"
	msgUpdateKeyResult  = "failed to update key result"
	msgDeleteKeyResult  = "failed to delete key result"
	msgListComments     = "failed to fetch comments"
	msgCreateComment    = "failed to create comment"
	msgListNotification = "failed to fetch notifications"
)
