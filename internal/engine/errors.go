package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// codeGroupExists is the engine error code returned when POST /groups names an existing group.
const codeGroupExists = 1711

// AuthError reports that the engine rejected our credentials or answered the
// authentication call with something we could not use.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string { return "engine authentication failed: " + e.Cause.Error() }
func (e *AuthError) Unwrap() error { return e.Cause }

// ServiceError is returned once every attempt of a call has failed.
type ServiceError struct {
	Method   string
	Endpoint string
	Attempts int
	Last     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("engine %s %s failed after %d attempt(s): %v", e.Method, e.Endpoint, e.Attempts, e.Last)
}

func (e *ServiceError) Unwrap() error { return e.Last }

// StatusError is a non-2xx engine response.
type StatusError struct {
	StatusCode int
	Code       int    // engine "error" field, 0 when absent
	Message    string // detail, message or title from the body, else the raw body
}

func (e *StatusError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("engine returned %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("engine returned %d: %s", e.StatusCode, e.Message)
}

func newStatusError(status int, body []byte) *StatusError {
	se := &StatusError{StatusCode: status}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		se.Message = strings.TrimSpace(string(body))
		return se
	}
	if code, ok := doc["error"].(float64); ok {
		se.Code = int(code)
	}
	for _, k := range []string{"detail", "message", "title"} {
		if s, ok := doc[k].(string); ok && s != "" {
			se.Message = s
			break
		}
	}
	if se.Message == "" {
		se.Message = strings.TrimSpace(string(body))
	}
	return se
}

// IsGroupExists reports whether err means the group is already present on the engine.
// The structured code wins; the message match covers engines that omit it.
func IsGroupExists(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code == codeGroupExists {
		return true
	}
	return strings.Contains(err.Error(), "already exists")
}
