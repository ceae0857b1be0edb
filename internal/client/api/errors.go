package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/atinyakov/teaadmin/internal/models"
)

// ErrUnauthorized is matched (errors.Is) by every error produced from a
// 401 response.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a failure reported by the backend, either through the HTTP status
// or through a non-zero envelope code.
type Error struct {
	Status  int
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error: status %d, code %d", e.Status, e.Code)
	}
	return e.Message
}

// Unwrap exposes ErrUnauthorized for 401 responses.
func (e *Error) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// errorBody covers both the envelope and the bare {"error": "..."} shape.
type errorBody struct {
	Code    json.Number `json:"code"`
	Message string      `json:"message"`
	Error   string      `json:"error"`
}

func decodeError(status int, body []byte) *Error {
	e := &Error{Status: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if n, err := eb.Code.Int64(); err == nil {
			e.Code = int(n)
		}
		switch {
		case eb.Message != "":
			e.Message = eb.Message
		case eb.Error != "":
			e.Message = eb.Error
		}
	} else if text := strings.TrimSpace(string(body)); text != "" {
		e.Message = text
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// unwrap decodes a successful response. A {"data": ...} envelope is
// preferred; otherwise the body itself is the payload.
func unwrap(status int, body []byte, out any) error {
	if len(body) == 0 {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err == nil && isEnvelope(fields) {
		var env models.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("invalid response: %w", err)
		}
		if env.Code != models.CodeSuccess {
			return &Error{Status: status, Code: env.Code, Message: env.Message}
		}
		if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
			return nil
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("invalid response: %w", err)
		}
		return nil
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

// isEnvelope tells a {code,message,data} wrapper apart from a bare payload
// that happens to contain a "code" key, such as a captcha.
func isEnvelope(fields map[string]json.RawMessage) bool {
	if _, ok := fields["data"]; ok {
		return true
	}
	code, hasCode := fields["code"]
	_, hasMessage := fields["message"]
	if !hasCode || !hasMessage {
		return false
	}
	code = bytes.TrimSpace(code)
	return len(code) > 0 && (code[0] == '-' || (code[0] >= '0' && code[0] <= '9'))
}
