// Package response writes the {code, message, data} envelope shared by every
// backend endpoint.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/atinyakov/teaadmin/internal/models"
)

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// JSON writes an envelope with the given HTTP status.
func JSON(w http.ResponseWriter, status, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Code: code, Message: message, Data: data})
}

// OK writes a success envelope carrying data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, models.CodeSuccess, "success", data)
}

// Error writes a failure envelope without data.
func Error(w http.ResponseWriter, status, code int, message string) {
	JSON(w, status, code, message, nil)
}
