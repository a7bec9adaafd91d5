package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/digital-land/submit/internal/pkg/logger"
)

// ErrorResponse is the standard error envelope for JSON errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("json encode failed", "error", err)
	}
}

// HTML writes an already rendered page.
func HTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		logger.Debug("writing html response", "error", err)
	}
}

// SeeOther redirects after a successful form post.
func SeeOther(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// LogInternal records the real error behind a 500 so the page shown to the
// user can stay generic.
func LogInternal(r *http.Request, err error) {
	logger.Error("internal error", "method", r.Method, "path", r.URL.Path, "error", err)
}
