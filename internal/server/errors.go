package server

import (
	"encoding/json"
	"errors"
	"net/http"

	dserrors "github.com/systmms/userprofile/internal/errors"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		notFound dserrors.NotFoundError
		conflict dserrors.ConflictError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the text sent to clients. Causes of 500s stay in the logs.
func publicMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

func (s *Server) logFailure(r *http.Request, err error, status int) {
	logger := s.logger.With("request_id", r.Header.Get(requestIDHeader), "status", status)
	if status >= http.StatusInternalServerError {
		logger.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
		return
	}
	logger.Debug("%s %s: %v", r.Method, r.URL.Path, err)
}

// failText reports err as plain text, for page and stream routes.
func (s *Server) failText(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logFailure(r, err, status)
	http.Error(w, publicMessage(err, status), status)
}

// failJSON reports err as {"error": "..."}.
func (s *Server) failJSON(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logFailure(r, err, status)
	writeJSON(w, status, map[string]string{"error": publicMessage(err, status)})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
