package server

import (
	"encoding/json"
	"net/http"

	"github.com/voyagen/playlistvault/internal/service"
)

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// writeErr writes err with the status statusFor picks.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	s.writeStatus(w, statusFor(err), err)
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		s.logger.Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: service.ErrorMessage(err),
	})
}
