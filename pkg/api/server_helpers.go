package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/dd0wney/dualdb/pkg/logging"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// MessageResponse acknowledges an admin action.
type MessageResponse struct {
	Message string `json:"message"`
}

// RepairResponse is the outcome of a manual repair.
type RepairResponse struct {
	Table    string `json:"table"`
	Repaired int    `json:"repaired"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("error encoding JSON response", logging.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}
	s.respondJSON(w, status, response)
}

// monitored reports whether table is one of the consistency monitor's tables.
func (s *Server) monitored(table string) bool {
	return slices.Contains(s.backend.SyncTables(), table)
}
