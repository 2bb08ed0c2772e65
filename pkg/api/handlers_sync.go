package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/replication"
)

func (s *Server) handleLastSync(w http.ResponseWriter, r *http.Request) {
	report, ok := s.backend.LastSyncReport()
	if !ok {
		s.respondError(w, http.StatusNotFound, "No consistency check has run yet")
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleRunSync(w http.ResponseWriter, r *http.Request) {
	report := s.backend.RunSyncCycle(r.Context())
	s.respondJSON(w, http.StatusOK, report)
}

// handleVerifyTable compares one monitored table. ?content=true adds the
// checksum comparison and ?limit=N samples the first N rows.
func (s *Server) handleVerifyTable(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	if !s.monitored(table) {
		s.respondError(w, http.StatusNotFound, "Table is not monitored: "+table)
		return
	}

	opts, err := verifyOptions(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := s.backend.VerifySynchronization(r.Context(), table, opts...)
	if err != nil {
		// status carries the error text
		s.respondJSON(w, http.StatusBadGateway, status)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func verifyOptions(r *http.Request) ([]replication.VerifyOption, error) {
	var opts []replication.VerifyOption
	q := r.URL.Query()

	if v := q.Get("content"); v != "" {
		content, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.New("content must be a boolean")
		}
		if content {
			opts = append(opts, replication.WithContentCheck())
		} else {
			opts = append(opts, replication.WithoutContentCheck())
		}
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return nil, errors.New("limit must be a non-negative integer")
		}
		opts = append(opts, replication.WithSampleLimit(limit))
	}
	return opts, nil
}

func (s *Server) handleRepairTable(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	if !s.monitored(table) {
		s.respondError(w, http.StatusNotFound, "Table is not monitored: "+table)
		return
	}

	repaired, err := s.backend.AutoRepairInconsistencies(r.Context(), table)
	resp := RepairResponse{Table: table, Repaired: repaired}
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, resp)
	case errors.Is(err, replication.ErrRepairPartialFailure):
		resp.Error = err.Error()
		s.respondJSON(w, http.StatusMultiStatus, resp)
	default:
		s.logger.Error("manual repair failed", logging.Table(table), logging.Error(err))
		resp.Error = err.Error()
		s.respondJSON(w, http.StatusBadGateway, resp)
	}
}
