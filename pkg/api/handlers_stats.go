package api

import (
	"net/http"

	"github.com/dd0wney/dualdb/pkg/api/middleware"
	"github.com/dd0wney/dualdb/pkg/logging"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.backend.GetLoadBalancerStats())
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	s.backend.ResetStats()

	subject := ""
	if claims, ok := claimsFromContext(r.Context()); ok {
		subject = claims.Subject
	}
	s.logger.Info("[LOAD BALANCER] stats reset",
		logging.String("subject", subject),
		logging.String("request_id", middleware.GetRequestID(r)))

	s.respondJSON(w, http.StatusOK, MessageResponse{Message: "Load balancer statistics reset"})
}
