package core

import "net/http"

// HealthHandler answers liveness probes with the running environment.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{
		"status":      "ok",
		"environment": s.Config.Environment,
	}})
}
