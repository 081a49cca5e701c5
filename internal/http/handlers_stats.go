package http

import (
	"net/http"

	"wallet/internal/services"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	period, err := services.ParsePeriod(r.PathValue("period"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.deps.Stats.Stats(r.Context(), user, period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", toStatsJSON(st))
}
