package api

import (
	"net/http"

	"github.com/seantiz/crucible/internal/model"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int                  `json:"total"`
	ByStatus      map[model.Status]int `json:"by_status"`
	ByKind        map[model.Kind]int   `json:"by_kind"`
	AvgDurationMS float64              `json:"avg_duration_ms"`
	Workers       int                  `json:"workers"`
	CachedModels  int                  `json:"cached_models"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.logger.Error("get job stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Jobs.Total,
		ByStatus:      stats.Jobs.CountByStatus,
		ByKind:        stats.Jobs.CountByKind,
		AvgDurationMS: stats.Jobs.AvgDurationMS,
		Workers:       stats.Workers,
		CachedModels:  stats.CachedModels,
	})
}
