package api

import (
	"net/http"

	"github.com/seantiz/crucible/internal/estimator"
)

type algorithmsResponse struct {
	Algorithms []estimator.AlgorithmInfo `json:"algorithms"`
}

func (s *Server) handleListAlgorithms(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, algorithmsResponse{Algorithms: s.svc.Algorithms()})
}
