package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/crucible/internal/model"
)

// compareRequest is the JSON body for POST /v1/models/compare.
type compareRequest struct {
	ModelIDs  []string `json:"model_ids"`
	DatasetID string   `json:"dataset_id"`
	Criterion string   `json:"comparison_criteria"`
}

type listModelsResponse struct {
	Models []*model.ModelRecord `json:"models"`
	Total  int                  `json:"total"`
}

type clearCacheResponse struct {
	Cleared int `json:"cleared"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req model.PredictRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.svc.Predict(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, "predict", err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.svc.ListModels(r.Context())
	if err != nil {
		s.writeServiceError(w, "list models", err)
		return
	}
	if models == nil {
		models = []*model.ModelRecord{}
	}
	s.writeJSON(w, http.StatusOK, listModelsResponse{Models: models, Total: len(models)})
}

// handleCompareModels ranks models synchronously; large comparisons hold the
// request open until every candidate is scored.
func (s *Server) handleCompareModels(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	cmp, err := s.svc.CompareModels(r.Context(), req.ModelIDs, req.DatasetID, req.Criterion)
	if err != nil {
		s.writeServiceError(w, "compare models", err)
		return
	}
	s.writeJSON(w, http.StatusOK, cmp)
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteModel(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, "delete model", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearCache(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, clearCacheResponse{Cleared: s.svc.ClearCache()})
}
