package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/store"
)

// listJobsResponse wraps the paginated list response.
type listJobsResponse struct {
	Jobs   []*model.Job `json:"jobs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (s *Server) handleSubmitTraining(w http.ResponseWriter, r *http.Request) {
	var spec model.TrainingSpec
	if !s.decodeJSON(w, r, &spec) {
		return
	}
	job, err := s.svc.SubmitTraining(r.Context(), spec)
	s.writeSubmitted(w, "submit training", job, err)
}

func (s *Server) handleSubmitBatchPrediction(w http.ResponseWriter, r *http.Request) {
	var spec model.PredictionSpec
	if !s.decodeJSON(w, r, &spec) {
		return
	}
	job, err := s.svc.SubmitBatchPrediction(r.Context(), spec)
	s.writeSubmitted(w, "submit batch prediction", job, err)
}

func (s *Server) handleSubmitValidation(w http.ResponseWriter, r *http.Request) {
	var spec model.ValidationSpec
	if !s.decodeJSON(w, r, &spec) {
		return
	}
	job, err := s.svc.SubmitValidation(r.Context(), spec)
	s.writeSubmitted(w, "submit validation", job, err)
}

func (s *Server) writeSubmitted(w http.ResponseWriter, op string, job *model.Job, err error) {
	if err != nil {
		s.writeServiceError(w, op, err)
		return
	}
	w.Header().Set("Location", "/v1/jobs/"+job.ID)
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, "get job", err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := s.svc.ListJobs(r.Context(), store.ListFilter{
		Kind:   model.Kind(r.URL.Query().Get("kind")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.writeServiceError(w, "list jobs", err)
		return
	}

	if jobs == nil {
		jobs = []*model.Job{}
	}

	s.writeJSON(w, http.StatusOK, listJobsResponse{
		Jobs:   jobs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// handleCancelJob cancels a queued or running job. A job that already
// finished is left untouched and reported with 409.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cancelled, err := s.svc.Cancel(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, "cancel job", err)
		return
	}

	job, err := s.svc.GetStatus(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, "get cancelled job", err)
		return
	}

	if !cancelled {
		s.writeJSON(w, http.StatusConflict, job)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}
