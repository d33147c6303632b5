package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seantiz/crucible/internal/estimator"
	"github.com/seantiz/crucible/internal/model"
)

func TestSubmitTrainingAccepted(t *testing.T) {
	srv, datasets := newTestServerWithData(t)
	putLinear(t, datasets, "ds1", 60)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/training", model.TrainingSpec{
		DatasetID:      "ds1",
		Algorithm:      estimator.LinearRegression,
		TargetColumn:   "y",
		FeatureColumns: []string{"a", "b"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var job model.Job
	decodeBody(t, resp, &job)
	if job.ID == "" {
		t.Fatal("expected non-empty job id")
	}
	if job.Kind != model.KindTraining {
		t.Errorf("kind = %q, want %q", job.Kind, model.KindTraining)
	}
	if loc := resp.Header.Get("Location"); loc != "/v1/jobs/"+job.ID {
		t.Errorf("Location = %q, want /v1/jobs/%s", loc, job.ID)
	}

	done := waitForJob(t, ts.URL, job.ID)
	if done.Status != model.StatusCompleted {
		t.Fatalf("status = %q, want completed (error %+v)", done.Status, done.Error)
	}
	if done.Progress != 100 {
		t.Errorf("progress = %v, want 100", done.Progress)
	}
	if done.Result == nil || done.Result.Training == nil || done.Result.Training.ModelID == "" {
		t.Errorf("missing training result: %+v", done.Result)
	}
}

func TestSubmitRejections(t *testing.T) {
	srv, datasets := newTestServerWithData(t)
	putLinear(t, datasets, "ds1", 20)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"unknown algorithm", "/v1/training", model.TrainingSpec{DatasetID: "ds1", Algorithm: "svm", TargetColumn: "y", FeatureColumns: []string{"a"}}, http.StatusBadRequest},
		{"missing target", "/v1/training", model.TrainingSpec{DatasetID: "ds1", Algorithm: estimator.LinearRegression, FeatureColumns: []string{"a"}}, http.StatusBadRequest},
		{"missing dataset", "/v1/training", model.TrainingSpec{DatasetID: "nope", Algorithm: estimator.LinearRegression, TargetColumn: "y", FeatureColumns: []string{"a"}}, http.StatusNotFound},
		{"batch unknown model", "/v1/predictions/batch", model.PredictionSpec{ModelID: "m", DatasetID: "ds1"}, http.StatusNotFound},
		{"validation unknown metric", "/v1/validations", model.ValidationSpec{ModelID: "m", DatasetID: "ds1", Metrics: []string{"auc"}}, http.StatusBadRequest},
		{"validation unknown model", "/v1/validations", model.ValidationSpec{ModelID: "m", DatasetID: "ds1"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+tt.path, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	resp, err := http.Post(ts.URL+"/v1/training", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid JSON status = %d, want 400", resp.StatusCode)
	}

	if got := getStats(t, ts.URL).Total; got != 0 {
		t.Errorf("rejected requests created %d jobs", got)
	}
}

func TestBatchAndValidationJobs(t *testing.T) {
	srv, datasets := newTestServerWithData(t)
	putLinear(t, datasets, "ds1", 80)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	modelID := trainLinear(t, ts.URL, "ds1")

	resp := postJSON(t, ts.URL+"/v1/predictions/batch", model.PredictionSpec{
		ModelID:      modelID,
		DatasetID:    "ds1",
		ChunkSize:    25,
		OutputFormat: "csv",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("batch status = %d, want 202", resp.StatusCode)
	}
	var batch model.Job
	decodeBody(t, resp, &batch)

	done := waitForJob(t, ts.URL, batch.ID)
	if done.Status != model.StatusCompleted {
		t.Fatalf("batch finished %s: %+v", done.Status, done.Error)
	}
	if done.Records == nil || done.Records.Processed != 80 || done.Records.Total != 80 {
		t.Errorf("records = %+v, want 80/80", done.Records)
	}

	resp = postJSON(t, ts.URL+"/v1/validations", model.ValidationSpec{
		ModelID:   modelID,
		DatasetID: "ds1",
		Mode:      model.ModeCrossValidation,
		Folds:     4,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("validation status = %d, want 202", resp.StatusCode)
	}
	var val model.Job
	decodeBody(t, resp, &val)

	done = waitForJob(t, ts.URL, val.ID)
	if done.Status != model.StatusCompleted {
		t.Fatalf("validation finished %s: %+v", done.Status, done.Error)
	}
	if done.Result.Validation.ProblemType != model.ProblemRegression {
		t.Errorf("problem type = %q, want regression", done.Result.Validation.ProblemType)
	}
}

func TestListJobs(t *testing.T) {
	srv, datasets := newTestServerWithData(t)
	putLinear(t, datasets, "ds1", 40)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for range 3 {
		trainLinear(t, ts.URL, "ds1")
	}

	resp, err := http.Get(ts.URL + "/v1/jobs?limit=2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var page listJobsResponse
	decodeBody(t, resp, &page)
	if page.Total != 3 {
		t.Errorf("total = %d, want 3", page.Total)
	}
	if len(page.Jobs) != 2 {
		t.Errorf("len(jobs) = %d, want 2", len(page.Jobs))
	}
	if page.Limit != 2 {
		t.Errorf("limit = %d, want 2", page.Limit)
	}

	resp, err = http.Get(ts.URL + "/v1/jobs?kind=validation&limit=500")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	decodeBody(t, resp, &page)
	if page.Total != 0 || page.Jobs == nil {
		t.Errorf("validation filter = %+v, want empty non-nil list", page)
	}
	if page.Limit != defaultListLimit {
		t.Errorf("limit = %d, want %d", page.Limit, defaultListLimit)
	}

	resp, err = http.Get(ts.URL + "/v1/jobs?kind=bogus")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus kind status = %d, want 400", resp.StatusCode)
	}
}

func TestGetJobNotFound(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/jobs/nonexistent")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] == "" {
		t.Error("expected error message")
	}
}

func TestCancelJob(t *testing.T) {
	srv, datasets := newTestServerWithData(t)
	putLinear(t, datasets, "ds1", 40)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	trainLinear(t, ts.URL, "ds1")

	resp, err := http.Get(ts.URL + "/v1/jobs")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var page listJobsResponse
	decodeBody(t, resp, &page)
	if len(page.Jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(page.Jobs))
	}
	id := page.Jobs[0].ID

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/jobs/"+id, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	var job model.Job
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("cancel finished job status = %d, want 409", resp.StatusCode)
	}
	decodeBody(t, resp, &job)
	if job.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", job.Status)
	}

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/v1/jobs/missing", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cancel unknown status = %d, want 404", resp.StatusCode)
	}
}
