package dispatcher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"optimus/internal/job"
	"optimus/internal/langconfig"
	"optimus/internal/store"
)

type fakeStore struct {
	jobs      map[string]*job.Job
	results   map[string]*job.JobResult
	states    map[string]job.State
	cancelled map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs: make(map[string]*job.Job), results: make(map[string]*job.JobResult),
		states: make(map[string]job.State), cancelled: make(map[string]bool),
	}
}

func (f *fakeStore) SubmitJob(ctx context.Context, j *job.Job, ttl time.Duration) error {
	f.jobs[j.ID] = j
	f.states[j.ID] = job.StateQueued
	return nil
}

func (f *fakeStore) GetResult(ctx context.Context, id string) (*job.JobResult, error) {
	if r, ok := f.results[id]; ok {
		return r, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetState(ctx context.Context, id string) (job.State, error) {
	if s, ok := f.states[id]; ok {
		return s, nil
	}
	return "", store.ErrNotFound
}

func (f *fakeStore) Exists(ctx context.Context, id string) (bool, error) {
	_, ok := f.jobs[id]
	return ok, nil
}

func (f *fakeStore) RequestCancel(ctx context.Context, id string, ttl time.Duration) error {
	f.cancelled[id] = true
	return nil
}

func newTestDispatcher() (*Dispatcher, *fakeStore) {
	gin.SetMode(gin.TestMode)
	fs := newFakeStore()
	logger := logrus.New()
	logger.SetOutput(discardWriter{})
	return &Dispatcher{
		Store:            fs,
		Policies:         langconfig.LoadDefault(),
		Logger:           logger,
		ResultTTL:        time.Minute,
		TimeoutMSDefault: 5000,
		TimeoutMSMax:     20000,
		SourceSizeCap:    1 << 20,
		Ratelimit:        1000,
		RatelimitBurst:   1000,
	}, fs
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestSubmitValidJob(t *testing.T) {
	d, fs := newTestDispatcher()
	router := d.Router()

	body := map[string]interface{}{
		"language":    "python",
		"source_code": base64.StdEncoding.EncodeToString([]byte("print('hi')")),
		"test_cases": []map[string]interface{}{
			{"input": "", "expected_output": "hi"},
		},
	}
	payload, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}

	var resp submitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID == "" {
		t.Error("expected a non-empty job_id")
	}
	if _, ok := fs.jobs[resp.JobID]; !ok {
		t.Error("job was not recorded in the store")
	}
}

func TestSubmitUnknownLanguage(t *testing.T) {
	d, _ := newTestDispatcher()
	router := d.Router()

	body := map[string]interface{}{
		"language":    "cobol",
		"source_code": base64.StdEncoding.EncodeToString([]byte("x")),
		"test_cases":  []map[string]interface{}{{"input": "", "expected_output": ""}},
	}
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}
}

func TestSubmitEmptyTestCases(t *testing.T) {
	d, _ := newTestDispatcher()
	router := d.Router()

	body := map[string]interface{}{
		"language":    "python",
		"source_code": base64.StdEncoding.EncodeToString([]byte("x")),
		"test_cases":  []map[string]interface{}{},
	}
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for empty test_cases, body=%s", w.Code, w.Body.String())
	}
}

func TestGetUnknownJobReturns404(t *testing.T) {
	d, _ := newTestDispatcher()
	router := d.Router()

	req := httptest.NewRequest(http.MethodGet, "/job/00000000-0000-0000-0000-000000000000", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestGetPendingJobReturns202(t *testing.T) {
	d, fs := newTestDispatcher()
	router := d.Router()

	fs.jobs["11111111-1111-1111-1111-111111111111"] = &job.Job{ID: "11111111-1111-1111-1111-111111111111"}
	fs.states["11111111-1111-1111-1111-111111111111"] = job.StateRunning

	req := httptest.NewRequest(http.MethodGet, "/job/11111111-1111-1111-1111-111111111111", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "pending" {
		t.Errorf(`body status = %q, want "pending"`, resp["status"])
	}
}

func TestGetCompletedJobReturns200(t *testing.T) {
	d, fs := newTestDispatcher()
	router := d.Router()

	id := "22222222-2222-2222-2222-222222222222"
	fs.jobs[id] = &job.Job{ID: id}
	fs.results[id] = &job.JobResult{JobID: id, OverallStatus: job.OverallCompleted, Score: 10, MaxScore: 10}

	req := httptest.NewRequest(http.MethodGet, "/job/"+id, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestCancelUnknownJobReturns404(t *testing.T) {
	d, _ := newTestDispatcher()
	router := d.Router()

	req := httptest.NewRequest(http.MethodDelete, "/jobs/00000000-0000-0000-0000-000000000000", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestCancelExistingJob(t *testing.T) {
	d, fs := newTestDispatcher()
	router := d.Router()

	id := "33333333-3333-3333-3333-333333333333"
	fs.jobs[id] = &job.Job{ID: id}

	req := httptest.NewRequest(http.MethodDelete, "/jobs/"+id, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	if !fs.cancelled[id] {
		t.Error("expected cancel flag to be recorded")
	}
}

func TestHealth(t *testing.T) {
	d, _ := newTestDispatcher()
	router := d.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
