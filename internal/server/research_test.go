package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/evidence"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/pipeline"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/store"
)

type fakeRunner struct {
	jobs       map[string]*pipeline.Job
	started    []string
	controlErr error
}

func (f *fakeRunner) Start(question, jobType string, targetSources int) (*pipeline.Job, error) {
	f.started = append(f.started, question)
	return &pipeline.Job{ID: "job-1", Question: question, State: pipeline.StatePending}, nil
}

func (f *fakeRunner) StartResume(ctx context.Context, jobID string) (*pipeline.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("loading job %s: %w", jobID, store.ErrNotFound)
	}
	return job, nil
}

func (f *fakeRunner) Pause(jobID string) error  { return f.controlErr }
func (f *fakeRunner) Cancel(jobID string) error { return f.controlErr }

func (f *fakeRunner) Status(ctx context.Context, jobID string) (*pipeline.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, store.ErrNotFound)
	}
	return job, nil
}

func jsonContext(t *testing.T, method, target string, body interface{}) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestResearchCreateAccepted(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	h := &ResearchHandler{Pipe: runner}

	c, rec := jsonContext(t, http.MethodPost, "/api/research", CreateResearchRequest{Question: "what changed in the new release"})
	if err := h.create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var resp IDResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != "job-1" {
		t.Fatalf("expected job-1, got %q", resp.ID)
	}
	if len(runner.started) != 1 {
		t.Fatalf("expected one started job, got %d", len(runner.started))
	}
}

func TestResearchCreateRequiresQuestion(t *testing.T) {
	t.Parallel()
	h := &ResearchHandler{Pipe: &fakeRunner{}}

	c, _ := jsonContext(t, http.MethodPost, "/api/research", CreateResearchRequest{})
	err := h.create(c)
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestResearchStatusNotFound(t *testing.T) {
	t.Parallel()
	h := &ResearchHandler{Pipe: &fakeRunner{jobs: map[string]*pipeline.Job{}}}

	c, _ := jsonContext(t, http.MethodGet, "/api/research/missing", nil)
	c.SetParamNames("id")
	c.SetParamValues("missing")
	err := h.status(c)
	if code := httpCode(t, err); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestResearchStatusReturnsJob(t *testing.T) {
	t.Parallel()
	job := &pipeline.Job{ID: "job-2", Question: "q", State: pipeline.StateSearching, Iteration: 1}
	h := &ResearchHandler{Pipe: &fakeRunner{jobs: map[string]*pipeline.Job{"job-2": job}}}

	c, rec := jsonContext(t, http.MethodGet, "/api/research/job-2", nil)
	c.SetParamNames("id")
	c.SetParamValues("job-2")
	if err := h.status(c); err != nil {
		t.Fatalf("status: %v", err)
	}
	var got pipeline.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "job-2" || got.State != pipeline.StateSearching {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestResearchReportNotReady(t *testing.T) {
	t.Parallel()
	job := &pipeline.Job{ID: "job-3", State: pipeline.StateDrafting}
	h := &ResearchHandler{Pipe: &fakeRunner{jobs: map[string]*pipeline.Job{"job-3": job}}}

	c, _ := jsonContext(t, http.MethodGet, "/api/research/job-3/report", nil)
	c.SetParamNames("id")
	c.SetParamValues("job-3")
	err := h.report(c)
	if code := httpCode(t, err); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
}

func TestResearchReportReturnsDraft(t *testing.T) {
	t.Parallel()
	job := &pipeline.Job{
		ID:             "job-4",
		State:          pipeline.StateCompleted,
		Report:         pipeline.Report{Main: "Findings are clear. [1]"},
		GroundingScore: 1.0,
		Citations:      []evidence.Citation{{Label: "[1]", Index: 1, SourceID: "src-1", URL: "https://example.com/a"}},
		Claims:         []evidence.Claim{{Text: "Findings are clear. [1]", Kind: evidence.ClaimCited}},
	}
	h := &ResearchHandler{Pipe: &fakeRunner{jobs: map[string]*pipeline.Job{"job-4": job}}}

	c, rec := jsonContext(t, http.MethodGet, "/api/research/job-4/report", nil)
	c.SetParamNames("id")
	c.SetParamValues("job-4")
	if err := h.report(c); err != nil {
		t.Fatalf("report: %v", err)
	}
	var resp ReportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Main == "" || resp.GroundingScore != 1.0 {
		t.Fatalf("unexpected report: %+v", resp)
	}
	if len(resp.Citations) != 1 || len(resp.Claims) != 1 {
		t.Fatalf("expected citations and claims, got %d/%d", len(resp.Citations), len(resp.Claims))
	}
}

func TestResearchPauseAccepted(t *testing.T) {
	t.Parallel()
	h := &ResearchHandler{Pipe: &fakeRunner{}}

	c, rec := jsonContext(t, http.MethodPost, "/api/research/job-5/pause", nil)
	c.SetParamNames("id")
	c.SetParamValues("job-5")
	if err := h.pause(c); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}

func TestResearchPauseConflict(t *testing.T) {
	t.Parallel()
	h := &ResearchHandler{Pipe: &fakeRunner{controlErr: fmt.Errorf("job job-6 is not running")}}

	c, _ := jsonContext(t, http.MethodPost, "/api/research/job-6/pause", nil)
	c.SetParamNames("id")
	c.SetParamValues("job-6")
	err := h.pause(c)
	if code := httpCode(t, err); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
}

func TestResearchResumeNotFound(t *testing.T) {
	t.Parallel()
	h := &ResearchHandler{Pipe: &fakeRunner{jobs: map[string]*pipeline.Job{}}}

	c, _ := jsonContext(t, http.MethodPost, "/api/research/gone/resume", nil)
	c.SetParamNames("id")
	c.SetParamValues("gone")
	err := h.resume(c)
	if code := httpCode(t, err); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}
