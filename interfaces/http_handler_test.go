package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"resume-matcher/domain"
	"resume-matcher/infrastructure"
	"resume-matcher/pipeline"
)

const testJD = "We are hiring a Senior Backend Engineer with strong Go experience, " +
	"PostgreSQL knowledge, distributed systems background, and solid testing " +
	"discipline across production services."

type passthroughExtractor struct{}

func (passthroughExtractor) Extract(data []byte, _ string) (string, error) {
	return strings.TrimSpace(string(data)), nil
}

type fixedScorer struct{}

func (fixedScorer) Analyze(_ context.Context, _, _ string) (*domain.Analysis, error) {
	return &domain.Analysis{OverallScore: 50}, nil
}

type capturingPublisher struct {
	jobs []infrastructure.AnalysisJob
	err  error
}

func (p *capturingPublisher) PublishJob(job infrastructure.AnalysisJob) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *capturingPublisher, *pipeline.Sessions) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := infrastructure.NewMemoryStore(time.Hour, 1<<20)
	sessions := pipeline.NewSessions(store, 16*1024)
	logger := zap.NewNop()
	staging := t.TempDir()

	intake := pipeline.NewIntake(sessions, passthroughExtractor{}, 10, 3*1024*1024, staging, logger)
	scheduler := pipeline.NewScheduler(sessions, fixedScorer{}, logger)
	reporter := pipeline.NewReporter(sessions)
	lifecycle := pipeline.NewLifecycle(sessions, time.Hour, staging, logger)
	publisher := &capturingPublisher{}

	router := gin.New()
	NewHTTPHandler(router, intake, scheduler, reporter, lifecycle, publisher, 5, logger)
	return router, publisher, sessions
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func doRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUploadBatch(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body, contentType := multipartBody(t, map[string]string{"alice.txt": "ten years of Go"})
	req := httptest.NewRequest(http.MethodPost, "/batch/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(sessionHeader, "sess-1")

	rec := doRequest(router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		SessionID   string `json:"session_id"`
		ResumeCount int    `json:"resume_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.SessionID != "sess-1" || resp.ResumeCount != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUploadBatchGeneratesSessionID(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body, contentType := multipartBody(t, map[string]string{"alice.txt": "x"})
	req := httptest.NewRequest(http.MethodPost, "/batch/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(sessionHeader) == "" {
		t.Fatalf("generated session id must be echoed in %s", sessionHeader)
	}
}

func TestUploadBatchRejectsBadFileType(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body, contentType := multipartBody(t, map[string]string{"payload.exe": "MZ"})
	req := httptest.NewRequest(http.MethodPost, "/batch/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(sessionHeader, "sess-1")

	rec := doRequest(router, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Kind != string(domain.IntakeFileType) {
		t.Fatalf("kind = %q, want file_type", resp.Kind)
	}
}

func TestAnalyzeBatchQueuesJob(t *testing.T) {
	router, publisher, _ := newTestRouter(t)

	body, contentType := multipartBody(t, map[string]string{"alice.txt": "ten years of Go"})
	req := httptest.NewRequest(http.MethodPost, "/batch/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(sessionHeader, "sess-1")
	if rec := doRequest(router, req); rec.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}

	jdBody, _ := json.Marshal(map[string]string{"job_description": testJD})
	req = httptest.NewRequest(http.MethodPost, "/batch/job", bytes.NewReader(jdBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sessionHeader, "sess-1")
	if rec := doRequest(router, req); rec.Code != http.StatusOK {
		t.Fatalf("set jd: %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/batch/analyze", nil)
	req.Header.Set(sessionHeader, "sess-1")
	rec := doRequest(router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze: %d %s", rec.Code, rec.Body.String())
	}

	if len(publisher.jobs) != 1 {
		t.Fatalf("published %d jobs, want 1", len(publisher.jobs))
	}
	job := publisher.jobs[0]
	if job.SessionID != "sess-1" || job.ChunkSize != 5 {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestAnalyzeBatchRejectsJunkJobDescription(t *testing.T) {
	router, publisher, _ := newTestRouter(t)

	body, contentType := multipartBody(t, map[string]string{"alice.txt": "x"})
	req := httptest.NewRequest(http.MethodPost, "/batch/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(sessionHeader, "sess-1")
	if rec := doRequest(router, req); rec.Code != http.StatusOK {
		t.Fatalf("upload: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/batch/analyze", nil)
	req.Header.Set(sessionHeader, "sess-1")
	rec := doRequest(router, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
	}
	if len(publisher.jobs) != 0 {
		t.Fatalf("junk job description must not queue a job")
	}
}

func TestAnalyzeBatchWhileAnalysisRunning(t *testing.T) {
	router, publisher, sessions := newTestRouter(t)

	body, contentType := multipartBody(t, map[string]string{"alice.txt": "x"})
	req := httptest.NewRequest(http.MethodPost, "/batch/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(sessionHeader, "sess-1")
	if rec := doRequest(router, req); rec.Code != http.StatusOK {
		t.Fatalf("upload: %d", rec.Code)
	}

	if _, err := sessions.Update(context.Background(), "sess-1", false, func(env *domain.Envelope) error {
		env.Batch.Status = domain.BatchProcessing
		env.Analyzing = true
		return nil
	}); err != nil {
		t.Fatalf("mark analyzing: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/batch/analyze", nil)
	req.Header.Set(sessionHeader, "sess-1")
	rec := doRequest(router, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body = %s", rec.Code, rec.Body.String())
	}
	if len(publisher.jobs) != 0 {
		t.Fatalf("a running analysis must not queue another job")
	}
}

func TestAnalyzeBatchOnFinishedBatch(t *testing.T) {
	router, publisher, sessions := newTestRouter(t)

	body, contentType := multipartBody(t, map[string]string{"alice.txt": "x"})
	req := httptest.NewRequest(http.MethodPost, "/batch/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(sessionHeader, "sess-1")
	if rec := doRequest(router, req); rec.Code != http.StatusOK {
		t.Fatalf("upload: %d", rec.Code)
	}

	if _, err := sessions.Update(context.Background(), "sess-1", false, func(env *domain.Envelope) error {
		env.Batch.Status = domain.BatchCompleted
		return nil
	}); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/batch/analyze", nil)
	req.Header.Set(sessionHeader, "sess-1")
	rec := doRequest(router, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body = %s", rec.Code, rec.Body.String())
	}
	if len(publisher.jobs) != 0 {
		t.Fatalf("a finished batch must not queue a job")
	}
}

func TestAnalyzeBatchWithoutSession(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/batch/analyze", nil)
	req.Header.Set(sessionHeader, "ghost")
	rec := doRequest(router, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404; body = %s", rec.Code, rec.Body.String())
	}
}

func TestBatchStatusWithoutBatch(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/batch/status", nil)
	req.Header.Set(sessionHeader, "ghost")
	rec := doRequest(router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != "none" {
		t.Fatalf("status = %q, want none", resp.Status)
	}
}

func TestClearBatchTearsDownSession(t *testing.T) {
	router, _, sessions := newTestRouter(t)

	body, contentType := multipartBody(t, map[string]string{"alice.txt": "x"})
	req := httptest.NewRequest(http.MethodPost, "/batch/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(sessionHeader, "sess-1")
	if rec := doRequest(router, req); rec.Code != http.StatusOK {
		t.Fatalf("upload: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/batch/clear", nil)
	req.Header.Set(sessionHeader, "sess-1")
	if rec := doRequest(router, req); rec.Code != http.StatusOK {
		t.Fatalf("clear: %d", rec.Code)
	}

	env, err := sessions.View(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if env != nil {
		t.Fatalf("session survived /batch/clear")
	}

	// Clearing again is a no-op, not an error.
	req = httptest.NewRequest(http.MethodPost, "/batch/clear", nil)
	req.Header.Set(sessionHeader, "sess-1")
	if rec := doRequest(router, req); rec.Code != http.StatusOK {
		t.Fatalf("second clear: %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}
