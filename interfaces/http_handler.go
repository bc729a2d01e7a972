package interfaces

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"resume-matcher/domain"
	"resume-matcher/infrastructure"
	"resume-matcher/pipeline"
)

const sessionHeader = "X-Session-Id"

// JobPublisher hands analysis jobs to the worker queue.
type JobPublisher interface {
	PublishJob(job infrastructure.AnalysisJob) error
}

// HTTPHandler exposes the batch pipeline to the polling UI. The session id
// travels in the X-Session-Id header; a missing id gets generated and echoed
// back so the client can keep it.
type HTTPHandler struct {
	Intake    *pipeline.Intake
	Scheduler *pipeline.Scheduler
	Reporter  *pipeline.Reporter
	Lifecycle *pipeline.Lifecycle
	RMQ       JobPublisher
	ChunkSize int
	Logger    *zap.Logger
}

func NewHTTPHandler(router *gin.Engine, intake *pipeline.Intake, scheduler *pipeline.Scheduler,
	reporter *pipeline.Reporter, lifecycle *pipeline.Lifecycle, rmq JobPublisher,
	chunkSize int, logger *zap.Logger) {

	h := &HTTPHandler{
		Intake:    intake,
		Scheduler: scheduler,
		Reporter:  reporter,
		Lifecycle: lifecycle,
		RMQ:       rmq,
		ChunkSize: chunkSize,
		Logger:    logger,
	}

	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	batch := router.Group("/batch")
	batch.POST("/upload", h.UploadBatch)
	batch.POST("/job", h.SetJobDescription)
	batch.POST("/analyze", h.AnalyzeBatch)
	batch.GET("/status", h.BatchStatus)
	batch.POST("/cancel", h.CancelBatch)
	batch.POST("/clear", h.ClearBatch)
}

func (h *HTTPHandler) sessionID(c *gin.Context) string {
	id := c.GetHeader(sessionHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Header(sessionHeader, id)
	return id
}

// UploadBatch admits a multipart set of resume files into the session batch.
func (h *HTTPHandler) UploadBatch(c *gin.Context) {
	sessionID := h.sessionID(c)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form is required"})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required"})
		return
	}

	files := make([]pipeline.FileUpload, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open " + header.Filename})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read " + header.Filename})
			return
		}
		files = append(files, pipeline.FileUpload{
			Filename: header.Filename,
			Size:     header.Size,
			Data:     data,
		})
	}

	admitted, err := h.Intake.Admit(c.Request.Context(), sessionID, files)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resumes := make([]gin.H, 0, len(admitted))
	for _, r := range admitted {
		resumes = append(resumes, gin.H{
			"id":       r.ID,
			"filename": r.Filename,
			"status":   r.Status,
			"error":    r.Error,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":   sessionID,
		"resume_count": len(admitted),
		"resumes":      resumes,
	})
}

// SetJobDescription stores the job description for the session batch.
func (h *HTTPHandler) SetJobDescription(c *gin.Context) {
	sessionID := h.sessionID(c)

	var req struct {
		JobDescription string `json:"job_description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Intake.SetJobDescription(c.Request.Context(), sessionID, req.JobDescription); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "success": true})
}

// AnalyzeBatch closes intake and queues the analysis run. The actual run
// happens on the worker consumer; the client follows along via /batch/status.
func (h *HTTPHandler) AnalyzeBatch(c *gin.Context) {
	sessionID := h.sessionID(c)

	var req struct {
		ChunkSize int `json:"chunk_size"`
	}
	// Body is optional; ignore bind errors for an empty body.
	_ = c.ShouldBindJSON(&req)
	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = h.ChunkSize
	}

	env, err := h.Intake.CloseIntake(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	// Cheap synchronous screens so the uploader gets immediate feedback;
	// the scheduler re-checks both before touching the adapter.
	if err := pipeline.ValidateJobDescription(env.Batch.JobDescription); err != nil {
		h.writeError(c, err)
		return
	}
	if env.Analyzing {
		h.writeError(c, domain.ErrAnalysisRunning)
		return
	}

	if err := h.RMQ.PublishJob(infrastructure.AnalysisJob{SessionID: sessionID, ChunkSize: chunkSize}); err != nil {
		h.Logger.Error("failed to queue analysis job",
			zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue analysis"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"batch_id":   env.Batch.ID,
		"status":     "queued",
	})
}

// BatchStatus is the polling surface. A session without a batch answers
// status "none" rather than an error, so expired sessions degrade cleanly.
func (h *HTTPHandler) BatchStatus(c *gin.Context) {
	sessionID := h.sessionID(c)

	snap, err := h.Reporter.Snapshot(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if snap == nil {
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": "none"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// CancelBatch requests a running analysis to stop between resumes.
func (h *HTTPHandler) CancelBatch(c *gin.Context) {
	sessionID := h.sessionID(c)

	if err := h.Scheduler.Cancel(c.Request.Context(), sessionID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "success": true})
}

// ClearBatch is the drain/acknowledge endpoint: the client has read its
// results (or wants to start over) and the session is torn down.
func (h *HTTPHandler) ClearBatch(c *gin.Context) {
	sessionID := h.sessionID(c)

	if err := h.Lifecycle.Teardown(c.Request.Context(), sessionID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "success": true})
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	var intakeErr *domain.IntakeError
	var precondErr *domain.PreconditionError
	var storageErr *domain.StorageError

	switch {
	case errors.As(err, &intakeErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": intakeErr.Message, "kind": intakeErr.Kind, "filename": intakeErr.Filename})
	case errors.As(err, &precondErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": precondErr.Message})
	case errors.Is(err, domain.ErrNoBatch):
		c.JSON(http.StatusNotFound, gin.H{"error": "no active batch for this session"})
	case errors.Is(err, domain.ErrAnalysisRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "analysis is already running"})
	case errors.Is(err, domain.ErrBatchNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "batch is not ready for analysis"})
	case errors.As(err, &storageErr):
		h.Logger.Error("session storage failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session storage failure"})
	default:
		h.Logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
