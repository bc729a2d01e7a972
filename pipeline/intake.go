package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"resume-matcher/domain"
	"resume-matcher/infrastructure"
)

// FileUpload is one uploaded file as handed over by the HTTP layer. Data is
// the complete file content; ownership of the raw bytes ends with admission.
type FileUpload struct {
	Filename string
	Size     int64
	Data     []byte
}

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
}

// suspiciousTokens are filename fragments that indicate an executable or
// script smuggled under a double extension (resume.pdf.exe and friends).
var suspiciousTokens = []string{
	".exe", ".dll", ".bat", ".cmd", ".vbs", ".js", ".jar", ".msi", ".sh", ".ps1",
}

// Intake validates and admits uploaded files into the session's batch,
// extracting text immediately and discarding the original bytes.
type Intake struct {
	sessions    *Sessions
	extractor   infrastructure.Extractor
	maxFiles    int
	maxFileSize int64
	stagingDir  string
	logger      *zap.Logger
}

func NewIntake(sessions *Sessions, extractor infrastructure.Extractor, maxFiles int, maxFileSize int64, stagingDir string, logger *zap.Logger) *Intake {
	return &Intake{
		sessions:    sessions,
		extractor:   extractor,
		maxFiles:    maxFiles,
		maxFileSize: maxFileSize,
		stagingDir:  stagingDir,
		logger:      logger,
	}
}

// Admit validates the whole set against the current batch in one atomic
// step, then extracts each file. Validation is fail-fast: the first
// violation rejects the entire call and the batch is left unchanged.
// Extraction failures are not rejections; they produce resumes in status
// "error" and the rest of the set is still admitted.
func (i *Intake) Admit(ctx context.Context, sessionID string, files []FileUpload) ([]*domain.Resume, error) {
	if len(files) == 0 {
		return nil, &domain.IntakeError{Kind: domain.IntakeEmpty, Message: "no files provided"}
	}

	var admitted []*domain.Resume
	_, err := i.sessions.Update(ctx, sessionID, true, func(env *domain.Envelope) error {
		batch := env.Batch
		if batch.Status != domain.BatchUploading {
			return &domain.IntakeError{
				Kind:    domain.IntakeClosed,
				Message: fmt.Sprintf("batch is %s; uploads are closed", batch.Status),
			}
		}

		for idx, f := range files {
			if err := i.validateFile(f, batch, files[:idx]); err != nil {
				return err
			}
		}
		if len(batch.Resumes)+len(files) > i.maxFiles {
			return &domain.IntakeError{
				Kind:    domain.IntakeFileCount,
				Message: fmt.Sprintf("maximum %d files per batch", i.maxFiles),
			}
		}

		for _, f := range files {
			resume := i.extractOne(ctx, sessionID, f)
			batch.Resumes = append(batch.Resumes, resume)
			admitted = append(admitted, resume)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return admitted, nil
}

// validateFile applies the per-file checks in order: type, size, duplicate.
// earlier covers files admitted in the same call, so a set containing its
// own duplicate is rejected too.
func (i *Intake) validateFile(f FileUpload, batch *domain.Batch, earlier []FileUpload) error {
	ext := strings.ToLower(filepath.Ext(f.Filename))
	if !allowedExtensions[ext] {
		return &domain.IntakeError{
			Kind:     domain.IntakeFileType,
			Filename: f.Filename,
			Message:  fmt.Sprintf("file type %q not allowed", ext),
		}
	}
	lower := strings.ToLower(f.Filename)
	for _, token := range suspiciousTokens {
		if strings.Contains(lower, token) {
			return &domain.IntakeError{
				Kind:     domain.IntakeFileType,
				Filename: f.Filename,
				Message:  "filename looks like an executable or script",
			}
		}
	}

	if f.Size > i.maxFileSize {
		return &domain.IntakeError{
			Kind:     domain.IntakeFileSize,
			Filename: f.Filename,
			Message:  fmt.Sprintf("file exceeds %d bytes", i.maxFileSize),
		}
	}

	if batch.HasDuplicate(f.Filename, f.Size) {
		return &domain.IntakeError{
			Kind:     domain.IntakeDuplicate,
			Filename: f.Filename,
			Message:  "a file with the same name and size was already uploaded",
		}
	}
	for _, e := range earlier {
		if e.Filename == f.Filename && e.Size == f.Size {
			return &domain.IntakeError{
				Kind:     domain.IntakeDuplicate,
				Filename: f.Filename,
				Message:  "duplicate file within the upload set",
			}
		}
	}
	return nil
}

// extractOne stages the bytes, extracts text, and removes the staged file on
// every exit path. The filename never becomes part of the path; staged files
// are keyed by resume id.
func (i *Intake) extractOne(ctx context.Context, sessionID string, f FileUpload) *domain.Resume {
	resume := &domain.Resume{
		ID:       newResumeID(),
		Filename: f.Filename,
		Size:     f.Size,
		Status:   domain.ResumePending,
	}

	staged, err := i.stageFile(sessionID, resume.ID, filepath.Ext(f.Filename), f.Data)
	if err != nil {
		resume.MarkError("staging failed: " + err.Error())
		return resume
	}
	defer func() {
		if err := os.Remove(staged); err != nil {
			i.logger.Warn("failed to remove staged file",
				zap.String("session_id", sessionID), zap.String("path", staged), zap.Error(err))
		}
	}()

	text, err := i.extractor.Extract(f.Data, f.Filename)
	if err != nil {
		i.logger.Info("extraction failed",
			zap.String("session_id", sessionID),
			zap.String("filename", f.Filename),
			zap.Error(err))
		resume.MarkError(err.Error())
		return resume
	}

	if err := i.sessions.StoreText(ctx, sessionID, resume, text); err != nil {
		resume.MarkError("storing extracted text failed: " + err.Error())
		return resume
	}

	i.logger.Debug("resume admitted",
		zap.String("session_id", sessionID),
		zap.String("resume_id", resume.ID),
		zap.String("filename", f.Filename),
		zap.Int("text_length", len(text)))
	return resume
}

func newResumeID() string { return uuid.NewString() }

func (i *Intake) stageFile(sessionID, resumeID, ext string, data []byte) (string, error) {
	dir := filepath.Join(i.stagingDir, sessionID, "uploads")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, resumeID+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// CloseIntake ends the upload phase: at least one resume must have been
// admitted, and the batch flips to ready exactly once.
func (i *Intake) CloseIntake(ctx context.Context, sessionID string) (*domain.Envelope, error) {
	return i.sessions.Update(ctx, sessionID, false, func(env *domain.Envelope) error {
		switch {
		case env.Batch.Status == domain.BatchReady:
			return nil
		case env.Batch.Status == domain.BatchProcessing:
			// A cancelled run leaves the batch in processing; closing intake
			// again is a no-op so the analysis can be requeued.
			if env.Analyzing {
				return domain.ErrAnalysisRunning
			}
			return nil
		case env.Batch.Status.Terminal():
			return domain.ErrBatchNotReady
		}
		if len(env.Batch.Resumes) == 0 {
			return &domain.IntakeError{Kind: domain.IntakeEmpty, Message: "no resumes uploaded"}
		}
		return env.Batch.SetStatus(domain.BatchReady)
	})
}

// SetJobDescription stores the job description on the batch, creating the
// batch lazily so the description can arrive before the first upload.
func (i *Intake) SetJobDescription(ctx context.Context, sessionID, jd string) error {
	_, err := i.sessions.Update(ctx, sessionID, true, func(env *domain.Envelope) error {
		if env.Batch.Status.Terminal() {
			return &domain.IntakeError{
				Kind:    domain.IntakeClosed,
				Message: fmt.Sprintf("batch is %s; start a new batch", env.Batch.Status),
			}
		}
		env.Batch.JobDescription = strings.TrimSpace(jd)
		return nil
	})
	return err
}
