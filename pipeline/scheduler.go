package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"resume-matcher/domain"
	"resume-matcher/infrastructure"
)

// DefaultChunkSize is the number of resumes per scheduling unit when the
// caller does not specify one.
const DefaultChunkSize = 5

// ChunkEvent reports completion of one chunk to an optional observer.
type ChunkEvent struct {
	ChunkIndex int
	ChunkCount int
	Done       int
	Total      int
}

// Scheduler drives a batch through the scoring adapter in fixed-size chunks,
// sequentially toward the adapter, flushing progress to the session store
// after every resume.
type Scheduler struct {
	sessions *Sessions
	scorer   infrastructure.Scorer
	logger   *zap.Logger
}

func NewScheduler(sessions *Sessions, scorer infrastructure.Scorer, logger *zap.Logger) *Scheduler {
	return &Scheduler{sessions: sessions, scorer: scorer, logger: logger}
}

// Run executes one analysis pass over the session's batch. A second Run for
// the same session while one is active is rejected with ErrAnalysisRunning.
// Per-resume adapter failures and timeouts are absorbed as resume status
// "error"; only the job-description precondition and storage write failures
// are batch-fatal. events may be nil.
func (s *Scheduler) Run(ctx context.Context, sessionID string, chunkSize int, events func(ChunkEvent)) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var (
		resumeIDs    []string
		preFailure   error
		startedBatch string
	)
	_, err := s.sessions.Update(ctx, sessionID, false, func(env *domain.Envelope) error {
		if env.Analyzing {
			return domain.ErrAnalysisRunning
		}
		batch := env.Batch
		if batch.Status.Terminal() {
			return domain.ErrBatchNotReady
		}

		if err := ValidateJobDescription(batch.JobDescription); err != nil {
			// Precondition failure is recorded on the batch itself and
			// persisted; no adapter call is ever made.
			if ferr := batch.Fail(err.Error()); ferr != nil {
				return ferr
			}
			preFailure = err
			return nil
		}

		if batch.Status == domain.BatchUploading {
			return domain.ErrBatchNotReady
		}
		if err := batch.SetStatus(domain.BatchProcessing); err != nil {
			return err
		}
		env.Analyzing = true
		env.CancelRequested = false

		startedBatch = batch.ID
		for _, r := range batch.Resumes {
			resumeIDs = append(resumeIDs, r.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if preFailure != nil {
		return preFailure
	}

	s.logger.Info("analysis run started",
		zap.String("session_id", sessionID),
		zap.String("batch_id", startedBatch),
		zap.Int("resumes", len(resumeIDs)),
		zap.Int("chunk_size", chunkSize))

	runErr := s.process(ctx, sessionID, resumeIDs, chunkSize, events)

	// The exclusion flag is released on every exit path, and the batch is
	// finalized from whatever terminal states the resumes reached.
	if _, err := s.sessions.Update(ctx, sessionID, false, func(env *domain.Envelope) error {
		env.Analyzing = false
		if runErr == nil && env.Batch.AllResumesTerminal() && env.Batch.Status == domain.BatchProcessing {
			return env.Batch.SetStatus(domain.BatchCompleted)
		}
		return nil
	}); err != nil && runErr == nil {
		runErr = err
	}

	if runErr != nil {
		s.logger.Error("analysis run failed",
			zap.String("session_id", sessionID), zap.Error(runErr))
		// Best effort: surface the fatal condition on the batch for pollers.
		_, _ = s.sessions.Update(ctx, sessionID, false, func(env *domain.Envelope) error {
			if !env.Batch.Status.Terminal() {
				return env.Batch.Fail(runErr.Error())
			}
			return nil
		})
		return runErr
	}

	s.logger.Info("analysis run finished",
		zap.String("session_id", sessionID),
		zap.String("batch_id", startedBatch))
	return nil
}

func (s *Scheduler) process(ctx context.Context, sessionID string, resumeIDs []string, chunkSize int, events func(ChunkEvent)) error {
	chunks := chunk(resumeIDs, chunkSize)
	done := 0

	for ci, ids := range chunks {
		for _, rid := range ids {
			cancelled, err := s.cancelRequested(ctx, sessionID)
			if err != nil {
				return err
			}
			if cancelled {
				s.logger.Info("analysis cancelled between resumes",
					zap.String("session_id", sessionID))
				return nil
			}

			processed, err := s.scoreOne(ctx, sessionID, rid)
			if err != nil {
				return err
			}
			if processed {
				done++
			}
		}
		if events != nil {
			events(ChunkEvent{ChunkIndex: ci, ChunkCount: len(chunks), Done: done, Total: len(resumeIDs)})
		}
	}
	return nil
}

// scoreOne moves one resume through processing to a terminal status. The
// returned bool is false when the resume was already terminal and skipped.
func (s *Scheduler) scoreOne(ctx context.Context, sessionID, resumeID string) (bool, error) {
	var (
		text   string
		jd     string
		skip   bool
		junked bool
	)
	_, err := s.sessions.Update(ctx, sessionID, false, func(env *domain.Envelope) error {
		r := env.Batch.FindResume(resumeID)
		if r == nil {
			return fmt.Errorf("resume %s disappeared from batch", resumeID)
		}
		if r.Status.Terminal() {
			skip = true
			return nil
		}
		var err error
		text, err = s.sessions.ResolveText(ctx, sessionID, r)
		if err != nil {
			return err
		}
		// Resume content goes through the same junk screen as the job
		// description; keyboard mash never reaches the adapter.
		if reason := junkTextReason(text); reason != "" {
			r.MarkError("resume content " + reason)
			junked = true
			return nil
		}
		jd = env.Batch.JobDescription
		return r.SetStatus(domain.ResumeProcessing)
	})
	if err != nil {
		return false, err
	}
	if skip {
		return false, nil
	}
	if junked {
		s.logger.Warn("resume content rejected",
			zap.String("session_id", sessionID),
			zap.String("resume_id", resumeID))
		return true, nil
	}

	analysis, scoreErr := s.scorer.Analyze(ctx, text, jd)

	// Status and result commit together in one store write, so a concurrent
	// snapshot never sees one without the other.
	_, err = s.sessions.Update(ctx, sessionID, false, func(env *domain.Envelope) error {
		r := env.Batch.FindResume(resumeID)
		if r == nil {
			return fmt.Errorf("resume %s disappeared from batch", resumeID)
		}
		if scoreErr != nil {
			r.MarkError(scoreErr.Error())
			return nil
		}
		return env.Batch.StoreResult(r, analysis)
	})
	if err != nil {
		return false, err
	}

	if scoreErr != nil {
		s.logger.Warn("resume scoring failed",
			zap.String("session_id", sessionID),
			zap.String("resume_id", resumeID),
			zap.Error(scoreErr))
	}
	return true, nil
}

func (s *Scheduler) cancelRequested(ctx context.Context, sessionID string) (bool, error) {
	env, err := s.sessions.View(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if env == nil {
		// Session torn down mid-run; stop quietly.
		return true, nil
	}
	return env.CancelRequested, nil
}

// Cancel asks a running analysis to stop between resumes. The in-flight
// adapter call finishes or times out naturally.
func (s *Scheduler) Cancel(ctx context.Context, sessionID string) error {
	_, err := s.sessions.Update(ctx, sessionID, false, func(env *domain.Envelope) error {
		env.CancelRequested = true
		return nil
	})
	return err
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// placeholderMarkers are strings that show up in keyboard-mash test input
// and disqualify a job description outright.
var placeholderMarkers = []string{"dsadasd", "asdfgh", "qwerty", "sample text", "placeholder text"}

// ValidateJobDescription screens out missing and obviously fake job
// descriptions before any adapter call is made.
func ValidateJobDescription(jd string) error {
	jd = strings.TrimSpace(jd)
	if jd == "" {
		return &domain.PreconditionError{Message: "job description is required"}
	}
	if reason := junkTextReason(jd); reason != "" {
		return &domain.PreconditionError{Message: "job description " + reason}
	}
	return nil
}

// junkTextReason reports why text cannot be real document content, or ""
// when it looks plausible. Shared between the job description precondition
// and the per-resume content screen.
func junkTextReason(text string) string {
	text = strings.TrimSpace(text)
	if len(text) < 100 {
		return "is too short to be real"
	}
	lower := strings.ToLower(text)
	if text == lower {
		return "looks like placeholder text"
	}
	words := strings.Fields(lower)
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	if len(unique) < 10 {
		return "has too few distinct words"
	}
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return "looks like placeholder text"
		}
	}
	alnum := 0
	for _, c := range text {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			alnum++
		}
	}
	if float64(alnum)/float64(len([]rune(text))) < 0.7 {
		return "is mostly non-text characters"
	}
	return ""
}

// IsPrecondition reports whether err is the batch-fatal precondition class.
func IsPrecondition(err error) bool {
	var pe *domain.PreconditionError
	return errors.As(err, &pe)
}
