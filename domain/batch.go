package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type BatchStatus string

const (
	BatchUploading  BatchStatus = "uploading"
	BatchReady      BatchStatus = "ready"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// batchTransitions is the forward-only transition table. Terminal statuses
// have no entry; the only way out of them is a reset that creates a new batch.
var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchUploading:  {BatchReady, BatchFailed},
	BatchReady:      {BatchProcessing, BatchFailed},
	BatchProcessing: {BatchCompleted, BatchFailed},
}

func (s BatchStatus) CanTransition(to BatchStatus) bool {
	for _, next := range batchTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// Batch is one recruiter submission cycle: a job description plus a set of
// resumes, scoped to a single session.
type Batch struct {
	ID             string             `json:"batch_id"`
	CreatedAt      time.Time          `json:"created_at"`
	JobDescription string             `json:"job_description,omitempty"`
	Status         BatchStatus        `json:"status"`
	FailureReason  string             `json:"failure_reason,omitempty"`
	Resumes        []*Resume          `json:"resumes"`
	Results        map[string]*Result `json:"results"`
}

func NewBatch() *Batch {
	return &Batch{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Status:    BatchUploading,
		Results:   make(map[string]*Result),
	}
}

// SetStatus applies a status transition, rejecting anything not in the table.
func (b *Batch) SetStatus(to BatchStatus) error {
	if b.Status == to {
		return nil
	}
	if !b.Status.CanTransition(to) {
		return fmt.Errorf("invalid batch transition %s -> %s", b.Status, to)
	}
	b.Status = to
	return nil
}

// Fail moves the batch to failed with a reason, regardless of current
// non-terminal status.
func (b *Batch) Fail(reason string) error {
	if err := b.SetStatus(BatchFailed); err != nil {
		return err
	}
	b.FailureReason = reason
	return nil
}

func (b *Batch) FindResume(id string) *Resume {
	for _, r := range b.Resumes {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// HasDuplicate reports whether a file with the same name and size was already
// admitted into this batch.
func (b *Batch) HasDuplicate(filename string, size int64) bool {
	for _, r := range b.Resumes {
		if r.Filename == filename && r.Size == size {
			return true
		}
	}
	return false
}

func (b *Batch) CompletedCount() int {
	n := 0
	for _, r := range b.Resumes {
		if r.Status == ResumeCompleted {
			n++
		}
	}
	return n
}

func (b *Batch) AllResumesTerminal() bool {
	for _, r := range b.Resumes {
		if !r.Status.Terminal() {
			return false
		}
	}
	return len(b.Resumes) > 0
}

// StoreResult records the analysis for a resume and marks it completed in the
// same mutation, so a reader never observes one without the other.
func (b *Batch) StoreResult(r *Resume, analysis *Analysis) error {
	if _, ok := b.Results[r.ID]; ok {
		return fmt.Errorf("result already recorded for resume %s", r.ID)
	}
	if err := r.SetStatus(ResumeCompleted); err != nil {
		return err
	}
	b.Results[r.ID] = &Result{ResumeID: r.ID, Analysis: analysis}
	return nil
}
