package domain

import "fmt"

type ResumeStatus string

const (
	ResumePending    ResumeStatus = "pending"
	ResumeProcessing ResumeStatus = "processing"
	ResumeCompleted  ResumeStatus = "completed"
	ResumeError      ResumeStatus = "error"
)

var resumeTransitions = map[ResumeStatus][]ResumeStatus{
	ResumePending:    {ResumeProcessing, ResumeError},
	ResumeProcessing: {ResumeCompleted, ResumeError},
}

func (s ResumeStatus) CanTransition(to ResumeStatus) bool {
	for _, next := range resumeTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s ResumeStatus) Terminal() bool {
	return s == ResumeCompleted || s == ResumeError
}

// Resume is one admitted file. Only the extracted text survives intake; the
// original bytes are staged for the duration of extraction and then removed.
// Filename is kept for display only and is never used as a path.
type Resume struct {
	ID       string       `json:"id"`
	Filename string       `json:"filename"`
	Size     int64        `json:"size"`
	Text     string       `json:"text,omitempty"`
	TextRef  string       `json:"text_ref,omitempty"`
	Status   ResumeStatus `json:"status"`
	Error    string       `json:"error,omitempty"`
}

func (r *Resume) SetStatus(to ResumeStatus) error {
	if r.Status == to {
		return nil
	}
	if !r.Status.CanTransition(to) {
		return fmt.Errorf("invalid resume transition %s -> %s for %s", r.Status, to, r.ID)
	}
	r.Status = to
	return nil
}

// MarkError moves the resume to its error terminal status with a
// human-readable message. The batch keeps going. A resume that already
// reached a terminal status is left alone.
func (r *Resume) MarkError(msg string) {
	if r.Status.Terminal() {
		return
	}
	r.Status = ResumeError
	r.Error = msg
}
