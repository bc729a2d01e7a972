package pipeline

import (
	"context"
	"sort"

	"resume-matcher/domain"
)

// Snapshot is the wire shape of batch status for the polling client.
// A client stops polling on status completed or failed.
type Snapshot struct {
	BatchID        string           `json:"batch_id"`
	Status         string           `json:"status"`
	Reason         string           `json:"reason,omitempty"`
	Total          int              `json:"total"`
	CompletedCount int              `json:"completed_count"`
	Resumes        []ResumeProgress `json:"resumes"`
	Results        []RankedResult   `json:"results"`
}

type ResumeProgress struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

type RankedResult struct {
	ResumeID string           `json:"resume_id"`
	Filename string           `json:"filename"`
	Analysis *domain.Analysis `json:"analysis"`
}

// Reporter is a read-only projection of batch state. It never mutates the
// store and never refreshes the session TTL.
type Reporter struct {
	sessions *Sessions
}

func NewReporter(sessions *Sessions) *Reporter {
	return &Reporter{sessions: sessions}
}

// Snapshot returns the batch state as currently observed, or nil when the
// session has no batch. Results are ranked by overall score, ties broken by
// upload order so the output is reproducible.
func (p *Reporter) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	env, err := p.sessions.View(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if env == nil || env.Batch == nil {
		return nil, nil
	}

	batch := env.Batch
	snap := &Snapshot{
		BatchID:        batch.ID,
		Status:         string(batch.Status),
		Reason:         batch.FailureReason,
		Total:          len(batch.Resumes),
		CompletedCount: batch.CompletedCount(),
		Resumes:        make([]ResumeProgress, 0, len(batch.Resumes)),
		Results:        make([]RankedResult, 0, len(batch.Results)),
	}

	uploadOrder := make(map[string]int, len(batch.Resumes))
	for idx, r := range batch.Resumes {
		uploadOrder[r.ID] = idx
		snap.Resumes = append(snap.Resumes, ResumeProgress{
			ID:       r.ID,
			Filename: r.Filename,
			Status:   string(r.Status),
			Error:    r.Error,
		})
		if result, ok := batch.Results[r.ID]; ok {
			snap.Results = append(snap.Results, RankedResult{
				ResumeID: r.ID,
				Filename: r.Filename,
				Analysis: result.Analysis,
			})
		}
	}

	sort.SliceStable(snap.Results, func(a, b int) bool {
		sa, sb := snap.Results[a].Analysis.OverallScore, snap.Results[b].Analysis.OverallScore
		if sa != sb {
			return sa > sb
		}
		return uploadOrder[snap.Results[a].ResumeID] < uploadOrder[snap.Results[b].ResumeID]
	})

	return snap, nil
}
