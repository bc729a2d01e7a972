package domain

import "time"

// Envelope is the TTL-bound session container. It owns exactly one batch plus
// the flags the scheduler needs; destroying the envelope destroys the batch
// and any staged files transitively.
type Envelope struct {
	Batch           *Batch    `json:"batch"`
	LastTouched     time.Time `json:"last_touched"`
	Analyzing       bool      `json:"analyzing"`
	CancelRequested bool      `json:"cancel_requested"`
}

func NewEnvelope() *Envelope {
	return &Envelope{
		Batch:       NewBatch(),
		LastTouched: time.Now().UTC(),
	}
}

func (e *Envelope) Touch(now time.Time) {
	e.LastTouched = now.UTC()
}

func (e *Envelope) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.LastTouched) > ttl
}
