package pipeline

import (
	"fmt"
	"time"

	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

// RunResult summarizes one pipeline run.
type RunResult struct {
	RunID          string                  `json:"run_id"`
	Mode           string                  `json:"mode"`
	Outcome        profile.Outcome         `json:"outcome"`
	States         []profile.State         `json:"states"`
	StartedAt      time.Time               `json:"started_at"`
	FinishedAt     time.Time               `json:"finished_at"`
	FailedSources  []profile.SourceFailure `json:"failed_sources,omitempty"`
	DeliveryStatus int                     `json:"delivery_status,omitempty"`
	DeliveryBody   string                  `json:"delivery_body,omitempty"`
	FallbackURI    string                  `json:"fallback_uri,omitempty"`
	Aggregate      *profile.Aggregate      `json:"aggregate,omitempty"`
	Error          string                  `json:"error,omitempty"`

	err error
}

// Err returns the error that ended the run, including a delivery error that
// was recovered by the fallback.
func (r RunResult) Err() error {
	return r.err
}

// Record converts the result into run metadata. The aggregate is dropped.
func (r RunResult) Record() profile.RunRecord {
	return profile.RunRecord{
		ID:             r.RunID,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		Outcome:        r.Outcome,
		FailedSources:  append([]profile.SourceFailure(nil), r.FailedSources...),
		DeliveryStatus: r.DeliveryStatus,
		FallbackURI:    r.FallbackURI,
		ErrorText:      r.Error,
	}
}

// StatusLine is the one-line human summary printed for a run.
func (r RunResult) StatusLine() string {
	switch r.Outcome {
	case profile.OutcomeDelivered:
		return "delivered successfully"
	case profile.OutcomeFallback:
		return fmt.Sprintf("delivery failed, saved fallback to %s", r.FallbackURI)
	case profile.OutcomeAborted:
		return fmt.Sprintf("fetch failed, aborting: %v", r.err)
	case profile.OutcomeFailed:
		return fmt.Sprintf("delivery failed and fallback failed: %v", r.err)
	default:
		return fmt.Sprintf("run %s ended in unknown outcome %q", r.RunID, r.Outcome)
	}
}

// Notification is the message published after every run.
type Notification struct {
	RunID          string                  `json:"run_id"`
	Outcome        profile.Outcome         `json:"outcome"`
	DeliveryStatus int                     `json:"delivery_status,omitempty"`
	FallbackURI    string                  `json:"fallback_uri,omitempty"`
	FailedSources  []profile.SourceFailure `json:"failed_sources,omitempty"`
	Timestamp      time.Time               `json:"timestamp"`
}

func (r RunResult) notification() Notification {
	return Notification{
		RunID:          r.RunID,
		Outcome:        r.Outcome,
		DeliveryStatus: r.DeliveryStatus,
		FallbackURI:    r.FallbackURI,
		FailedSources:  r.FailedSources,
		Timestamp:      r.FinishedAt,
	}
}
