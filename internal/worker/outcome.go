package worker

import (
	"time"

	"chromascale/internal/jobqueue"
)

// Outcome names the terminal state of a job.
type Outcome string

const (
	OutcomeProcessed          Outcome = "processed"
	OutcomeSkippedMoved       Outcome = "skipped_moved"
	OutcomeSkippedLeftInPlace Outcome = "skipped_left_in_place"
	OutcomeDroppedUnreadable  Outcome = "dropped_unreadable"
	OutcomeFailed             Outcome = "failed"
)

// Outcomes lists every outcome in display order.
func Outcomes() []Outcome {
	return []Outcome{
		OutcomeProcessed,
		OutcomeSkippedMoved,
		OutcomeSkippedLeftInPlace,
		OutcomeDroppedUnreadable,
		OutcomeFailed,
	}
}

// ParseOutcome matches s against the known outcomes.
func ParseOutcome(s string) (Outcome, bool) {
	for _, o := range Outcomes() {
		if string(o) == s {
			return o, true
		}
	}
	return "", false
}

// Result describes what happened to one job.
type Result struct {
	Job        jobqueue.Job
	Outcome    Outcome
	Width      int
	Height     int
	OutputPath string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}
