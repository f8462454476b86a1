package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/ONSdigital/dp-search-index-migration/config"
)

// Outcome is the terminal state of one migration
type Outcome string

const (
	// OutcomeSucceeded means the reindex task completed without errors
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means the reindex was rejected, or completed with errors
	OutcomeFailed Outcome = "failed"
	// OutcomeTimedOut means the task was still running at the poll deadline
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomePollFailed means status queries kept failing until retries ran out
	OutcomePollFailed Outcome = "poll_failed"
	// OutcomeCancelled means the run was cancelled before the task went terminal
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeInternalError means the migration path itself panicked
	OutcomeInternalError Outcome = "internal_error"
)

// MigrationResult is the immutable outcome of one migration
type MigrationResult struct {
	Migration config.Migration `json:"migration"`
	Outcome   Outcome          `json:"outcome"`
	Error     string           `json:"error,omitempty"`
	TaskID    string           `json:"task_id,omitempty"`
	Status    TaskStatus       `json:"status"`
	Duration  time.Duration    `json:"duration"`
}

// MigrationReport holds one result per configured migration, in the order the
// migrations were configured
type MigrationReport struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Results    []MigrationResult `json:"results"`
}

func newReport(size int) *MigrationReport {
	return &MigrationReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Results:   make([]MigrationResult, size),
	}
}

// Summary returns outcome counts across all results
func (r *MigrationReport) Summary() map[string]int {
	summary := make(map[string]int, len(r.Results))
	for i := range r.Results {
		summary[string(r.Results[i].Outcome)]++
	}
	return summary
}

// AllSucceeded is true when every migration in the report succeeded. An empty
// report counts as success.
func (r *MigrationReport) AllSucceeded() bool {
	for i := range r.Results {
		if r.Results[i].Outcome != OutcomeSucceeded {
			return false
		}
	}
	return true
}
