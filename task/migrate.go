package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ONSdigital/log.go/v2/log"

	"github.com/ONSdigital/dp-search-index-migration/config"
)

// unitMigrator drives a single migration from submission to a terminal outcome
type unitMigrator struct {
	submitter Submitter
	poller    *Poller
	strict    bool
}

// Migrate submits the reindex for one migration and polls it to a terminal
// state. It never returns an error: every failure mode is folded into the
// result, so one bad migration cannot take down the run.
func (m *unitMigrator) Migrate(ctx context.Context, migration config.Migration) MigrationResult {
	started := time.Now()
	log.Info(ctx, "migration started", log.Data{"source": migration.Source, "dest": migration.Dest})

	result := MigrationResult{Migration: migration}

	taskID, err := m.submitter.SubmitReindex(ctx, migration)
	if err != nil {
		// submission failures are terminal, the poller is never invoked
		result.Outcome = OutcomeFailed
		if ctx.Err() != nil {
			result.Outcome = OutcomeCancelled
		}
		result.Error = err.Error()
		return m.finish(ctx, result, started)
	}
	result.TaskID = taskID
	log.Info(ctx, "reindex task accepted", log.Data{"source": migration.Source, "dest": migration.Dest, "task_id": taskID})

	status, err := m.poller.Poll(ctx, taskID)
	result.Status = status
	switch {
	case errors.Is(err, ErrPollTimeout):
		result.Outcome = OutcomeTimedOut
		result.Error = err.Error()
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		result.Outcome = OutcomeCancelled
		result.Error = err.Error()
	case err != nil:
		result.Outcome = OutcomePollFailed
		result.Error = err.Error()
	case status.OK(m.strict):
		result.Outcome = OutcomeSucceeded
	default:
		result.Outcome = OutcomeFailed
		result.Error = failureDetail(status, m.strict)
	}
	return m.finish(ctx, result, started)
}

func (m *unitMigrator) finish(ctx context.Context, result MigrationResult, started time.Time) MigrationResult {
	result.Duration = time.Since(started)

	data := log.Data{
		"source":   result.Migration.Source,
		"dest":     result.Migration.Dest,
		"outcome":  result.Outcome,
		"duration": result.Duration.String(),
	}
	if result.Outcome == OutcomeSucceeded {
		log.Info(ctx, "migration terminal", data)
	} else {
		data["error"] = result.Error
		log.Error(ctx, "migration terminal", errors.New(result.Error), data)
	}
	return result
}

// failureDetail describes why a completed snapshot did not count as a success
func failureDetail(status TaskStatus, strict bool) string {
	switch {
	case status.Error != "":
		return status.Error
	case status.FailureCount > 0:
		return fmt.Sprintf("reindex completed with %d document failures", status.FailureCount)
	case strict && status.Processed() != status.Total:
		return fmt.Sprintf("reindex processed %d of %d documents", status.Processed(), status.Total)
	default:
		return "reindex did not complete successfully"
	}
}
