package task

import (
	"context"
	"time"

	"github.com/ONSdigital/log.go/v2/log"
	"github.com/pkg/errors"

	"github.com/ONSdigital/dp-search-index-migration/config"
)

var (
	// ErrPollTimeout is returned when the task has not completed by the poll deadline
	ErrPollTimeout = errors.New("timed out waiting for task to complete")
	// ErrPollRetriesExhausted is returned when consecutive status queries keep failing
	ErrPollRetriesExhausted = errors.New("task status query retries exhausted")
)

// Poller repeatedly queries a task until it reaches a terminal state
type Poller struct {
	status     StatusGetter
	interval   time.Duration
	timeout    time.Duration
	maxRetries int
	tracker    *Tracker
}

func newPoller(status StatusGetter, cfg *config.Config, tracker *Tracker) *Poller {
	return &Poller{
		status:     status,
		interval:   cfg.PollInterval,
		timeout:    cfg.PollTimeout,
		maxRetries: cfg.PollMaxRetries,
		tracker:    tracker,
	}
}

// Poll blocks until the task completes, the timeout elapses or ctx is cancelled.
// On a nil error the returned snapshot is terminal; success or failure is
// carried inside the snapshot, not in the error. The number of status checks is
// bounded by ceil(timeout/interval), with transient query errors retried with
// doubling backoff without consuming a check.
func (p *Poller) Poll(ctx context.Context, taskID string) (TaskStatus, error) {
	var last TaskStatus

	maxChecks := int((p.timeout + p.interval - 1) / p.interval)
	retries := 0

	for check := 1; ; {
		status, err := p.status.GetTaskStatus(ctx, taskID)
		p.tracker.Inc("status-queries")
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			retries++
			p.tracker.Inc("status-query-errors")
			if retries > p.maxRetries {
				return last, errors.Wrap(ErrPollRetriesExhausted, err.Error())
			}
			log.Info(ctx, "task status query failed, retrying", log.Data{
				"task_id": taskID,
				"attempt": retries,
				"error":   err.Error(),
			})
			if err := p.sleep(ctx, p.interval<<(retries-1)); err != nil {
				return last, err
			}
			continue
		}
		retries = 0
		last = status

		if status.Completed {
			return last, nil
		}
		if check >= maxChecks {
			return last, ErrPollTimeout
		}
		check++

		log.Info(ctx, "task still in progress", log.Data{
			"task_id":   taskID,
			"processed": status.Processed(),
			"total":     status.Total,
		})
		if err := p.sleep(ctx, p.interval); err != nil {
			return last, err
		}
	}
}

// sleep waits for d without holding any lock, returning early if ctx is cancelled
func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
