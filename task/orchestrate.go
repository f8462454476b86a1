package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ONSdigital/log.go/v2/log"
	"golang.org/x/sync/semaphore"

	"github.com/ONSdigital/dp-search-index-migration/config"
)

// Migrator takes one migration to a terminal result
type Migrator interface {
	Migrate(ctx context.Context, migration config.Migration) MigrationResult
}

// orchestrator fans migrations out to the migrator with bounded concurrency and
// collects exactly one result per migration, in submission order
type orchestrator struct {
	migrator        Migrator
	maxConcurrent   int64
	tracker         *Tracker
	trackerInterval time.Duration
}

// Run executes every migration and returns the complete report. It never
// fails: a run where everything went wrong is a report full of failed results.
func (o *orchestrator) Run(ctx context.Context, migrations []config.Migration) *MigrationReport {
	report := newReport(len(migrations))
	if len(migrations) == 0 {
		report.FinishedAt = time.Now()
		return report
	}

	stopTracking := o.trackProgress(ctx, report.RunID)
	defer stopTracking()

	sem := semaphore.NewWeighted(o.maxConcurrent)
	var wg sync.WaitGroup

	// each result slot is written exactly once, by the goroutine owning its index
	for i, m := range migrations {
		if err := sem.Acquire(ctx, 1); err != nil {
			// run cancelled before this migration could start
			report.Results[i] = MigrationResult{Migration: m, Outcome: OutcomeCancelled, Error: err.Error()}
			o.tracker.Inc(string(OutcomeCancelled))
			continue
		}
		wg.Add(1)
		go func(i int, m config.Migration) {
			defer wg.Done()
			defer sem.Release(1)
			report.Results[i] = o.runOne(ctx, m)
		}(i, m)
	}
	wg.Wait()

	report.FinishedAt = time.Now()
	log.Info(ctx, "all migrations terminal", log.Data{
		"run_id":   report.RunID,
		"summary":  report.Summary(),
		"counters": o.tracker.Get(),
	})
	return report
}

// runOne isolates a defect in one migration path so the rest of the run continues
func (o *orchestrator) runOne(ctx context.Context, m config.Migration) (result MigrationResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("migration panicked: %v", r)
			log.Error(ctx, "migration panicked", err, log.Data{"source": m.Source, "dest": m.Dest})
			result = MigrationResult{Migration: m, Outcome: OutcomeInternalError, Error: err.Error()}
		}
		o.tracker.Inc(string(result.Outcome))
	}()
	result = o.migrator.Migrate(ctx, m)
	return result
}

// trackProgress logs the tracker counters on a ticker until the returned stop
// function is called
func (o *orchestrator) trackProgress(ctx context.Context, runID string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(o.trackerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				log.Info(ctx, "migration progress", log.Data{"run_id": runID, "counters": o.tracker.Get()})
			}
		}
	}()
	return func() { close(done) }
}
