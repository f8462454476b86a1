package task

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

var ctx = context.Background()

const testTaskID = "oTUltX4IQMOUUVeiohTt8A:12345"

// statusGetterFunc adapts a plain function to the StatusGetter interface
type statusGetterFunc func(ctx context.Context, taskID string) (TaskStatus, error)

func (f statusGetterFunc) GetTaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	return f(ctx, taskID)
}

func newTestPoller(status StatusGetter, interval, timeout time.Duration, maxRetries int) *Poller {
	return &Poller{
		status:     status,
		interval:   interval,
		timeout:    timeout,
		maxRetries: maxRetries,
		tracker:    &Tracker{},
	}
}

func TestPollerCompletion(t *testing.T) {
	Convey("Given a task that is already complete", t, func() {
		queries := 0
		status := statusGetterFunc(func(_ context.Context, _ string) (TaskStatus, error) {
			queries++
			return TaskStatus{Completed: true, Total: 10, Created: 10}, nil
		})
		poller := newTestPoller(status, time.Millisecond, 10*time.Millisecond, 0)

		Convey("When the task is polled", func() {
			got, err := poller.Poll(ctx, testTaskID)

			Convey("Then the terminal snapshot is returned after a single query", func() {
				So(err, ShouldBeNil)
				So(got.Completed, ShouldBeTrue)
				So(got.Processed(), ShouldEqual, 10)
				So(queries, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a task that completes on the third check", t, func() {
		queries := 0
		status := statusGetterFunc(func(_ context.Context, _ string) (TaskStatus, error) {
			queries++
			return TaskStatus{Completed: queries >= 3, Total: 5, Created: 5}, nil
		})
		poller := newTestPoller(status, time.Millisecond, 100*time.Millisecond, 0)

		Convey("When the task is polled", func() {
			got, err := poller.Poll(ctx, testTaskID)

			Convey("Then polling stops as soon as the task completes", func() {
				So(err, ShouldBeNil)
				So(got.Completed, ShouldBeTrue)
				So(queries, ShouldEqual, 3)
			})
		})
	})

	Convey("Given a completed task carrying a failure", t, func() {
		status := statusGetterFunc(func(_ context.Context, _ string) (TaskStatus, error) {
			return TaskStatus{Completed: true, Error: "search_phase_execution_exception: all shards failed"}, nil
		})
		poller := newTestPoller(status, time.Millisecond, 10*time.Millisecond, 0)

		Convey("When the task is polled", func() {
			got, err := poller.Poll(ctx, testTaskID)

			Convey("Then the failed snapshot is terminal, not an error", func() {
				So(err, ShouldBeNil)
				So(got.Completed, ShouldBeTrue)
				So(got.OK(false), ShouldBeFalse)
			})
		})
	})
}

func TestPollerTimeout(t *testing.T) {
	Convey("Given a task that never completes", t, func() {
		queries := 0
		status := statusGetterFunc(func(_ context.Context, _ string) (TaskStatus, error) {
			queries++
			return TaskStatus{Completed: false, Total: 100, Created: 1}, nil
		})

		Convey("When polled with a timeout of five intervals", func() {
			poller := newTestPoller(status, time.Millisecond, 5*time.Millisecond, 0)
			got, err := poller.Poll(ctx, testTaskID)

			Convey("Then the poll times out carrying the last snapshot", func() {
				So(errors.Is(err, ErrPollTimeout), ShouldBeTrue)
				So(got.Total, ShouldEqual, 100)
			})

			Convey("And no more than ceil(timeout/interval) queries were issued", func() {
				So(queries, ShouldBeLessThanOrEqualTo, 5)
			})
		})

		Convey("When polled with a timeout that is not a whole number of intervals", func() {
			poller := newTestPoller(status, 2*time.Millisecond, 5*time.Millisecond, 0)
			_, err := poller.Poll(ctx, testTaskID)

			Convey("Then the query count is still bounded by the rounded-up check count", func() {
				So(errors.Is(err, ErrPollTimeout), ShouldBeTrue)
				So(queries, ShouldBeLessThanOrEqualTo, 3)
			})
		})
	})
}

func TestPollerRetries(t *testing.T) {
	Convey("Given status queries that fail twice before succeeding", t, func() {
		queries := 0
		status := statusGetterFunc(func(_ context.Context, _ string) (TaskStatus, error) {
			queries++
			if queries <= 2 {
				return TaskStatus{}, errors.New("connection reset")
			}
			return TaskStatus{Completed: true, Total: 3, Created: 3}, nil
		})
		poller := newTestPoller(status, time.Millisecond, 50*time.Millisecond, 3)

		Convey("When the task is polled", func() {
			got, err := poller.Poll(ctx, testTaskID)

			Convey("Then the transient failures are invisible in the outcome", func() {
				So(err, ShouldBeNil)
				So(got.OK(true), ShouldBeTrue)
				So(queries, ShouldEqual, 3)
			})
		})
	})

	Convey("Given status queries that always fail", t, func() {
		queries := 0
		status := statusGetterFunc(func(_ context.Context, _ string) (TaskStatus, error) {
			queries++
			return TaskStatus{}, errors.New("connection reset")
		})
		poller := newTestPoller(status, time.Millisecond, 50*time.Millisecond, 2)

		Convey("When the task is polled", func() {
			_, err := poller.Poll(ctx, testTaskID)

			Convey("Then the poll fails once the retries are exhausted", func() {
				So(errors.Is(err, ErrPollRetriesExhausted), ShouldBeTrue)
				So(queries, ShouldEqual, 3)
			})
		})
	})
}

func TestPollerCancellation(t *testing.T) {
	Convey("Given a task that never completes and a cancellable context", t, func() {
		status := statusGetterFunc(func(_ context.Context, _ string) (TaskStatus, error) {
			return TaskStatus{Completed: false}, nil
		})
		poller := newTestPoller(status, time.Minute, time.Hour, 0)

		cancelCtx, cancel := context.WithCancel(ctx)
		time.AfterFunc(10*time.Millisecond, cancel)

		Convey("When the poll is cancelled while sleeping between checks", func() {
			start := time.Now()
			_, err := poller.Poll(cancelCtx, testTaskID)

			Convey("Then the poll aborts promptly with the context error", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(time.Since(start), ShouldBeLessThan, time.Minute)
			})
		})
	})
}
