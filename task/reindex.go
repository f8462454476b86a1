package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	"github.com/pkg/errors"

	"github.com/ONSdigital/dp-search-index-migration/config"
)

// Submitter starts the remote asynchronous copy for one migration and returns
// the task id the target cluster assigned to it
type Submitter interface {
	SubmitReindex(ctx context.Context, migration config.Migration) (string, error)
}

// StatusGetter retrieves a point-in-time snapshot of a reindex task
type StatusGetter interface {
	GetTaskStatus(ctx context.Context, taskID string) (TaskStatus, error)
}

// TaskStatus is a snapshot of a remote reindex task as reported by the task API
type TaskStatus struct {
	Completed        bool   `json:"completed"`
	Total            int64  `json:"total"`
	Created          int64  `json:"created"`
	Updated          int64  `json:"updated"`
	Deleted          int64  `json:"deleted"`
	VersionConflicts int64  `json:"version_conflicts"`
	FailureCount     int    `json:"failure_count"`
	Error            string `json:"error,omitempty"`
}

// Processed returns the number of documents the task has written so far
func (s TaskStatus) Processed() int64 {
	return s.Created + s.Updated + s.Deleted
}

// OK reports whether a completed snapshot counts as a successful migration.
// In strict mode a shortfall between processed and total documents is a failure.
func (s TaskStatus) OK(strict bool) bool {
	if !s.Completed || s.Error != "" || s.FailureCount > 0 {
		return false
	}
	if strict && s.Processed() != s.Total {
		return false
	}
	return true
}

// reindexClient implements Submitter and StatusGetter against the target
// cluster's reindex and task APIs
type reindexClient struct {
	es  *elasticsearch.Client
	cfg *config.Config
}

func newReindexClient(es *elasticsearch.Client, cfg *config.Config) *reindexClient {
	return &reindexClient{es: es, cfg: cfg}
}

type reindexRemote struct {
	Host     string `json:"host"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type reindexSource struct {
	Remote reindexRemote `json:"remote"`
	Index  string        `json:"index"`
}

type reindexDest struct {
	Index string `json:"index"`
}

type reindexRequest struct {
	Source reindexSource `json:"source"`
	Dest   reindexDest   `json:"dest"`
}

// SubmitReindex asks the target cluster to pull the source index from the
// remote source cluster, without waiting for completion
func (c *reindexClient) SubmitReindex(ctx context.Context, migration config.Migration) (string, error) {
	body, err := json.Marshal(reindexRequest{
		Source: reindexSource{
			Remote: reindexRemote{
				Host:     c.cfg.SourceRemoteHost,
				Username: c.cfg.SourceRemoteUsername,
				Password: c.cfg.SourceRemotePassword,
			},
			Index: migration.Source,
		},
		Dest: reindexDest{
			Index: migration.Dest,
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal reindex request")
	}

	res, err := c.es.Reindex(bytes.NewReader(body),
		c.es.Reindex.WithContext(ctx),
		c.es.Reindex.WithWaitForCompletion(false),
		c.es.Reindex.WithRequestsPerSecond(c.cfg.RequestsPerSecond),
	)
	if err != nil {
		return "", errors.Wrap(err, "reindex request failed")
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", errors.Errorf("reindex request rejected with status %d: %s", res.StatusCode, bodyExcerpt(res.Body))
	}

	var accepted struct {
		Task string `json:"task"`
	}
	if err := json.NewDecoder(res.Body).Decode(&accepted); err != nil {
		return "", errors.Wrap(err, "failed to decode reindex response")
	}
	if accepted.Task == "" {
		return "", errors.New("reindex response contained no task id")
	}
	return accepted.Task, nil
}

type taskGetResponse struct {
	Completed bool `json:"completed"`
	Task      struct {
		Status struct {
			Total            int64 `json:"total"`
			Created          int64 `json:"created"`
			Updated          int64 `json:"updated"`
			Deleted          int64 `json:"deleted"`
			VersionConflicts int64 `json:"version_conflicts"`
		} `json:"status"`
	} `json:"task"`
	Response struct {
		Failures []json.RawMessage `json:"failures"`
	} `json:"response"`
	Error *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// GetTaskStatus fetches and decodes the current snapshot of a task. Transport
// errors and non-2xx responses are returned as errors, and are retryable; a
// completed task with an embedded error is a valid, terminal snapshot.
func (c *reindexClient) GetTaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	res, err := c.es.Tasks.Get(
		taskID,
		c.es.Tasks.Get.WithContext(ctx),
	)
	if err != nil {
		return TaskStatus{}, errors.Wrap(err, "task status query failed")
	}
	defer res.Body.Close()

	if res.IsError() {
		return TaskStatus{}, errors.Errorf("task status query returned status %d: %s", res.StatusCode, bodyExcerpt(res.Body))
	}

	var decoded taskGetResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return TaskStatus{}, errors.Wrap(err, "failed to decode task status response")
	}

	status := TaskStatus{
		Completed:        decoded.Completed,
		Total:            decoded.Task.Status.Total,
		Created:          decoded.Task.Status.Created,
		Updated:          decoded.Task.Status.Updated,
		Deleted:          decoded.Task.Status.Deleted,
		VersionConflicts: decoded.Task.Status.VersionConflicts,
		FailureCount:     len(decoded.Response.Failures),
	}
	if decoded.Error != nil {
		status.Error = fmt.Sprintf("%s: %s", decoded.Error.Type, decoded.Error.Reason)
	}
	return status, nil
}

// bodyExcerpt returns a short prefix of an error response body for log messages
func bodyExcerpt(body io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil || len(b) == 0 {
		return "<no response body>"
	}
	return string(b)
}
