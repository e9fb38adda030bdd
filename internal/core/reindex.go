package core

import (
	"context"
	"fmt"
	"time"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

// reindexer runs reindex jobs to completion
type reindexer struct {
	client   cluster.ClientInterface
	log      Logger
	interval time.Duration
	timeout  time.Duration
}

// run copies every document from source to dest and blocks until the job
// has finished. A job that completes inside the request is done at once.
func (r *reindexer) run(ctx context.Context, source, dest, script string) (*models.ReindexResult, error) {
	started, err := r.client.Reindex(ctx, source, dest, script)
	if err != nil {
		return nil, fmt.Errorf("reindex %s into %s: %w", source, dest, err)
	}
	if started.Task == "" {
		if err := checkReindexResult(started); err != nil {
			return nil, fmt.Errorf("reindex %s into %s: %w", source, dest, err)
		}
		return started, nil
	}

	r.log.Info("waiting for reindex task", "task", started.Task, "source", source, "dest", dest)
	result, err := r.wait(ctx, started.Task)
	if err != nil {
		return nil, fmt.Errorf("reindex %s into %s: %w", source, dest, err)
	}
	return result, nil
}

// wait polls a task at a fixed interval until it completes or the timeout
// passes. A failed status query ends the wait immediately.
func (r *reindexer) wait(ctx context.Context, taskID string) (*models.ReindexResult, error) {
	deadline := time.Now().Add(r.timeout)
	for {
		status, err := r.client.GetTaskStatus(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("query task %s: %w", taskID, err)
		}
		if status.Completed {
			if status.Error != "" {
				return nil, fmt.Errorf("task %s failed: %s", taskID, status.Error)
			}
			result := status.Response
			if result == nil {
				result = &models.ReindexResult{}
			}
			result.Task = taskID
			if err := checkReindexResult(result); err != nil {
				return nil, err
			}
			r.log.Info("reindex task completed", "task", taskID, "total", result.Total,
				"created", result.Created, "updated", result.Updated)
			return result, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("task %s did not complete within %s", taskID, r.timeout)
		}
		if err := sleep(ctx, r.interval); err != nil {
			return nil, err
		}
	}
}

// checkReindexResult turns per-document failures and timeouts into an error
func checkReindexResult(result *models.ReindexResult) error {
	if result.TimedOut {
		return fmt.Errorf("reindex timed out after %d of %d documents", result.Created+result.Updated, result.Total)
	}
	if n := len(result.Failures); n > 0 {
		f := result.Failures[0]
		return fmt.Errorf("%d documents failed to reindex, first: id %s in %s (status %d): %s", n, f.ID, f.Index, f.Status, f.Cause)
	}
	return nil
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
