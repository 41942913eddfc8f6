package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// JobState is a background job's lifecycle stage.
type JobState string

const (
	JobRunning JobState = "RUNNING"
	JobDone    JobState = "DONE"
	JobFailed  JobState = "FAILED"
)

// Job is the status of one RefreshAsync/RebuildAsync call, polled via
// Engine.JobStatus.
type Job struct {
	ID    string
	State JobState
	Err   error
}

// jobTracker runs background work and remembers its outcome for later
// polling. Jobs are kept in memory only: a process restart loses job
// history, matching the spec's framing of job_id as a transient handle
// rather than part of the persisted schema.
type jobTracker struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func (t *jobTracker) start(fn func(ctx context.Context) error) string {
	t.mu.Lock()
	if t.jobs == nil {
		t.jobs = make(map[string]*Job)
	}
	id := uuid.NewString()
	t.jobs[id] = &Job{ID: id, State: JobRunning}
	t.mu.Unlock()

	go func() {
		err := fn(context.Background())
		t.mu.Lock()
		defer t.mu.Unlock()
		job := t.jobs[id]
		if err != nil {
			job.State = JobFailed
			job.Err = err
		} else {
			job.State = JobDone
		}
	}()

	return id
}

func (t *jobTracker) status(id string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}
