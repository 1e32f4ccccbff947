package ingest

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the state of an index run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Counters tally per-message outcomes of a run. All only grow.
type Counters struct {
	Saved       int64 `json:"saved"`
	Duplicate   int64 `json:"duplicate"`
	Deleted     int64 `json:"deleted"`
	NonMedia    int64 `json:"non_media"`
	Unsupported int64 `json:"unsupported"`
	Error       int64 `json:"error"`
}

// Processed is the number of messages accounted for.
func (c Counters) Processed() int64 {
	return c.Saved + c.Duplicate + c.Deleted + c.NonMedia + c.Unsupported + c.Error
}

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	JobID     string        `json:"job_id"`
	Chat      string        `json:"chat"`
	Status    Status        `json:"status"`
	Cursor    int           `json:"cursor"`
	Floor     int           `json:"floor"`
	Last      int           `json:"last"`
	Processed int64         `json:"processed"`
	Counters  Counters      `json:"counters"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"`
	Final     bool          `json:"final"`
}

// Result is the outcome of a finished run.
type Result struct {
	Snapshot
	Err error `json:"-"` // Set when Status is StatusFailed
}

// Job is the state of one run. It lives only while the run lock is held
// and is owned by the goroutine executing the run, except for the cancel
// signal.
type Job struct {
	ID        string
	Chat      string
	Floor     int
	Last      int
	Cursor    int
	Processed int64
	Counters  Counters
	StartedAt time.Time

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

func newJob(opts Options, now time.Time) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Chat:      opts.Chat,
		Floor:     opts.Floor,
		Last:      opts.Last,
		Cursor:    opts.Floor,
		StartedAt: now,
		cancelCh:  make(chan struct{}),
	}
}

// requestCancel asks the run to stop at the next check. Safe to call from
// any goroutine, any number of times.
func (j *Job) requestCancel() {
	j.cancelOnce.Do(func() { close(j.cancelCh) })
}

func (j *Job) snapshot(status Status, now time.Time) Snapshot {
	return Snapshot{
		JobID:     j.ID,
		Chat:      j.Chat,
		Status:    status,
		Cursor:    j.Cursor,
		Floor:     j.Floor,
		Last:      j.Last,
		Processed: j.Processed,
		Counters:  j.Counters,
		StartedAt: j.StartedAt,
		Elapsed:   now.Sub(j.StartedAt),
	}
}
