package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a job's lifecycle state. Transitions only move forward; terminal
// states are frozen.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further updates are accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	default:
		return 2
	}
}

// Kind labels what a job does.
type Kind string

const (
	KindGenerate Kind = "generate"
	KindUpload   Kind = "upload"
)

// Job is the tracked state of one asynchronous unit of work.
type Job struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`

	// CancelRequested is observed cooperatively by the running pipeline at
	// its stage checkpoints; nothing is killed preemptively.
	CancelRequested bool `json:"cancel_requested"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrNotFound = errors.New("job not found")
	ErrTerminal = errors.New("job already in a terminal state")
	ErrBackward = errors.New("job status cannot move backward")
)

// Tracker is a concurrency-safe registry of job state. Jobs are never deleted
// automatically; retention is the caller's concern.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*Job)}
}

// Create registers a new pending job and returns its id. Ids are opaque and
// unique for the process lifetime.
func (t *Tracker) Create(kind Kind) string {
	id := uuid.NewString()
	now := time.Now()
	t.mu.Lock()
	t.jobs[id] = &Job{
		ID:        id,
		Kind:      kind,
		Status:    StatusPending,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.mu.Unlock()
	return id
}

// Update overwrites status/progress/message. Updates on terminal jobs are
// rejected and leave the record untouched, as are backward status moves.
func (t *Tracker) Update(id string, status Status, progress int, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, id)
	}
	if status.rank() < j.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrBackward, j.Status, status)
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	j.Status = status
	j.Progress = progress
	j.Message = message
	j.UpdatedAt = time.Now()
	return nil
}

// Progress is Update keeping the job running.
func (t *Tracker) Progress(id string, progress int, message string) error {
	return t.Update(id, StatusRunning, progress, message)
}

// Get returns a copy of the job.
func (t *Tracker) Get(id string) (Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *j, nil
}

// Cancel requests cooperative cancellation. Requesting cancellation of a
// terminal job is a no-op: there is nothing left to observe the flag.
func (t *Tracker) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if j.Status.Terminal() {
		return nil
	}
	j.CancelRequested = true
	j.UpdatedAt = time.Now()
	return nil
}

// CancelRequested reports the cancel flag; unknown ids read as false.
func (t *Tracker) CancelRequested(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	return ok && j.CancelRequested
}

// List returns all jobs, newest first.
func (t *Tracker) List() []Job {
	t.mu.RLock()
	out := make([]Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, *j)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
