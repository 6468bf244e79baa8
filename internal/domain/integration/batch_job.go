package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/shared"
)

// DefaultMaxRecentErrors bounds the recent error list of a job
const DefaultMaxRecentErrors = 20

// ---------------------------------------------------------------------------
// JobStatus
// ---------------------------------------------------------------------------

// JobStatus is the lifecycle state of a batch job
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusPaused     JobStatus = "paused"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// IsValid returns true if the status is valid
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusProcessing, JobStatusPaused, JobStatusCompleted, JobStatusError:
		return true
	default:
		return false
	}
}

// String returns the string representation of JobStatus
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal returns true for completed and error
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// CanTransitionTo reports whether next is reachable from s.
// processing may move anywhere; paused may resume or be stopped;
// terminal states never move.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusProcessing:
		return next.IsValid()
	case JobStatusPaused:
		return next == JobStatusProcessing || next == JobStatusError
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Value objects
// ---------------------------------------------------------------------------

// JobOptions are the per-job sync switches.
type JobOptions struct {
	IncludeVariations bool `json:"include_variations"`
	IncludeImages     bool `json:"include_images"`
	IncludeCategories bool `json:"include_categories"`
	// PreservePrices keeps destination prices untouched on update
	PreservePrices bool `json:"preserve_prices"`
	UpdateStock    bool `json:"update_stock"`
	// BatchSize of 0 means the host-derived default
	BatchSize int `json:"batch_size"`
	// Priority is opaque to the engine and handed to the continuation scheduler
	Priority int `json:"priority"`
}

// UpdateOptions derives the remote update field gates.
func (o JobOptions) UpdateOptions() UpdateOptions {
	return UpdateOptions{
		UpdatePrices: !o.PreservePrices,
		UpdateStock:  o.UpdateStock,
	}
}

// JobCounters are the per-item tallies of a job
type JobCounters struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// JobError is one entry of the bounded recent error list
type JobError struct {
	ItemID  int64      `json:"item_id"`
	StoreID *uuid.UUID `json:"store_id,omitempty"`
	SKU     string     `json:"sku,omitempty"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// ---------------------------------------------------------------------------
// BatchJob aggregate
// ---------------------------------------------------------------------------

// BatchJob is a resumable sync run over work items and destination stores.
// Cursor is an offset into WorkItemIDs; it only grows.
type BatchJob struct {
	ID                  uuid.UUID
	WorkItemIDs         []int64
	DestinationStoreIDs []uuid.UUID
	Options             JobOptions
	Cursor              int
	Counters            JobCounters
	RecentErrors        []JobError
	Status              JobStatus
	StatusReason        string
	FencingToken        int64
	Attempts            int
	// RetryOf links a retry job to the job it was derived from
	RetryOf     *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// NewBatchJob validates the input and creates a job at cursor 0.
// Work item order is kept as given; duplicate store ids are dropped.
func NewBatchJob(workItemIDs []int64, storeIDs []uuid.UUID, opts JobOptions) (*BatchJob, error) {
	if len(workItemIDs) == 0 {
		return nil, fmt.Errorf("%w: no work items", ErrInvalidJobInput)
	}
	if len(storeIDs) == 0 {
		return nil, fmt.Errorf("%w: no destination stores", ErrInvalidJobInput)
	}
	if opts.BatchSize < 0 {
		return nil, fmt.Errorf("%w: negative batch size", ErrInvalidJobInput)
	}

	seen := make(map[uuid.UUID]struct{}, len(storeIDs))
	stores := make([]uuid.UUID, 0, len(storeIDs))
	for _, id := range storeIDs {
		if id == uuid.Nil {
			return nil, fmt.Errorf("%w: nil store id", ErrInvalidJobInput)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		stores = append(stores, id)
	}

	items := make([]int64, len(workItemIDs))
	copy(items, workItemIDs)

	now := shared.Now()
	return &BatchJob{
		ID:                  uuid.New(),
		WorkItemIDs:         items,
		DestinationStoreIDs: stores,
		Options:             opts,
		Status:              JobStatusProcessing,
		RecentErrors:        []JobError{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// Total returns the number of work items
func (j *BatchJob) Total() int {
	return len(j.WorkItemIDs)
}

// Progress returns processed/total as a percentage clamped to [0, 100].
// An empty job reports 100.
func (j *BatchJob) Progress() float64 {
	total := j.Total()
	if total == 0 {
		return 100
	}
	p := float64(j.Counters.Processed) / float64(total) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// IsTerminal reports whether the job reached completed or error
func (j *BatchJob) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Remaining returns how many work items are left past the cursor
func (j *BatchJob) Remaining() int {
	if j.Cursor >= j.Total() {
		return 0
	}
	return j.Total() - j.Cursor
}

// NextSlice returns the work item ids of the next slice of at most size items.
func (j *BatchJob) NextSlice(size int) []int64 {
	if size <= 0 || j.Cursor >= j.Total() {
		return nil
	}
	end := j.Cursor + size
	if end > j.Total() {
		end = j.Total()
	}
	return j.WorkItemIDs[j.Cursor:end]
}

// RecordItem counts one processed work item.
func (j *BatchJob) RecordItem(succeeded bool) {
	j.Counters.Processed++
	if succeeded {
		j.Counters.Succeeded++
	} else {
		j.Counters.Failed++
	}
}

// AppendError keeps the newest limit errors, oldest first.
func (j *BatchJob) AppendError(e JobError, limit int) {
	if limit <= 0 {
		limit = DefaultMaxRecentErrors
	}
	e.Message = TruncateMessage(e.Message)
	j.RecentErrors = append(j.RecentErrors, e)
	if over := len(j.RecentErrors) - limit; over > 0 {
		j.RecentErrors = append([]JobError(nil), j.RecentErrors[over:]...)
	}
}

// Advance moves the cursor forward by n processed items and completes the
// job once every item is processed.
func (j *BatchJob) Advance(n int, now time.Time) error {
	if n < 0 {
		return fmt.Errorf("%w: cursor cannot move backwards", ErrInvalidTransition)
	}
	j.Cursor += n
	if j.Cursor > j.Total() {
		j.Cursor = j.Total()
	}
	j.UpdatedAt = now
	if j.Cursor >= j.Total() && j.Status == JobStatusProcessing {
		return j.transition(JobStatusCompleted, "", now)
	}
	return nil
}

// Pause suspends a processing job
func (j *BatchJob) Pause(now time.Time) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("%w: cannot pause a %s job", ErrInvalidTransition, j.Status)
	}
	return j.transition(JobStatusPaused, "paused by operator", now)
}

// Resume continues a paused job
func (j *BatchJob) Resume(now time.Time) error {
	if j.Status != JobStatusPaused {
		return fmt.Errorf("%w: cannot resume a %s job", ErrInvalidTransition, j.Status)
	}
	return j.transition(JobStatusProcessing, "", now)
}

// Stop terminates the job. A stopped job cannot be resumed.
func (j *BatchJob) Stop(now time.Time) error {
	return j.transition(JobStatusError, "stopped by operator", now)
}

// Fail terminates the job with reason
func (j *BatchJob) Fail(reason string, now time.Time) error {
	return j.transition(JobStatusError, TruncateMessage(reason), now)
}

func (j *BatchJob) transition(next JobStatus, reason string, now time.Time) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	j.StatusReason = reason
	j.UpdatedAt = now
	if next.IsTerminal() && j.CompletedAt == nil {
		at := now
		j.CompletedAt = &at
	}
	return nil
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// JobRepository persists batch jobs
type JobRepository interface {
	Create(ctx context.Context, job *BatchJob) error

	// FindByID returns ErrJobNotFound when missing
	FindByID(ctx context.Context, id uuid.UUID) (*BatchJob, error)

	FindByStatus(ctx context.Context, status JobStatus) ([]BatchJob, error)

	// SaveProgress writes cursor, counters, errors and status of a slice.
	// It fails with ErrStaleFencingToken when a newer lease holder already
	// wrote. A status changed meanwhile by an operator is kept and copied
	// back into job.
	SaveProgress(ctx context.Context, job *BatchJob) error

	// CompareAndSetStatus moves id from one status to another, failing with
	// ErrInvalidTransition when the stored status is not from.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to JobStatus, reason string) error

	// FindTerminalBefore lists finished jobs last updated before the cutoff
	FindTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]BatchJob, error)

	Delete(ctx context.Context, id uuid.UUID) error
}

// JobLease guards a job against concurrent slice execution.
type JobLease interface {
	// Acquire returns ErrJobLeased when another holder has the lease. The
	// lease token is greater than after, the token the job was last saved
	// with, so a lease issued after a restart still passes the fence.
	Acquire(ctx context.Context, jobID uuid.UUID, ttl time.Duration, after int64) (Lease, error)
}

// Lease is a held job lease.
type Lease interface {
	// Token is a fencing token that grows with every acquisition
	Token() int64
	Release(ctx context.Context) error
}

// ContinuationScheduler resumes a job's next slice no earlier than notBefore.
type ContinuationScheduler interface {
	Enqueue(ctx context.Context, jobID uuid.UUID, notBefore time.Time, priority int) error
}
