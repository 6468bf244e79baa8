package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memJobs implements the parts of integration.JobRepository the purger uses
type memJobs struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*integration.BatchJob
	listErr error
}

func newMemJobs(jobs ...*integration.BatchJob) *memJobs {
	m := &memJobs{jobs: make(map[uuid.UUID]*integration.BatchJob)}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobs) Create(_ context.Context, job *integration.BatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *memJobs) FindByID(_ context.Context, id uuid.UUID) (*integration.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, integration.ErrJobNotFound
	}
	return job, nil
}

func (m *memJobs) FindByStatus(context.Context, integration.JobStatus) ([]integration.BatchJob, error) {
	return nil, nil
}

func (m *memJobs) SaveProgress(context.Context, *integration.BatchJob) error { return nil }

func (m *memJobs) CompareAndSetStatus(context.Context, uuid.UUID, integration.JobStatus, integration.JobStatus, string) error {
	return nil
}

func (m *memJobs) FindTerminalBefore(_ context.Context, cutoff time.Time, limit int) ([]integration.BatchJob, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []integration.BatchJob
	for _, j := range m.jobs {
		if j.Status.IsTerminal() && j.UpdatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memJobs) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *memJobs) has(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[id]
	return ok
}

type fakeArchiver struct {
	archived []uuid.UUID
	failFor  uuid.UUID
}

func (a *fakeArchiver) Archive(_ context.Context, job *integration.BatchJob) error {
	if job.ID == a.failFor {
		return errors.New("bucket unavailable")
	}
	a.archived = append(a.archived, job.ID)
	return nil
}

func jobAt(status integration.JobStatus, updated time.Time) *integration.BatchJob {
	return &integration.BatchJob{ID: uuid.New(), Status: status, UpdatedAt: updated}
}

func TestRetentionPurger_RunOnce(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)

	expiredDone := jobAt(integration.JobStatusCompleted, old)
	expiredFailed := jobAt(integration.JobStatusError, old)
	recentDone := jobAt(integration.JobStatusCompleted, now.Add(-time.Hour))
	oldPaused := jobAt(integration.JobStatusPaused, old)

	t.Run("without archiver", func(t *testing.T) {
		jobs := newMemJobs(expiredDone, expiredFailed, recentDone, oldPaused)
		p, err := NewRetentionPurger(RetentionConfig{}, jobs, nil, nil)
		require.NoError(t, err)
		p.now = func() time.Time { return now }

		purged, err := p.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, purged)
		assert.False(t, jobs.has(expiredDone.ID))
		assert.False(t, jobs.has(expiredFailed.ID))
		assert.True(t, jobs.has(recentDone.ID))
		assert.True(t, jobs.has(oldPaused.ID), "non-terminal jobs are never purged")
	})

	t.Run("archive failure keeps the job", func(t *testing.T) {
		jobs := newMemJobs(expiredDone, expiredFailed)
		archiver := &fakeArchiver{failFor: expiredFailed.ID}
		p, err := NewRetentionPurger(RetentionConfig{}, jobs, archiver, nil)
		require.NoError(t, err)
		p.now = func() time.Time { return now }

		purged, err := p.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, purged)
		assert.Equal(t, []uuid.UUID{expiredDone.ID}, archiver.archived)
		assert.False(t, jobs.has(expiredDone.ID))
		assert.True(t, jobs.has(expiredFailed.ID))
	})

	t.Run("batch limit", func(t *testing.T) {
		jobs := newMemJobs(expiredDone, expiredFailed)
		p, err := NewRetentionPurger(RetentionConfig{BatchLimit: 1}, jobs, nil, nil)
		require.NoError(t, err)
		p.now = func() time.Time { return now }

		purged, err := p.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, purged)
	})

	t.Run("list error", func(t *testing.T) {
		jobs := newMemJobs()
		jobs.listErr = errors.New("db down")
		p, err := NewRetentionPurger(RetentionConfig{}, jobs, nil, nil)
		require.NoError(t, err)

		_, err = p.RunOnce(context.Background())
		assert.EqualError(t, err, "db down")
	})
}

func TestNewRetentionPurger_InvalidConfig(t *testing.T) {
	_, err := NewRetentionPurger(RetentionConfig{Window: -time.Hour}, newMemJobs(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.EqualError(t, err, "scheduler: invalid configuration: window must not be negative")

	_, err = NewRetentionPurger(RetentionConfig{BatchLimit: -1}, newMemJobs(), nil, nil)
	assert.ErrorContains(t, err, "batch_limit")
}

var _ integration.JobRepository = (*memJobs)(nil)
