package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormJobRepository implements JobRepository using GORM
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GormJobRepository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// Create inserts a new job
func (r *GormJobRepository) Create(ctx context.Context, job *integration.BatchJob) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}
	model, err := models.BatchJobModelFromDomain(job)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByID finds a job by its ID
func (r *GormJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.BatchJob, error) {
	var model models.BatchJobModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByStatus lists jobs in the given status, oldest first
func (r *GormJobRepository) FindByStatus(ctx context.Context, status integration.JobStatus) ([]integration.BatchJob, error) {
	var jobModels []models.BatchJobModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&jobModels).Error; err != nil {
		return nil, err
	}
	return toDomainJobs(jobModels)
}

// SaveProgress writes the slice results in one conditional UPDATE. The row is
// only touched while the stored fencing token is not newer than the job's.
// Status, reason and completion time are only replaced while the stored
// status is still processing; otherwise the stored values are copied back.
func (r *GormJobRepository) SaveProgress(ctx context.Context, job *integration.BatchJob) error {
	recentErrors, err := models.MarshalRecentErrors(job.RecentErrors)
	if err != nil {
		return err
	}

	now := time.Now()
	processing := integration.JobStatusProcessing
	result := r.db.WithContext(ctx).
		Model(&models.BatchJobModel{}).
		Where("id = ? AND fencing_token <= ?", job.ID, job.FencingToken).
		Updates(map[string]any{
			"cursor_pos":    job.Cursor,
			"processed":     job.Counters.Processed,
			"succeeded":     job.Counters.Succeeded,
			"failed":        job.Counters.Failed,
			"recent_errors": recentErrors,
			"fencing_token": job.FencingToken,
			"attempts":      job.Attempts,
			"status":        gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", processing, job.Status),
			"status_reason": gorm.Expr("CASE WHEN status = ? THEN ? ELSE status_reason END", processing, job.StatusReason),
			"completed_at":  gorm.Expr("CASE WHEN status = ? THEN ? ELSE completed_at END", processing, job.CompletedAt),
			"updated_at":    now,
		})
	if result.Error != nil {
		return result.Error
	}

	var stored models.BatchJobModel
	if err := r.db.WithContext(ctx).
		Select("status", "status_reason", "completed_at", "fencing_token").
		First(&stored, "id = ?", job.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return integration.ErrJobNotFound
		}
		return err
	}
	if result.RowsAffected == 0 {
		if stored.FencingToken > job.FencingToken {
			return integration.ErrStaleFencingToken
		}
		return integration.ErrJobNotFound
	}

	job.Status = stored.Status
	job.StatusReason = stored.StatusReason
	job.CompletedAt = stored.CompletedAt
	job.UpdatedAt = now
	return nil
}

// CompareAndSetStatus moves the job from one status to another atomically.
// A terminal target stamps the completion time if it is not set yet.
func (r *GormJobRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to integration.JobStatus, reason string) error {
	now := time.Now()
	updates := map[string]any{
		"status":        to,
		"status_reason": reason,
		"updated_at":    now,
	}
	if to.IsTerminal() {
		updates["completed_at"] = gorm.Expr("COALESCE(completed_at, ?)", now)
	}

	result := r.db.WithContext(ctx).
		Model(&models.BatchJobModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.BatchJobModel{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return integration.ErrJobNotFound
	}
	return integration.ErrInvalidTransition
}

// FindTerminalBefore lists completed and failed jobs last updated before
// cutoff, oldest first
func (r *GormJobRepository) FindTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]integration.BatchJob, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]integration.JobStatus{integration.JobStatusCompleted, integration.JobStatusError}, cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobModels []models.BatchJobModel
	if err := query.Find(&jobModels).Error; err != nil {
		return nil, err
	}
	return toDomainJobs(jobModels)
}

// CountByStatus returns the number of jobs per status. Statuses without jobs
// are absent from the map.
func (r *GormJobRepository) CountByStatus(ctx context.Context) (map[integration.JobStatus]int64, error) {
	var rows []struct {
		Status integration.JobStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.BatchJobModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[integration.JobStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// Delete removes a job; deleting a missing job is not an error
func (r *GormJobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.BatchJobModel{}, "id = ?", id).Error
}

func toDomainJobs(jobModels []models.BatchJobModel) ([]integration.BatchJob, error) {
	jobs := make([]integration.BatchJob, 0, len(jobModels))
	for i := range jobModels {
		job, err := jobModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

var _ integration.JobRepository = (*GormJobRepository)(nil)
