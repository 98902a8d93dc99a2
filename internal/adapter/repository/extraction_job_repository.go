package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/chat2graph/chat2graph/internal/domain/entities"
)

// ExtractionJobRepository handles extraction job data operations
type ExtractionJobRepository struct {
	db *gorm.DB
}

// NewExtractionJobRepository creates a new extraction job repository
func NewExtractionJobRepository(db *gorm.DB) *ExtractionJobRepository {
	return &ExtractionJobRepository{db: db}
}

// CreateJob creates a new extraction job
func (r *ExtractionJobRepository) CreateJob(ctx context.Context, job *entities.ExtractionJob) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// GetJobByID retrieves a job by ID
func (r *ExtractionJobRepository) GetJobByID(ctx context.Context, jobID uuid.UUID) (*entities.ExtractionJob, error) {
	var job entities.ExtractionJob
	if err := r.db.WithContext(ctx).Where("id = ?", jobID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// GetLatestJobByEpisode retrieves the most recent job for an episode name
func (r *ExtractionJobRepository) GetLatestJobByEpisode(ctx context.Context, episodeName string) (*entities.ExtractionJob, error) {
	var job entities.ExtractionJob
	if err := r.db.WithContext(ctx).
		Where("episode_name = ?", episodeName).
		Order("created_at DESC").
		First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// ListJobsByStatus retrieves jobs with a specific status, oldest first
func (r *ExtractionJobRepository) ListJobsByStatus(ctx context.Context, status entities.ExtractionJobStatus, limit int) ([]entities.ExtractionJob, error) {
	var jobs []entities.ExtractionJob
	if limit == 0 {
		limit = 100
	}
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimQueuedJob atomically moves a queued job to extracting so that
// only one worker processes it. Returns nil when another worker won
// the race.
func (r *ExtractionJobRepository) ClaimQueuedJob(ctx context.Context, jobID uuid.UUID) (*entities.ExtractionJob, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&entities.ExtractionJob{}).
		Where("id = ? AND status = ?", jobID, entities.ExtractionJobStatusQueued).
		Updates(map[string]interface{}{
			"status":     entities.ExtractionJobStatusExtracting,
			"started_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetJobByID(ctx, jobID)
}

// UpdateJobStatus updates the status of a job
func (r *ExtractionJobRepository) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status entities.ExtractionJobStatus) error {
	return r.db.WithContext(ctx).
		Model(&entities.ExtractionJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

// MarkJobAsComplete marks a job as finished with its result counts
func (r *ExtractionJobRepository) MarkJobAsComplete(ctx context.Context, jobID uuid.UUID, counts entities.ExtractionJobCounts) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entities.ExtractionJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":       entities.ExtractionJobStatusComplete,
			"counts":       datatypes.NewJSONType(counts),
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

// MarkJobAsError marks a job as failed with error message
func (r *ExtractionJobRepository) MarkJobAsError(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entities.ExtractionJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":       entities.ExtractionJobStatusError,
			"last_error":   errMsg,
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

// RequeueJob increments the retry count and puts the job back in the queue
func (r *ExtractionJobRepository) RequeueJob(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	return r.db.WithContext(ctx).
		Model(&entities.ExtractionJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"status":      entities.ExtractionJobStatusQueued,
			"last_error":  errMsg,
			"updated_at":  time.Now(),
		}).Error
}

// GetStuckJobs retrieves jobs that started processing but have not been
// touched recently, typically after a crashed worker.
func (r *ExtractionJobRepository) GetStuckJobs(ctx context.Context, olderThan time.Duration, limit int) ([]entities.ExtractionJob, error) {
	var jobs []entities.ExtractionJob
	if limit == 0 {
		limit = 10
	}
	cutoff := time.Now().Add(-olderThan)
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []entities.ExtractionJobStatus{
			entities.ExtractionJobStatusExtracting,
			entities.ExtractionJobStatusStoring,
			entities.ExtractionJobStatusAnalyzing,
		}, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// CountJobsByStatus returns job counts keyed by status
func (r *ExtractionJobRepository) CountJobsByStatus(ctx context.Context) (map[entities.ExtractionJobStatus]int64, error) {
	type row struct {
		Status entities.ExtractionJobStatus
		Count  int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&entities.ExtractionJob{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[entities.ExtractionJobStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
