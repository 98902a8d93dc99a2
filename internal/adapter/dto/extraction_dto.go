package dto

import (
	"time"

	"github.com/chat2graph/chat2graph/internal/domain/entities"
)

// UploadTranscriptRequest is the JSON body for the async upload
// endpoint. Multipart uploads carry the same fields as form values
// plus a "file" part with the transcript text.
type UploadTranscriptRequest struct {
	EpisodeName   string `json:"episode_name" form:"episode_name" validate:"required"`
	Disorder      string `json:"disorder" form:"disorder"`
	MeetsCriteria bool   `json:"meets_criteria" form:"meets_criteria"`
	Transcript    string `json:"transcript" form:"transcript"`
}

// UploadAcceptedResponse acknowledges a queued extraction job
type UploadAcceptedResponse struct {
	JobID string `json:"job_id"`
}

// JobStatusResponse reports extraction job progress to the dashboard poller
type JobStatusResponse struct {
	JobID       string                        `json:"job_id"`
	EpisodeName string                        `json:"episode_name"`
	Disorder    string                        `json:"disorder"`
	Status      string                        `json:"status"`
	Step        string                        `json:"step"`
	RetryCount  int                           `json:"retry_count"`
	Error       string                        `json:"error,omitempty"`
	Counts      *entities.ExtractionJobCounts `json:"counts,omitempty"`
	CreatedAt   time.Time                     `json:"created_at"`
	CompletedAt *time.Time                    `json:"completed_at,omitempty"`
}

// NewJobStatusResponse maps a job entity to its API shape
func NewJobStatusResponse(job *entities.ExtractionJob) *JobStatusResponse {
	resp := &JobStatusResponse{
		JobID:       job.ID.String(),
		EpisodeName: job.EpisodeName,
		Disorder:    job.Disorder,
		Status:      string(job.Status),
		Step:        job.Step(),
		RetryCount:  job.RetryCount,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.LastError != nil {
		resp.Error = *job.LastError
	}
	if job.Status == entities.ExtractionJobStatusComplete {
		counts := job.Counts.Data()
		resp.Counts = &counts
	}
	return resp
}

// AddConversationRequest is the body for synchronous conversation ingestion
type AddConversationRequest struct {
	EpisodeName   string `json:"episode_name" validate:"required"`
	Disorder      string `json:"disorder"`
	MeetsCriteria bool   `json:"meets_criteria"`
	Transcript    string `json:"transcript" validate:"required"`
}

// ReclassifyRequest bounds one reclassification pass
type ReclassifyRequest struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=1000"`
}
