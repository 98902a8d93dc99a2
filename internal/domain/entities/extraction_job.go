package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ExtractionJobStatus represents the status of a transcript extraction job
type ExtractionJobStatus string

const (
	ExtractionJobStatusQueued     ExtractionJobStatus = "queued"     // Waiting for a worker
	ExtractionJobStatusExtracting ExtractionJobStatus = "extracting" // LLM entity extraction running
	ExtractionJobStatusStoring    ExtractionJobStatus = "storing"    // Writing graph to Neo4j
	ExtractionJobStatusAnalyzing  ExtractionJobStatus = "analyzing"  // Recomputing analytics artifact
	ExtractionJobStatusComplete   ExtractionJobStatus = "complete"   // All processing done
	ExtractionJobStatusError      ExtractionJobStatus = "error"      // Processing failed
)

// statusSteps maps statuses to the human-readable progress line shown
// by the dashboard poller.
var statusSteps = map[ExtractionJobStatus]string{
	ExtractionJobStatusQueued:     "Waiting in queue",
	ExtractionJobStatusExtracting: "Extracting entities from transcript",
	ExtractionJobStatusStoring:    "Storing entities in graph database",
	ExtractionJobStatusAnalyzing:  "Analyzing episode metrics",
	ExtractionJobStatusComplete:   "Analysis complete",
	ExtractionJobStatusError:      "Processing failed",
}

// ExtractionJobCounts summarizes what a completed job produced
type ExtractionJobCounts struct {
	ClinicalEntities int `json:"clinical_entities,omitempty"`
	SemanticEntities int `json:"semantic_entities,omitempty"`
	Relationships    int `json:"relationships,omitempty"`
	FuzzyMerges      int `json:"fuzzy_merges,omitempty"`
	DroppedEdges     int `json:"dropped_edges,omitempty"`
}

// ExtractionJob represents an async transcript processing job
type ExtractionJob struct {
	ID            uuid.UUID           `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EpisodeName   string              `json:"episode_name" gorm:"type:varchar(255);not null;index"`
	Disorder      string              `json:"disorder" gorm:"type:varchar(100);not null;index"`
	MeetsCriteria bool                `json:"meets_criteria" gorm:"not null;default:false"`
	Status        ExtractionJobStatus `json:"status" gorm:"type:varchar(50);not null;index;default:'queued'"`
	TranscriptURL string              `json:"transcript_url" gorm:"type:text;not null"` // object storage location of the raw transcript

	// Processing details
	StartedAt   *time.Time `json:"started_at,omitempty" gorm:"type:timestamp"`
	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"type:timestamp"`
	RetryCount  int        `json:"retry_count" gorm:"type:integer;default:0"`
	MaxRetries  int        `json:"max_retries" gorm:"type:integer;default:3"`
	LastError   *string    `json:"last_error,omitempty" gorm:"type:text"`

	Counts datatypes.JSONType[ExtractionJobCounts] `json:"counts,omitempty" gorm:"type:jsonb;serializer:json"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// NewExtractionJob creates a queued job for a stored transcript
func NewExtractionJob(episodeName, disorder string, meetsCriteria bool, transcriptURL string, maxRetries int) *ExtractionJob {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ExtractionJob{
		ID:            uuid.New(),
		EpisodeName:   episodeName,
		Disorder:      NormalizeDisorder(disorder),
		MeetsCriteria: meetsCriteria,
		Status:        ExtractionJobStatusQueued,
		TranscriptURL: transcriptURL,
		RetryCount:    0,
		MaxRetries:    maxRetries,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

// Step returns the human-readable progress line for the current status
func (j *ExtractionJob) Step() string {
	if s, ok := statusSteps[j.Status]; ok {
		return s
	}
	return string(j.Status)
}

// IsTerminal reports whether the job will make no further progress
func (j *ExtractionJob) IsTerminal() bool {
	return j.Status == ExtractionJobStatusComplete || j.Status == ExtractionJobStatusError
}

// IsRetryable checks if job can be retried
func (j *ExtractionJob) IsRetryable() bool {
	return j.RetryCount < j.MaxRetries
}

// MarkAsExtracting marks the job as picked up by a worker
func (j *ExtractionJob) MarkAsExtracting() {
	j.Status = ExtractionJobStatusExtracting
	now := time.Now()
	j.StartedAt = &now
	j.UpdatedAt = now
}

// MarkAsStoring marks the job as writing to the graph
func (j *ExtractionJob) MarkAsStoring() {
	j.Status = ExtractionJobStatusStoring
	j.UpdatedAt = time.Now()
}

// MarkAsAnalyzing marks the job as recomputing analytics
func (j *ExtractionJob) MarkAsAnalyzing() {
	j.Status = ExtractionJobStatusAnalyzing
	j.UpdatedAt = time.Now()
}

// MarkAsComplete marks the job as finished with its result counts
func (j *ExtractionJob) MarkAsComplete(counts ExtractionJobCounts) {
	j.Status = ExtractionJobStatusComplete
	j.Counts = datatypes.NewJSONType(counts)
	now := time.Now()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkAsError marks the job as failed with error message
func (j *ExtractionJob) MarkAsError(errMsg string) {
	j.Status = ExtractionJobStatusError
	j.LastError = &errMsg
	now := time.Now()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// IncrementRetry re-queues the job after a transient failure
func (j *ExtractionJob) IncrementRetry(errMsg string) {
	j.RetryCount++
	j.Status = ExtractionJobStatusQueued
	j.LastError = &errMsg
	j.UpdatedAt = time.Now()
}

// TableName specifies the table name for GORM
func (ExtractionJob) TableName() string {
	return "extraction_jobs"
}
