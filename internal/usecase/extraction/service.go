package extraction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chat2graph/chat2graph/errors"
	"github.com/chat2graph/chat2graph/internal/domain/entities"
	"github.com/chat2graph/chat2graph/internal/infrastructure/graph"
	"github.com/chat2graph/chat2graph/internal/usecase/analytics"
	"github.com/chat2graph/chat2graph/pkg/config"
	"github.com/chat2graph/chat2graph/pkg/jobcontext"
	"github.com/chat2graph/chat2graph/pkg/llm"
)

// JobRepository persists extraction job state
type JobRepository interface {
	CreateJob(ctx context.Context, job *entities.ExtractionJob) error
	GetJobByID(ctx context.Context, jobID uuid.UUID) (*entities.ExtractionJob, error)
	ListJobsByStatus(ctx context.Context, status entities.ExtractionJobStatus, limit int) ([]entities.ExtractionJob, error)
	ClaimQueuedJob(ctx context.Context, jobID uuid.UUID) (*entities.ExtractionJob, error)
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status entities.ExtractionJobStatus) error
	MarkJobAsComplete(ctx context.Context, jobID uuid.UUID, counts entities.ExtractionJobCounts) error
	MarkJobAsError(ctx context.Context, jobID uuid.UUID, errMsg string) error
	RequeueJob(ctx context.Context, jobID uuid.UUID, errMsg string) error
	GetLatestJobByEpisode(ctx context.Context, episodeName string) (*entities.ExtractionJob, error)
	GetStuckJobs(ctx context.Context, olderThan time.Duration, limit int) ([]entities.ExtractionJob, error)
	CountJobsByStatus(ctx context.Context) (map[entities.ExtractionJobStatus]int64, error)
}

// GraphStore writes episode graphs
type GraphStore interface {
	StoreEpisode(ctx context.Context, ep *entities.Episode) error
	ListGenericRelationships(ctx context.Context, limit int) ([]graph.GenericRelationship, error)
	RetypeRelationship(ctx context.Context, rel graph.GenericRelationship, newType string) error
	Ping(ctx context.Context) error
}

// TranscriptStorage holds raw transcript text
type TranscriptStorage interface {
	UploadTranscript(ctx context.Context, episodeName, content string) (string, error)
	DownloadTranscript(ctx context.Context, objectName string) (string, error)
}

// Extractor is the LLM backend
type Extractor interface {
	ExtractEntities(ctx context.Context, transcript string) (*llm.ExtractionPayload, error)
	ClassifyRelationship(ctx context.Context, from, to, description string) (string, error)
	Health(ctx context.Context) error
}

// AnalyticsRefresher rebuilds the analysis artifact after graph writes
type AnalyticsRefresher interface {
	Recompute(ctx context.Context) (*analytics.Report, error)
}

// Service owns transcript submission and the background extraction
// worker pool.
type Service struct {
	jobRepo   JobRepository
	store     GraphStore
	storage   TranscriptStorage
	extractor Extractor
	analytics AnalyticsRefresher
	resolver  *Resolver
	cfg       config.ExtractionConfig
	logger    *zap.Logger

	workerMutex      sync.Mutex
	workerStopChan   chan struct{}
	workerWg         sync.WaitGroup
	isWorkerPoolLive bool
}

// NewService creates the extraction service
func NewService(
	jobRepo JobRepository,
	store GraphStore,
	storage TranscriptStorage,
	extractor Extractor,
	analyticsSvc AnalyticsRefresher,
	cfg config.ExtractionConfig,
	logger *zap.Logger,
) *Service {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Service{
		jobRepo:   jobRepo,
		store:     store,
		storage:   storage,
		extractor: extractor,
		analytics: analyticsSvc,
		resolver:  NewResolver(cfg.SimilarityThreshold),
		cfg:       cfg,
		logger:    logger,
	}
}

// SubmitTranscript stores the transcript and queues an extraction job.
// Both backends are checked up front so the client learns immediately
// when processing cannot happen.
func (s *Service) SubmitTranscript(ctx context.Context, episodeName, disorder string, meetsCriteria bool, transcript string) (*entities.ExtractionJob, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, errors.ErrMissingTranscript()
	}
	if strings.TrimSpace(episodeName) == "" {
		return nil, errors.ErrInvalidArgument("episode name is required")
	}

	if existing, err := s.jobRepo.GetLatestJobByEpisode(ctx, episodeName); err != nil {
		return nil, errors.ErrDBQueryFailed(err)
	} else if existing != nil && !existing.IsTerminal() {
		return nil, errors.ErrInvalidArgument(
			fmt.Sprintf("episode %q already has an extraction job in progress", episodeName))
	}

	if err := s.extractor.Health(ctx); err != nil {
		s.logger.Warn("rejecting upload, LLM backend unreachable", zap.Error(err))
		return nil, errors.ErrLLMUnavailable()
	}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("rejecting upload, graph database unreachable", zap.Error(err))
		return nil, errors.ErrGraphUnavailable()
	}

	objectName, err := s.storage.UploadTranscript(ctx, episodeName, transcript)
	if err != nil {
		return nil, errors.ErrStorageFailed("upload transcript", err)
	}

	job := entities.NewExtractionJob(episodeName, disorder, meetsCriteria, objectName, s.cfg.MaxRetries)
	if err := s.jobRepo.CreateJob(ctx, job); err != nil {
		return nil, errors.ErrDBQueryFailed(err)
	}

	s.logger.Info("extraction job queued",
		zap.String("job_id", job.ID.String()),
		zap.String("episode", episodeName),
		zap.String("disorder", job.Disorder))
	return job, nil
}

// ProcessTranscriptInline runs the whole pipeline synchronously and
// returns the resolved episode. Used by the conversation endpoint,
// where callers wait for the result instead of polling a job.
func (s *Service) ProcessTranscriptInline(ctx context.Context, episodeName, disorder string, meetsCriteria bool, transcript string) (*entities.ExtractionResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, errors.ErrMissingTranscript()
	}
	if strings.TrimSpace(episodeName) == "" {
		return nil, errors.ErrInvalidArgument("episode name is required")
	}
	if err := s.extractor.Health(ctx); err != nil {
		return nil, errors.ErrLLMUnavailable()
	}
	if err := s.store.Ping(ctx); err != nil {
		return nil, errors.ErrGraphUnavailable()
	}

	payload, err := s.extractor.ExtractEntities(ctx, transcript)
	if err != nil {
		return nil, errors.ErrExtractionFailed(err)
	}

	clinical, semantic, rels, stats := s.resolver.Resolve(payload)
	episode := entities.Episode{
		Name:             episodeName,
		Disorder:         entities.NormalizeDisorder(disorder),
		MeetsCriteria:    meetsCriteria,
		ClinicalEntities: clinical,
		SemanticEntities: semantic,
		Relationships:    rels,
	}
	if err := s.store.StoreEpisode(ctx, &episode); err != nil {
		return nil, errors.ErrGraphQueryFailed(err)
	}
	if _, err := s.analytics.Recompute(ctx); err != nil {
		return nil, errors.ErrInternal(err)
	}

	return &entities.ExtractionResult{Episode: episode, Resolution: stats}, nil
}

// GetJobStatus returns the current state of a job
func (s *Service) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*entities.ExtractionJob, error) {
	job, err := s.jobRepo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, errors.ErrDBQueryFailed(err)
	}
	if job == nil {
		return nil, errors.ErrJobNotFound(jobID.String())
	}
	return job, nil
}

// JobCounts returns queue depth per status
func (s *Service) JobCounts(ctx context.Context) (map[entities.ExtractionJobStatus]int64, error) {
	counts, err := s.jobRepo.CountJobsByStatus(ctx)
	if err != nil {
		return nil, errors.ErrDBQueryFailed(err)
	}
	return counts, nil
}

// StartWorkerPool starts background workers that drain the job queue
func (s *Service) StartWorkerPool(ctx context.Context) error {
	s.workerMutex.Lock()
	defer s.workerMutex.Unlock()

	if s.isWorkerPoolLive {
		return fmt.Errorf("worker pool already running")
	}
	s.isWorkerPoolLive = true
	s.workerStopChan = make(chan struct{})

	s.logger.Info("starting extraction worker pool",
		zap.Int("worker_count", s.cfg.WorkerCount),
		zap.Duration("poll_interval", s.cfg.PollInterval))

	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.workerWg.Add(1)
		go s.extractionWorker(ctx, i)
	}

	s.workerWg.Add(1)
	go s.stuckJobJanitor(ctx)
	return nil
}

// StopWorkerPool gracefully stops all worker goroutines
func (s *Service) StopWorkerPool() error {
	s.workerMutex.Lock()
	defer s.workerMutex.Unlock()

	if !s.isWorkerPoolLive {
		return fmt.Errorf("worker pool not running")
	}

	s.logger.Info("stopping extraction worker pool")
	close(s.workerStopChan)
	s.workerWg.Wait()
	s.isWorkerPoolLive = false
	return nil
}

// extractionWorker polls for queued jobs and runs the pipeline
func (s *Service) extractionWorker(parentCtx context.Context, workerID int) {
	defer s.workerWg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.logger.Info("extraction worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-s.workerStopChan:
			s.logger.Info("extraction worker stopping", zap.Int("worker_id", workerID))
			return
		case <-parentCtx.Done():
			return
		case <-ticker.C:
			s.pollOnce(parentCtx, workerID)
		}
	}
}

// pollOnce claims and processes at most one queued job
func (s *Service) pollOnce(parentCtx context.Context, workerID int) {
	jobs, err := s.jobRepo.ListJobsByStatus(parentCtx, entities.ExtractionJobStatusQueued, 1)
	if err != nil {
		s.logger.Error("failed to poll jobs",
			zap.Int("worker_id", workerID),
			zap.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	// Atomic claim: only one worker wins when several see the same job
	job, err := s.jobRepo.ClaimQueuedJob(parentCtx, jobs[0].ID)
	if err != nil {
		s.logger.Error("failed to claim job",
			zap.String("job_id", jobs[0].ID.String()),
			zap.Error(err))
		return
	}
	if job == nil {
		return
	}

	s.logger.Info("worker claimed job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("episode", job.EpisodeName))

	jobCtx, cancel := jobcontext.JobBegin(parentCtx, job.ID, "extraction", workerID)
	// One attempt per claim. Transient failures go back through the
	// queue with retry_count + 1, so the retry budget survives worker
	// restarts.
	jobCtx = jobcontext.SetMaxRetries(jobCtx, 1)

	err = jobcontext.JobEnd(jobCtx, func(ctx context.Context) error {
		return s.processJob(ctx, job)
	})
	cancel()

	if err != nil {
		s.failOrRequeue(parentCtx, job, err)
		return
	}

	s.logger.Info("job completed",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()))
}

// failOrRequeue routes a failed job: transient errors with retry
// budget left go back to the queue, everything else is terminal.
func (s *Service) failOrRequeue(ctx context.Context, job *entities.ExtractionJob, jobErr error) {
	if job.IsRetryable() && jobcontext.IsRetryableError(jobErr) {
		s.logger.Warn("requeueing job after transient failure",
			zap.String("job_id", job.ID.String()),
			zap.Int("retry_count", job.RetryCount+1),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(jobErr))
		if err := s.jobRepo.RequeueJob(ctx, job.ID, jobErr.Error()); err != nil {
			s.logger.Error("failed to requeue job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err))
		}
		return
	}

	s.logger.Error("job failed",
		zap.String("job_id", job.ID.String()),
		zap.Error(jobErr))
	if err := s.jobRepo.MarkJobAsError(ctx, job.ID, jobErr.Error()); err != nil {
		s.logger.Error("failed to mark job as error",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}
}

// Stuck jobs are in-flight rows untouched for longer than the per-job
// ceiling, which happens when the owning worker died mid-pipeline.
const (
	stuckJobTimeout   = 15 * time.Minute
	stuckScanInterval = time.Minute
	stuckScanBatch    = 10
)

// stuckJobJanitor periodically rescues jobs abandoned by dead workers
func (s *Service) stuckJobJanitor(parentCtx context.Context) {
	defer s.workerWg.Done()

	ticker := time.NewTicker(stuckScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.workerStopChan:
			return
		case <-parentCtx.Done():
			return
		case <-ticker.C:
			s.recoverStuckJobs(parentCtx)
		}
	}
}

// recoverStuckJobs requeues abandoned jobs that still have retry
// budget and fails the rest.
func (s *Service) recoverStuckJobs(ctx context.Context) {
	jobs, err := s.jobRepo.GetStuckJobs(ctx, stuckJobTimeout, stuckScanBatch)
	if err != nil {
		s.logger.Error("failed to scan for stuck jobs", zap.Error(err))
		return
	}

	for i := range jobs {
		job := &jobs[i]
		if job.IsRetryable() {
			s.logger.Warn("requeueing stuck job",
				zap.String("job_id", job.ID.String()),
				zap.String("status", string(job.Status)))
			if err := s.jobRepo.RequeueJob(ctx, job.ID, "worker abandoned the job"); err != nil {
				s.logger.Error("failed to requeue stuck job",
					zap.String("job_id", job.ID.String()),
					zap.Error(err))
			}
			continue
		}
		if err := s.jobRepo.MarkJobAsError(ctx, job.ID, "abandoned with no retries left"); err != nil {
			s.logger.Error("failed to fail stuck job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err))
		}
	}
}

// processJob runs the full pipeline for one claimed job: download the
// transcript, extract and resolve entities, store the episode graph,
// and refresh the analytics artifact.
func (s *Service) processJob(ctx context.Context, job *entities.ExtractionJob) error {
	transcript, err := s.storage.DownloadTranscript(ctx, job.TranscriptURL)
	if err != nil {
		return fmt.Errorf("download transcript: %w", err)
	}

	payload, err := s.extractor.ExtractEntities(ctx, transcript)
	if err != nil {
		return fmt.Errorf("extract entities: %w", err)
	}

	clinical, semantic, rels, stats := s.resolver.Resolve(payload)

	if err := s.jobRepo.UpdateJobStatus(ctx, job.ID, entities.ExtractionJobStatusStoring); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	episode := &entities.Episode{
		Name:             job.EpisodeName,
		Disorder:         job.Disorder,
		MeetsCriteria:    job.MeetsCriteria,
		ClinicalEntities: clinical,
		SemanticEntities: semantic,
		Relationships:    rels,
	}
	if err := s.store.StoreEpisode(ctx, episode); err != nil {
		return fmt.Errorf("store episode: %w", err)
	}

	if err := s.jobRepo.UpdateJobStatus(ctx, job.ID, entities.ExtractionJobStatusAnalyzing); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	if _, err := s.analytics.Recompute(ctx); err != nil {
		return fmt.Errorf("recompute analytics: %w", err)
	}

	counts := entities.ExtractionJobCounts{
		ClinicalEntities: len(clinical),
		SemanticEntities: len(semantic),
		Relationships:    len(rels),
		FuzzyMerges:      stats.FuzzyMerges,
		DroppedEdges:     stats.DroppedEdges,
	}
	if err := s.jobRepo.MarkJobAsComplete(ctx, job.ID, counts); err != nil {
		return fmt.Errorf("mark job complete: %w", err)
	}
	return nil
}
