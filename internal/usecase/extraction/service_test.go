package extraction

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chat2graph/chat2graph/errors"
	"github.com/chat2graph/chat2graph/internal/domain/entities"
	"github.com/chat2graph/chat2graph/internal/infrastructure/graph"
	"github.com/chat2graph/chat2graph/internal/usecase/analytics"
	"github.com/chat2graph/chat2graph/pkg/config"
	"github.com/chat2graph/chat2graph/pkg/llm"
)

type stubJobRepo struct {
	jobs     map[uuid.UUID]*entities.ExtractionJob
	statuses []entities.ExtractionJobStatus
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{jobs: make(map[uuid.UUID]*entities.ExtractionJob)}
}

func (r *stubJobRepo) CreateJob(_ context.Context, job *entities.ExtractionJob) error {
	r.jobs[job.ID] = job
	return nil
}

func (r *stubJobRepo) GetJobByID(_ context.Context, jobID uuid.UUID) (*entities.ExtractionJob, error) {
	return r.jobs[jobID], nil
}

func (r *stubJobRepo) ListJobsByStatus(_ context.Context, status entities.ExtractionJobStatus, _ int) ([]entities.ExtractionJob, error) {
	var out []entities.ExtractionJob
	for _, j := range r.jobs {
		if j.Status == status {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *stubJobRepo) ClaimQueuedJob(_ context.Context, jobID uuid.UUID) (*entities.ExtractionJob, error) {
	job, ok := r.jobs[jobID]
	if !ok || job.Status != entities.ExtractionJobStatusQueued {
		return nil, nil
	}
	job.MarkAsExtracting()
	return job, nil
}

func (r *stubJobRepo) UpdateJobStatus(_ context.Context, jobID uuid.UUID, status entities.ExtractionJobStatus) error {
	r.jobs[jobID].Status = status
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *stubJobRepo) MarkJobAsComplete(_ context.Context, jobID uuid.UUID, counts entities.ExtractionJobCounts) error {
	r.jobs[jobID].MarkAsComplete(counts)
	return nil
}

func (r *stubJobRepo) MarkJobAsError(_ context.Context, jobID uuid.UUID, errMsg string) error {
	r.jobs[jobID].MarkAsError(errMsg)
	return nil
}

func (r *stubJobRepo) RequeueJob(_ context.Context, jobID uuid.UUID, errMsg string) error {
	r.jobs[jobID].IncrementRetry(errMsg)
	return nil
}

func (r *stubJobRepo) GetLatestJobByEpisode(_ context.Context, episodeName string) (*entities.ExtractionJob, error) {
	var latest *entities.ExtractionJob
	for _, j := range r.jobs {
		if j.EpisodeName != episodeName {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	return latest, nil
}

func (r *stubJobRepo) GetStuckJobs(context.Context, time.Duration, int) ([]entities.ExtractionJob, error) {
	var out []entities.ExtractionJob
	for _, j := range r.jobs {
		switch j.Status {
		case entities.ExtractionJobStatusExtracting,
			entities.ExtractionJobStatusStoring,
			entities.ExtractionJobStatusAnalyzing:
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *stubJobRepo) CountJobsByStatus(context.Context) (map[entities.ExtractionJobStatus]int64, error) {
	counts := make(map[entities.ExtractionJobStatus]int64)
	for _, j := range r.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

type stubGraphStore struct {
	pingErr  error
	stored   []*entities.Episode
	generics []graph.GenericRelationship
	retyped  map[string]string
}

func (s *stubGraphStore) StoreEpisode(_ context.Context, ep *entities.Episode) error {
	s.stored = append(s.stored, ep)
	return nil
}

func (s *stubGraphStore) ListGenericRelationships(context.Context, int) ([]graph.GenericRelationship, error) {
	return s.generics, nil
}

func (s *stubGraphStore) RetypeRelationship(_ context.Context, rel graph.GenericRelationship, newType string) error {
	if s.retyped == nil {
		s.retyped = make(map[string]string)
	}
	s.retyped[rel.From+"->"+rel.To] = newType
	return nil
}

func (s *stubGraphStore) Ping(context.Context) error { return s.pingErr }

type stubStorage struct {
	objects map[string]string
}

func (s *stubStorage) UploadTranscript(_ context.Context, episodeName, content string) (string, error) {
	if s.objects == nil {
		s.objects = make(map[string]string)
	}
	key := "transcripts/" + episodeName + ".txt"
	s.objects[key] = content
	return key, nil
}

func (s *stubStorage) DownloadTranscript(_ context.Context, objectName string) (string, error) {
	content, ok := s.objects[objectName]
	if !ok {
		return "", fmt.Errorf("object %s not found", objectName)
	}
	return content, nil
}

type stubExtractor struct {
	healthErr  error
	payload    *llm.ExtractionPayload
	extractErr error
	classify   map[string]string
}

func (e *stubExtractor) ExtractEntities(context.Context, string) (*llm.ExtractionPayload, error) {
	return e.payload, e.extractErr
}

func (e *stubExtractor) ClassifyRelationship(_ context.Context, from, to, _ string) (string, error) {
	if t, ok := e.classify[from+"->"+to]; ok {
		return t, nil
	}
	return llm.RelationUncertain, nil
}

func (e *stubExtractor) Health(context.Context) error { return e.healthErr }

type stubAnalytics struct {
	recomputes int
}

func (a *stubAnalytics) Recompute(context.Context) (*analytics.Report, error) {
	a.recomputes++
	return &analytics.Report{}, nil
}

func newTestService(repo *stubJobRepo, store *stubGraphStore, stor *stubStorage, ext *stubExtractor, an *stubAnalytics) *Service {
	return NewService(repo, store, stor, ext, an, config.ExtractionConfig{SimilarityThreshold: 0.92}, zap.NewNop())
}

func TestSubmitTranscript(t *testing.T) {
	repo := newStubJobRepo()
	svc := newTestService(repo, &stubGraphStore{}, &stubStorage{}, &stubExtractor{}, &stubAnalytics{})

	job, err := svc.SubmitTranscript(context.Background(), "ep1", "GAD", true, "patient describes worry")
	require.NoError(t, err)
	assert.Equal(t, entities.ExtractionJobStatusQueued, job.Status)
	assert.Equal(t, "GAD", job.Disorder)
	assert.Equal(t, "Waiting in queue", job.Step())
	assert.Contains(t, repo.jobs, job.ID)
}

func TestSubmitTranscript_NormalizesDisorder(t *testing.T) {
	svc := newTestService(newStubJobRepo(), &stubGraphStore{}, &stubStorage{}, &stubExtractor{}, &stubAnalytics{})

	job, err := svc.SubmitTranscript(context.Background(), "ep1", "mystery illness", false, "text")
	require.NoError(t, err)
	assert.Equal(t, "Other", job.Disorder)
}

func TestSubmitTranscript_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		episode    string
		ext        *stubExtractor
		store      *stubGraphStore
		wantCode   errors.ErrorCode
		wantHTTP   int
	}{
		{
			name: "empty transcript", transcript: "  ", episode: "ep",
			ext: &stubExtractor{}, store: &stubGraphStore{},
			wantCode: errors.ErrorCode_MISSING_TRANSCRIPT, wantHTTP: 400,
		},
		{
			name: "empty episode name", transcript: "text", episode: "",
			ext: &stubExtractor{}, store: &stubGraphStore{},
			wantCode: errors.ErrorCode_INVALID_ARGUMENT, wantHTTP: 400,
		},
		{
			name: "llm down", transcript: "text", episode: "ep",
			ext: &stubExtractor{healthErr: fmt.Errorf("connection refused")}, store: &stubGraphStore{},
			wantCode: errors.ErrorCode_LLM_UNAVAILABLE, wantHTTP: 503,
		},
		{
			name: "graph down", transcript: "text", episode: "ep",
			ext: &stubExtractor{}, store: &stubGraphStore{pingErr: fmt.Errorf("no route")},
			wantCode: errors.ErrorCode_GRAPH_UNAVAILABLE, wantHTTP: 503,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newStubJobRepo(), tt.store, &stubStorage{}, tt.ext, &stubAnalytics{})

			_, err := svc.SubmitTranscript(context.Background(), tt.episode, "GAD", false, tt.transcript)
			require.Error(t, err)
			appErr, ok := err.(errors.AppError)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.wantHTTP, appErr.HTTPCode)
		})
	}
}

func TestSubmitTranscript_RejectsActiveEpisodeJob(t *testing.T) {
	repo := newStubJobRepo()
	svc := newTestService(repo, &stubGraphStore{}, &stubStorage{}, &stubExtractor{}, &stubAnalytics{})

	job, err := svc.SubmitTranscript(context.Background(), "ep1", "GAD", false, "first upload")
	require.NoError(t, err)

	_, err = svc.SubmitTranscript(context.Background(), "ep1", "GAD", false, "second upload")
	require.Error(t, err)
	appErr, ok := err.(errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode_INVALID_ARGUMENT, appErr.Code)

	// once the first job is terminal, the episode can be submitted again
	repo.jobs[job.ID].MarkAsComplete(entities.ExtractionJobCounts{})
	_, err = svc.SubmitTranscript(context.Background(), "ep1", "GAD", false, "third upload")
	require.NoError(t, err)
}

func TestFailOrRequeue(t *testing.T) {
	repo := newStubJobRepo()
	svc := newTestService(repo, &stubGraphStore{}, &stubStorage{}, &stubExtractor{}, &stubAnalytics{})

	t.Run("transient failure goes back to the queue", func(t *testing.T) {
		job := entities.NewExtractionJob("ep1", "GAD", false, "obj", 3)
		repo.jobs[job.ID] = job
		job.MarkAsExtracting()

		svc.failOrRequeue(context.Background(), job, fmt.Errorf("dial tcp: connection refused"))

		assert.Equal(t, entities.ExtractionJobStatusQueued, job.Status)
		assert.Equal(t, 1, job.RetryCount)
		require.NotNil(t, job.LastError)
	})

	t.Run("non-retryable failure is terminal", func(t *testing.T) {
		job := entities.NewExtractionJob("ep2", "GAD", false, "obj", 3)
		repo.jobs[job.ID] = job
		job.MarkAsExtracting()

		svc.failOrRequeue(context.Background(), job, fmt.Errorf("malformed extraction payload"))

		assert.Equal(t, entities.ExtractionJobStatusError, job.Status)
		assert.Zero(t, job.RetryCount)
	})

	t.Run("exhausted retry budget is terminal", func(t *testing.T) {
		job := entities.NewExtractionJob("ep3", "GAD", false, "obj", 2)
		job.RetryCount = 2
		repo.jobs[job.ID] = job
		job.MarkAsExtracting()

		svc.failOrRequeue(context.Background(), job, fmt.Errorf("dial tcp: connection refused"))

		assert.Equal(t, entities.ExtractionJobStatusError, job.Status)
	})
}

func TestRecoverStuckJobs(t *testing.T) {
	repo := newStubJobRepo()
	svc := newTestService(repo, &stubGraphStore{}, &stubStorage{}, &stubExtractor{}, &stubAnalytics{})

	retryable := entities.NewExtractionJob("ep1", "GAD", false, "obj", 3)
	retryable.MarkAsExtracting()
	repo.jobs[retryable.ID] = retryable

	exhausted := entities.NewExtractionJob("ep2", "GAD", false, "obj", 2)
	exhausted.RetryCount = 2
	exhausted.MarkAsStoring()
	repo.jobs[exhausted.ID] = exhausted

	svc.recoverStuckJobs(context.Background())

	assert.Equal(t, entities.ExtractionJobStatusQueued, repo.jobs[retryable.ID].Status)
	assert.Equal(t, 1, repo.jobs[retryable.ID].RetryCount)
	assert.Equal(t, entities.ExtractionJobStatusError, repo.jobs[exhausted.ID].Status)
}

func TestGetJobStatus_NotFound(t *testing.T) {
	svc := newTestService(newStubJobRepo(), &stubGraphStore{}, &stubStorage{}, &stubExtractor{}, &stubAnalytics{})

	_, err := svc.GetJobStatus(context.Background(), uuid.New())
	require.Error(t, err)
	appErr, ok := err.(errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode_JOB_NOT_FOUND, appErr.Code)
	assert.Equal(t, 404, appErr.HTTPCode)
}

func TestProcessJob_FullPipeline(t *testing.T) {
	repo := newStubJobRepo()
	store := &stubGraphStore{}
	stor := &stubStorage{}
	an := &stubAnalytics{}
	ext := &stubExtractor{payload: &llm.ExtractionPayload{
		ClinicalEntities: []llm.RawEntity{
			{Name: "anxiety", Type: "symptom"},
			{Name: "Anxiety", Type: "symptom"},
			{Name: "worry", Type: "emotion"},
		},
		SemanticEntities: []llm.RawEntity{{Name: "school", Type: "place"}},
		Relationships: []llm.RawRelationship{
			{From: "anxiety", To: "worry", Type: "relates to"},
			{From: "worry", To: "nowhere", Type: "relates to"},
		},
	}}
	svc := newTestService(repo, store, stor, ext, an)

	job, err := svc.SubmitTranscript(context.Background(), "ep1", "GAD", true, "transcript body")
	require.NoError(t, err)

	claimed, err := repo.ClaimQueuedJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, svc.processJob(context.Background(), claimed))

	require.Len(t, store.stored, 1)
	ep := store.stored[0]
	assert.Equal(t, "ep1", ep.Name)
	assert.True(t, ep.MeetsCriteria)
	assert.Len(t, ep.ClinicalEntities, 2)
	assert.Len(t, ep.SemanticEntities, 1)
	assert.Len(t, ep.Relationships, 1)

	assert.Equal(t, 1, an.recomputes)
	assert.Equal(t, []entities.ExtractionJobStatus{
		entities.ExtractionJobStatusStoring,
		entities.ExtractionJobStatusAnalyzing,
	}, repo.statuses)

	final := repo.jobs[job.ID]
	assert.Equal(t, entities.ExtractionJobStatusComplete, final.Status)
	counts := final.Counts.Data()
	assert.Equal(t, 2, counts.ClinicalEntities)
	assert.Equal(t, 1, counts.Relationships)
	assert.Equal(t, 1, counts.DroppedEdges)
	assert.True(t, final.IsTerminal())
}

func TestReclassifyRelationships(t *testing.T) {
	store := &stubGraphStore{generics: []graph.GenericRelationship{
		{Episode: "ep1", From: "sertraline", To: "anxiety", Description: "prescribed for anxiety"},
		{Episode: "ep1", From: "exam", To: "panic", Description: "exams set off panic"},
		{Episode: "ep1", From: "cat", To: "couch", Description: "the cat sat somewhere"},
	}}
	ext := &stubExtractor{classify: map[string]string{
		"sertraline->anxiety": llm.RelationTreats,
		"exam->panic":         llm.RelationTriggers,
	}}
	svc := newTestService(newStubJobRepo(), store, &stubStorage{}, ext, &stubAnalytics{})

	result, err := svc.ReclassifyRelationships(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Examined)
	assert.Equal(t, 2, result.Reclassified)
	assert.Equal(t, 1, result.Uncertain)
	assert.Equal(t, llm.RelationTreats, store.retyped["sertraline->anxiety"])
	assert.Equal(t, llm.RelationTriggers, store.retyped["exam->panic"])
	assert.NotContains(t, store.retyped, "cat->couch")
}

func TestReclassifyRelationships_LLMDown(t *testing.T) {
	svc := newTestService(newStubJobRepo(), &stubGraphStore{}, &stubStorage{}, &stubExtractor{healthErr: fmt.Errorf("refused")}, &stubAnalytics{})

	_, err := svc.ReclassifyRelationships(context.Background(), 10)
	require.Error(t, err)
	appErr, ok := err.(errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode_LLM_UNAVAILABLE, appErr.Code)
}
