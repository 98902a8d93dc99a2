package analytics

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chat2graph/chat2graph/errors"
	"github.com/chat2graph/chat2graph/internal/domain/entities"
	"github.com/chat2graph/chat2graph/internal/infrastructure/cache"
)

type stubLister struct {
	episodes []entities.Episode
	err      error
}

func (s *stubLister) ListEpisodes(context.Context) ([]entities.Episode, error) {
	return s.episodes, s.err
}

func newTestService(t *testing.T, lister *stubLister) *Service {
	t.Helper()
	return NewService(lister, cache.NewMemoryStore(), t.TempDir(), time.Minute, zap.NewNop())
}

func TestRecomputeWritesArtifact(t *testing.T) {
	ep := episodeFixture()
	svc := newTestService(t, &stubLister{episodes: []entities.Episode{ep}})

	report, err := svc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Overall.Episodes)

	data, err := os.ReadFile(svc.ArtifactPath())
	require.NoError(t, err)

	var onDisk Report
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Contains(t, onDisk.ByEpisode, "episode_1")
	assert.InDelta(t, 0.5, onDisk.ByEpisode["episode_1"].Metrics.ClinicalDensity, 1e-9)

	// the dashboard reads counts from a nested metrics object
	var shape struct {
		ByEpisode map[string]struct {
			Metrics map[string]float64 `json:"metrics"`
		} `json:"by_episode"`
	}
	require.NoError(t, json.Unmarshal(data, &shape))
	keys := shape.ByEpisode["episode_1"].Metrics
	for _, k := range []string{"total", "clinical", "semantic", "relationships"} {
		assert.Contains(t, keys, k)
	}
	assert.Equal(t, 3.0, keys["total"])
	assert.Equal(t, 2.0, keys["clinical"])

	// no leftover temp files from the atomic write
	files, err := filepath.Glob(filepath.Join(filepath.Dir(svc.ArtifactPath()), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLatest_MissingArtifact(t *testing.T) {
	svc := newTestService(t, &stubLister{})

	_, err := svc.Latest(context.Background())
	require.Error(t, err)
	appErr, ok := err.(errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode_ARTIFACT_MISSING, appErr.Code)
}

func TestLatest_ReadsFromDiskWithoutCache(t *testing.T) {
	lister := &stubLister{episodes: []entities.Episode{episodeFixture()}}
	svc := NewService(lister, nil, t.TempDir(), time.Minute, zap.NewNop())

	_, err := svc.Recompute(context.Background())
	require.NoError(t, err)

	report, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report.ByEpisode, "episode_1")
}

func TestMergeUpload(t *testing.T) {
	svc := newTestService(t, &stubLister{episodes: []entities.Episode{episodeFixture()}})
	_, err := svc.Recompute(context.Background())
	require.NoError(t, err)

	uploadedEp := entities.Episode{
		Name:     "uploaded_1",
		Disorder: "PTSD",
		ClinicalEntities: []entities.EntityRecord{
			{Name: "flashback", Type: "symptom"},
			{Name: "hypervigilance", Type: "symptom"},
		},
		Relationships: []entities.RelationshipRecord{
			{From: "flashback", To: "hypervigilance", Type: "TRIGGERS"},
		},
	}
	uploaded := BuildReport([]entities.Episode{uploadedEp})

	merged, err := svc.MergeUpload(context.Background(), uploaded)
	require.NoError(t, err)

	assert.Equal(t, 2, merged.Overall.Episodes)
	assert.Contains(t, merged.ByEpisode, "episode_1")
	assert.Contains(t, merged.ByEpisode, "uploaded_1")
	assert.Contains(t, merged.ByDisorder, "PTSD")
	assert.Equal(t, 4, merged.Overall.ClinicalEntities)

	// merged artifact replaces the one on disk
	fromDisk, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fromDisk.Overall.Episodes)
}

func TestMergeUpload_ReplacesSameEpisode(t *testing.T) {
	svc := newTestService(t, &stubLister{episodes: []entities.Episode{episodeFixture()}})
	_, err := svc.Recompute(context.Background())
	require.NoError(t, err)

	replacement := episodeFixture()
	replacement.ClinicalEntities = append(replacement.ClinicalEntities, entities.EntityRecord{Name: "panic", Type: "symptom"})
	uploaded := BuildReport([]entities.Episode{replacement})

	merged, err := svc.MergeUpload(context.Background(), uploaded)
	require.NoError(t, err)
	assert.Equal(t, 1, merged.Overall.Episodes)
	assert.Equal(t, 3, len(merged.ByEpisode["episode_1"].ClinicalEntities))
}

func TestMergeUpload_NoExistingArtifact(t *testing.T) {
	svc := newTestService(t, &stubLister{})

	uploaded := BuildReport([]entities.Episode{episodeFixture()})
	merged, err := svc.MergeUpload(context.Background(), uploaded)
	require.NoError(t, err)
	assert.Equal(t, 1, merged.Overall.Episodes)
}

func TestMergeUpload_DecodesNestedMetrics(t *testing.T) {
	svc := newTestService(t, &stubLister{})

	payload := `{
		"by_episode": {
			"uploaded_1": {
				"metrics": {
					"total": 3,
					"clinical": 2,
					"semantic": 1,
					"relationships": 1,
					"clinical_ratio": 0.6667,
					"clinical_density": 0.5,
					"semantic_density": 0,
					"cross_density": 0,
					"overall_density": 0.1667
				},
				"disorder": "GAD",
				"meets_criteria": true,
				"clinical_entities": [],
				"semantic_entities": [],
				"relationships": []
			}
		}
	}`
	var uploaded Report
	require.NoError(t, json.Unmarshal([]byte(payload), &uploaded))

	merged, err := svc.MergeUpload(context.Background(), &uploaded)
	require.NoError(t, err)
	assert.Equal(t, 3, merged.Overall.TotalEntities)
	assert.Equal(t, 2, merged.Overall.ClinicalEntities)
	assert.Equal(t, 1, merged.Overall.SemanticEntities)
	assert.Equal(t, 1, merged.Overall.TotalRelationships)
}

func TestMergeUpload_Invalid(t *testing.T) {
	svc := newTestService(t, &stubLister{})

	cases := map[string]*Report{
		"nil report": nil,
		"empty":      {ByEpisode: map[string]*EpisodeReport{}},
		"empty name": {ByEpisode: map[string]*EpisodeReport{"": {}}},
		"nil entry":  {ByEpisode: map[string]*EpisodeReport{"x": nil}},
		"bad metric": {ByEpisode: map[string]*EpisodeReport{"x": {
			Metrics: EpisodeMetrics{ClinicalRatio: 1.5},
		}}},
	}
	for name, uploaded := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.MergeUpload(context.Background(), uploaded)
			require.Error(t, err)
			appErr, ok := err.(errors.AppError)
			require.True(t, ok)
			assert.Equal(t, errors.ErrorCode_ARTIFACT_INVALID, appErr.Code)
		})
	}
}

func TestInvalidate(t *testing.T) {
	svc := newTestService(t, &stubLister{episodes: []entities.Episode{episodeFixture()}})
	_, err := svc.Recompute(context.Background())
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(context.Background()))

	_, err = svc.Latest(context.Background())
	require.Error(t, err)

	// invalidating twice is fine
	require.NoError(t, svc.Invalidate(context.Background()))
}
