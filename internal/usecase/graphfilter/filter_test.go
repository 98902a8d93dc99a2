package graphfilter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chat2graph/chat2graph/errors"
	"github.com/chat2graph/chat2graph/internal/domain/entities"
)

type stubLister struct {
	episodes []entities.Episode
}

func (s *stubLister) ListEpisodes(context.Context) ([]entities.Episode, error) {
	return s.episodes, nil
}

func fixtures() *stubLister {
	return &stubLister{episodes: []entities.Episode{
		{
			Name:     "ep_gad_1",
			Disorder: "GAD",
			ClinicalEntities: []entities.EntityRecord{
				{Name: "anxiety", Type: "symptom"},
				{Name: "worry", Type: "emotion"},
			},
			SemanticEntities: []entities.EntityRecord{
				{Name: "school", Type: "place"},
			},
			Relationships: []entities.RelationshipRecord{
				{From: "anxiety", To: "worry", Type: "RELATES_TO"},
				{From: "school", To: "anxiety", Type: "TRIGGERS"},
			},
		},
		{
			Name:     "ep_ptsd_1",
			Disorder: "PTSD",
			ClinicalEntities: []entities.EntityRecord{
				{Name: "anxiety", Type: "symptom"},
				{Name: "flashback", Type: "symptom"},
			},
			Relationships: []entities.RelationshipRecord{
				{From: "flashback", To: "anxiety", Type: "TRIGGERS"},
			},
		},
	}}
}

func TestApply_MissingQuery(t *testing.T) {
	f := New(fixtures())

	for _, mode := range []Mode{ModeSearch, ModeEpisode, ModeRelationship, ModeDisorder} {
		_, err := f.Apply(context.Background(), mode, "   ")
		require.Error(t, err, "mode %s", mode)
		appErr, ok := err.(errors.AppError)
		require.True(t, ok)
		assert.Equal(t, errors.ErrorCode_MISSING_QUERY, appErr.Code)
	}
}

func TestApply_UnknownMode(t *testing.T) {
	_, err := New(fixtures()).Apply(context.Background(), Mode("bogus"), "q")
	require.Error(t, err)
	appErr, ok := err.(errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode_INVALID_ARGUMENT, appErr.Code)
}

func TestApply_Search(t *testing.T) {
	result, err := New(fixtures()).Apply(context.Background(), ModeSearch, "ANX")
	require.NoError(t, err)

	// anxiety appears in two episodes but once per category+name
	require.NotEmpty(t, result.Nodes)
	assert.Equal(t, "anxiety", result.Nodes[0].Name)
	assert.Equal(t, entities.CategoryClinical, result.Nodes[0].Category)
	assert.ElementsMatch(t, []string{"ep_gad_1", "ep_ptsd_1"}, result.Nodes[0].Episodes)

	// every edge touching anxiety comes along, with its other endpoint
	assert.Len(t, result.Edges, 3)
	names := make([]string, 0, len(result.Nodes))
	for _, n := range result.Nodes {
		names = append(names, n.Name)
	}
	assert.ElementsMatch(t, []string{"anxiety", "worry", "school", "flashback"}, names)
}

func TestApply_SearchIncludesEdgesWithOneMatchedEndpoint(t *testing.T) {
	lister := &stubLister{episodes: []entities.Episode{{
		Name: "ep_1",
		ClinicalEntities: []entities.EntityRecord{
			{Name: "anxiety", Type: "symptom"},
			{Name: "worry", Type: "emotion"},
		},
		Relationships: []entities.RelationshipRecord{
			{From: "anxiety", To: "worry", Type: "RELATES_TO"},
		},
	}}}

	result, err := New(lister).Apply(context.Background(), ModeSearch, "anx")
	require.NoError(t, err)

	require.Len(t, result.Edges, 1)
	assert.Equal(t, "anxiety", result.Edges[0].From)
	assert.Equal(t, "worry", result.Edges[0].To)
	assert.Len(t, result.Nodes, 2)
}

func TestApply_SearchEdgesBetweenMatches(t *testing.T) {
	lister := fixtures()
	result, err := New(lister).Apply(context.Background(), ModeSearch, "a")
	require.NoError(t, err)

	// "a" matches anxiety and flashback; their TRIGGERS edge survives
	edgeSeen := false
	for _, e := range result.Edges {
		if e.From == "flashback" && e.To == "anxiety" {
			edgeSeen = true
		}
	}
	assert.True(t, edgeSeen)
}

func TestApply_Episode(t *testing.T) {
	result, err := New(fixtures()).Apply(context.Background(), ModeEpisode, "EP_GAD_1")
	require.NoError(t, err)

	assert.Len(t, result.Nodes, 3)
	assert.Len(t, result.Edges, 2)
}

func TestApply_Episode_PartialMatch(t *testing.T) {
	// no exact episode named "gad", so substring fallback applies
	result, err := New(fixtures()).Apply(context.Background(), ModeEpisode, "gad")
	require.NoError(t, err)

	assert.Len(t, result.Nodes, 3)
	assert.Len(t, result.Edges, 2)
}

func TestApply_Episode_NoMatchIsEmptyNotError(t *testing.T) {
	result, err := New(fixtures()).Apply(context.Background(), ModeEpisode, "missing_episode")
	require.NoError(t, err)
	assert.Empty(t, result.Nodes)
	assert.Empty(t, result.Edges)
}

func TestApply_Relationship(t *testing.T) {
	result, err := New(fixtures()).Apply(context.Background(), ModeRelationship, "triggers")
	require.NoError(t, err)

	require.Len(t, result.Edges, 2)
	for _, e := range result.Edges {
		assert.Equal(t, "TRIGGERS", e.Type)
	}
	// endpoints: school, anxiety, flashback
	assert.Len(t, result.Nodes, 3)
}

func TestApply_RelationshipSubstring(t *testing.T) {
	result, err := New(fixtures()).Apply(context.Background(), ModeRelationship, "trig")
	require.NoError(t, err)

	require.Len(t, result.Edges, 2)
	for _, e := range result.Edges {
		assert.Equal(t, "TRIGGERS", e.Type)
	}
}

func TestApply_Disorder(t *testing.T) {
	result, err := New(fixtures()).Apply(context.Background(), ModeDisorder, "PTSD")
	require.NoError(t, err)

	assert.Len(t, result.Nodes, 2)
	require.Len(t, result.Edges, 1)
	assert.Equal(t, "ep_ptsd_1", result.Edges[0].Episode)
}

func TestApply_DisorderNormalizesUnknown(t *testing.T) {
	lister := fixtures()
	lister.episodes[1].Disorder = "unlabeled"

	result, err := New(lister).Apply(context.Background(), ModeDisorder, "whatever else")
	require.NoError(t, err)
	// both the query and the episode fold to Other
	assert.Len(t, result.Nodes, 2)
}
