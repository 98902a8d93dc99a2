package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chat2graph/chat2graph/pkg/config"
)

func newTestClient(baseURL string) *OllamaClient {
	return NewOllamaClient(&config.OllamaConfig{BaseURL: baseURL, Model: "test-model"})
}

func TestGenerate_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST got %s", r.Method)
		}
		var payload generateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("invalid payload: %v", err)
		}
		assert.Equal(t, "test-model", payload.Model)
		assert.False(t, payload.Stream)
		json.NewEncoder(w).Encode(generateResponse{Response: "hello", Done: true})
	}))
	defer ts.Close()

	out, err := newTestClient(ts.URL).Generate(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestGenerate_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestGenerate_RetriesServerError(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "recovered", Done: true})
	}))
	defer ts.Close()

	out, err := newTestClient(ts.URL).Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 3, calls)
}

func TestExtractEntities_ParsesWrappedJSON(t *testing.T) {
	doc := `Here is the extraction you asked for:
{
  "clinical_entities": [{"name": "anxiety", "type": "symptom"}, {"name": "worry", "type": "emotion"}],
  "semantic_entities": [{"name": "school", "type": "place"}],
  "relationships": [{"from": "anxiety", "to": "worry", "type": "relates to", "description": "anxiety fuels worry"}]
}
Hope that helps!`

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: doc, Done: true})
	}))
	defer ts.Close()

	payload, err := newTestClient(ts.URL).ExtractEntities(context.Background(), "transcript text")
	require.NoError(t, err)
	require.Len(t, payload.ClinicalEntities, 2)
	require.Len(t, payload.SemanticEntities, 1)
	require.Len(t, payload.Relationships, 1)
	assert.Equal(t, "anxiety", payload.ClinicalEntities[0].Name)
	assert.Equal(t, "anxiety", payload.Relationships[0].From)
}

func TestExtractEntities_NoJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "I could not find any entities.", Done: true})
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).ExtractEntities(context.Background(), "transcript")
	require.Error(t, err)
}

func TestClassifyRelationship(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{"bare type", "TRIGGERS", RelationTriggers},
		{"lowercase", "diagnosed_with", RelationDiagnosedWith},
		{"wrapped in sentence", "TREATS is the best fit.", RelationTreats},
		{"unknown answer", "SOMETHING_ELSE", RelationUncertain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(generateResponse{Response: tt.answer, Done: true})
			}))
			defer ts.Close()

			got, err := newTestClient(ts.URL).ClassifyRelationship(context.Background(), "therapist", "patient", "weekly sessions")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
	}))
	defer ts.Close()

	assert.NoError(t, newTestClient(ts.URL).Health(context.Background()))

	ts.Close()
	assert.Error(t, newTestClient(ts.URL).Health(context.Background()))
}
