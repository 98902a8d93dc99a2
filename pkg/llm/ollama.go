package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/chat2graph/chat2graph/pkg/config"
)

// OllamaClient talks to a local Ollama instance for entity extraction
// and relationship classification.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// NewOllamaClient creates an Ollama client using values from the provided
// config. Pass a nil config to use defaults for a local instance.
func NewOllamaClient(cfg *config.OllamaConfig) *OllamaClient {
	base := "http://localhost:11434"
	model := "llama3.1:8b"
	temperature := 0.1
	maxTokens := 2000
	timeout := 120 * time.Second

	if cfg != nil {
		if cfg.BaseURL != "" {
			base = cfg.BaseURL
		}
		if cfg.Model != "" {
			model = cfg.Model
		}
		if cfg.Temperature > 0 {
			temperature = cfg.Temperature
		}
		if cfg.MaxTokens > 0 {
			maxTokens = cfg.MaxTokens
		}
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
	}

	return &OllamaClient{
		baseURL:     strings.TrimRight(base, "/"),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		client:      &http.Client{Timeout: timeout},
	}
}

// generateRequest is the shape for Ollama /api/generate requests
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

// generateResponse is a minimal response shape
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends a prompt to Ollama and returns the raw completion text.
// Transient failures are retried with exponential backoff.
func (o *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: o.temperature,
			NumPredict:  o.maxTokens,
		},
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	var out string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/generate", bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("ollama returned status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("ollama returned status %d", resp.StatusCode))
		}

		var gr generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
			return backoff.Permanent(fmt.Errorf("decode ollama response: %w", err))
		}
		out = gr.Response
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return out, nil
}

// Health checks whether the Ollama instance is reachable
func (o *OllamaClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// RawEntity is an entity as produced by the model
type RawEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RawRelationship is a relationship as produced by the model
type RawRelationship struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ExtractionPayload is the JSON document the extraction prompt asks for
type ExtractionPayload struct {
	ClinicalEntities []RawEntity       `json:"clinical_entities"`
	SemanticEntities []RawEntity       `json:"semantic_entities"`
	Relationships    []RawRelationship `json:"relationships"`
}

// ExtractEntities runs the extraction prompt against a transcript and
// parses the result. The model often wraps its JSON in prose, so the
// payload is cut from the first '{' to the last '}' before decoding.
func (o *OllamaClient) ExtractEntities(ctx context.Context, transcript string) (*ExtractionPayload, error) {
	raw, err := o.Generate(ctx, BuildExtractionPrompt(transcript))
	if err != nil {
		return nil, err
	}

	doc, err := cutJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var payload ExtractionPayload
	if err := json.Unmarshal([]byte(doc), &payload); err != nil {
		return nil, fmt.Errorf("parse extraction payload: %w", err)
	}
	return &payload, nil
}

// ClassifyRelationship asks the model to pick a precise relationship
// type for a generic edge. Answers outside the known taxonomy fall
// back to UNCERTAIN.
func (o *OllamaClient) ClassifyRelationship(ctx context.Context, from, to, description string) (string, error) {
	raw, err := o.Generate(ctx, BuildClassifyPrompt(from, to, description))
	if err != nil {
		return "", err
	}

	answer := strings.ToUpper(strings.TrimSpace(raw))
	// Models sometimes answer with a sentence; keep the first token.
	if i := strings.IndexAny(answer, " \n.,:"); i > 0 {
		answer = answer[:i]
	}
	if !IsKnownRelationType(answer) {
		return RelationUncertain, nil
	}
	return answer, nil
}

// cutJSONObject returns the substring between the first '{' and the
// last '}' inclusive.
func cutJSONObject(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in model output")
	}
	return s[start : end+1], nil
}
