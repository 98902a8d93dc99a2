// Package query answers natural-language questions over the episode
// graph. An LLM routes each question to either a generated read-only
// Cypher query or a substring search over the loaded graph.
package query

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/chat2graph/chat2graph/errors"
	"github.com/chat2graph/chat2graph/internal/usecase/graphfilter"
	"github.com/chat2graph/chat2graph/pkg/llm"
)

// Route names the execution path chosen for a question
const (
	RouteCypher = "cypher"
	RouteSearch = "search"
)

// LLM generates completions for routing and Cypher generation
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GraphQuerier runs vetted read-only Cypher
type GraphQuerier interface {
	RunReadQuery(ctx context.Context, cypher string, maxRows int) ([]map[string]any, error)
}

// SubgraphFilter is the substring-search fallback
type SubgraphFilter interface {
	Apply(ctx context.Context, mode graphfilter.Mode, query string) (*graphfilter.Result, error)
}

// Answer is the response to one natural-language question
type Answer struct {
	Query   string              `json:"query"`
	Route   string              `json:"route"`
	Cypher  string              `json:"cypher,omitempty"`
	Results []map[string]any    `json:"results,omitempty"`
	Graph   *graphfilter.Result `json:"graph,omitempty"`
}

// Router routes questions between Cypher generation and search
type Router struct {
	llm     LLM
	graph   GraphQuerier
	filter  SubgraphFilter
	maxRows int
	logger  *zap.Logger
}

// NewRouter creates the query router
func NewRouter(llmClient LLM, graph GraphQuerier, filter SubgraphFilter, logger *zap.Logger) *Router {
	return &Router{
		llm:     llmClient,
		graph:   graph,
		filter:  filter,
		maxRows: 100,
		logger:  logger,
	}
}

// Answer classifies the question with the LLM and executes it. Any
// failure on the Cypher path falls back to substring search rather
// than surfacing an error, so a flaky model degrades to weaker
// answers instead of breaking the endpoint.
func (r *Router) Answer(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.ErrMissingQuery()
	}

	route, err := r.llm.Generate(ctx, llm.BuildRouterPrompt(question))
	if err != nil {
		r.logger.Warn("query routing failed, falling back to search",
			zap.String("question", question),
			zap.Error(err))
		return r.search(ctx, question)
	}

	if !strings.Contains(strings.ToUpper(route), "CYPHER") {
		return r.search(ctx, question)
	}

	cypher, err := r.llm.Generate(ctx, llm.BuildCypherPrompt(question))
	if err != nil {
		r.logger.Warn("cypher generation failed, falling back to search",
			zap.String("question", question),
			zap.Error(err))
		return r.search(ctx, question)
	}

	cypher = StripCodeFences(cypher)
	if !IsReadOnlyCypher(cypher) {
		r.logger.Warn("generated cypher rejected, falling back to search",
			zap.String("question", question),
			zap.String("cypher", cypher))
		return r.search(ctx, question)
	}

	rows, err := r.graph.RunReadQuery(ctx, cypher, r.maxRows)
	if err != nil {
		r.logger.Warn("cypher execution failed, falling back to search",
			zap.String("cypher", cypher),
			zap.Error(err))
		return r.search(ctx, question)
	}

	return &Answer{
		Query:   question,
		Route:   RouteCypher,
		Cypher:  cypher,
		Results: rows,
	}, nil
}

func (r *Router) search(ctx context.Context, question string) (*Answer, error) {
	result, err := r.filter.Apply(ctx, graphfilter.ModeSearch, question)
	if err != nil {
		return nil, err
	}
	return &Answer{
		Query: question,
		Route: RouteSearch,
		Graph: result,
	}, nil
}

// StripCodeFences removes markdown code fences the model tends to
// wrap queries in.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return s
	}
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// mutating Cypher clauses; generated queries containing any of these
// are rejected before execution
var mutationKeywords = []string{
	"CREATE", "MERGE", "DELETE", "DETACH", "SET ", "REMOVE", "DROP", "LOAD CSV", "CALL ",
}

// IsReadOnlyCypher reports whether the query looks like a plain read.
// The graph session enforces read-only execution as well; this keeps
// obviously bad generations from reaching the database.
func IsReadOnlyCypher(cypher string) bool {
	upper := strings.ToUpper(strings.TrimSpace(cypher))
	if upper == "" {
		return false
	}
	if !strings.HasPrefix(upper, "MATCH") && !strings.HasPrefix(upper, "RETURN") {
		return false
	}
	for _, kw := range mutationKeywords {
		if strings.Contains(upper, kw) {
			return false
		}
	}
	return true
}
