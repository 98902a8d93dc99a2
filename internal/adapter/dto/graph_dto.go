package dto

import (
	"github.com/chat2graph/chat2graph/internal/domain/entities"
	"github.com/chat2graph/chat2graph/internal/infrastructure/graph"
)

// HealthResponse reports backend reachability
type HealthResponse struct {
	Server string `json:"server"`
	Ollama string `json:"ollama"`
	Neo4j  string `json:"neo4j"`
}

// StatsResponse combines graph-wide counts with job queue depth
type StatsResponse struct {
	Graph *graph.OverallStats `json:"graph"`
	Jobs  map[string]int64    `json:"jobs"`
}

// DisordersResponse lists the disorder groupings uploads may use
type DisordersResponse struct {
	Disorders []string `json:"disorders"`
}

// QueryRequest carries a natural-language question about the graph
type QueryRequest struct {
	Query string `json:"query" validate:"required"`
}

// ConversationResponse returns the outcome of synchronous ingestion
type ConversationResponse struct {
	Episode    entities.Episode         `json:"episode"`
	Resolution entities.ResolutionStats `json:"resolution"`
}
