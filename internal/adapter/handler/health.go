package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/chat2graph/chat2graph/internal/adapter/dto"
)

// Pinger checks one backend dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker checks the LLM backend
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Health reports reachability of the service and its backends
type Health struct {
	Base
	llm   HealthChecker
	graph Pinger
}

// NewHealthHandler creates the health handler
func NewHealthHandler(llm HealthChecker, graph Pinger, logger *zap.Logger) *Health {
	return &Health{
		Base:  Base{logger: logger},
		llm:   llm,
		graph: graph,
	}
}

// Check always answers 200; backend state is reported in the body so
// the dashboard can show partial degradation.
func (h *Health) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := dto.HealthResponse{Server: "ok", Ollama: "ok", Neo4j: "ok"}
	if err := h.llm.Health(ctx); err != nil {
		resp.Ollama = "down"
	}
	if err := h.graph.Ping(ctx); err != nil {
		resp.Neo4j = "down"
	}

	return c.JSON(http.StatusOK, resp)
}
