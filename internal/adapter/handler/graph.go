package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/chat2graph/chat2graph/errors"
	"github.com/chat2graph/chat2graph/internal/adapter/dto"
	"github.com/chat2graph/chat2graph/internal/infrastructure/graph"
	"github.com/chat2graph/chat2graph/internal/usecase/analytics"
	"github.com/chat2graph/chat2graph/internal/usecase/graphfilter"
	"github.com/chat2graph/chat2graph/internal/usecase/query"
)

// Graph serves filtered graph views, natural-language queries, and
// destructive graph operations.
type Graph struct {
	Base
	filter    *graphfilter.Filter
	router    *query.Router
	store     *graph.EpisodeStore
	analytics *analytics.Service
}

// NewGraphHandler creates the graph handler
func NewGraphHandler(filter *graphfilter.Filter, queryRouter *query.Router, store *graph.EpisodeStore, analyticsSvc *analytics.Service, logger *zap.Logger) *Graph {
	return &Graph{
		Base:      Base{logger: logger},
		filter:    filter,
		router:    queryRouter,
		store:     store,
		analytics: analyticsSvc,
	}
}

// Filter returns a filtered subgraph. Mode defaults to search.
func (h *Graph) Filter(c echo.Context) error {
	mode := graphfilter.Mode(c.QueryParam("mode"))
	if mode == "" {
		mode = graphfilter.ModeSearch
	}

	result, err := h.filter.Apply(c.Request().Context(), mode, c.QueryParam("q"))
	if err != nil {
		return h.handleError(c, err)
	}
	return h.handleSuccess(c, http.StatusOK, result)
}

// Query answers a natural-language question over the graph
func (h *Graph) Query(c echo.Context) error {
	req := new(dto.QueryRequest)
	if err := c.Bind(req); err != nil {
		return h.handleError(c, errors.ErrInvalidPayload())
	}
	if err := c.Validate(req); err != nil {
		return h.handleError(c, errors.ErrInvalidArgument(err.Error()))
	}

	answer, err := h.router.Answer(c.Request().Context(), req.Query)
	if err != nil {
		return h.handleError(c, err)
	}
	return h.handleSuccess(c, http.StatusOK, answer)
}

// DeleteAll wipes the graph and invalidates the analytics artifact
func (h *Graph) DeleteAll(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.store.DeleteAll(ctx); err != nil {
		return h.handleError(c, errors.ErrGraphQueryFailed(err))
	}
	if err := h.analytics.Invalidate(ctx); err != nil {
		h.logger.Warn("graph wiped but artifact invalidation failed", zap.Error(err))
	}

	return h.handleSuccess(c, http.StatusOK, map[string]string{"status": "deleted"})
}
