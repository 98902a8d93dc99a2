package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/chat2graph/chat2graph/errors"
	"github.com/chat2graph/chat2graph/internal/adapter/dto"
	"github.com/chat2graph/chat2graph/internal/infrastructure/graph"
	"github.com/chat2graph/chat2graph/internal/usecase/analytics"
	"github.com/chat2graph/chat2graph/internal/usecase/extraction"
)

// Analysis serves the analytics artifact and graph statistics
type Analysis struct {
	Base
	analytics  *analytics.Service
	store      *graph.EpisodeStore
	extraction *extraction.Service
}

// NewAnalysisHandler creates the analysis handler
func NewAnalysisHandler(analyticsSvc *analytics.Service, store *graph.EpisodeStore, extractionSvc *extraction.Service, logger *zap.Logger) *Analysis {
	return &Analysis{
		Base:       Base{logger: logger},
		analytics:  analyticsSvc,
		store:      store,
		extraction: extractionSvc,
	}
}

// Latest returns the current analysis artifact
func (h *Analysis) Latest(c echo.Context) error {
	report, err := h.analytics.Latest(c.Request().Context())
	if err != nil {
		return h.handleError(c, err)
	}
	return h.handleSuccess(c, http.StatusOK, report)
}

// Recompute rebuilds the artifact from the graph on demand
func (h *Analysis) Recompute(c echo.Context) error {
	report, err := h.analytics.Recompute(c.Request().Context())
	if err != nil {
		return h.handleError(c, err)
	}
	return h.handleSuccess(c, http.StatusOK, report)
}

// UploadJSON merges a previously exported artifact into the current one
func (h *Analysis) UploadJSON(c echo.Context) error {
	report := new(analytics.Report)
	if err := c.Bind(report); err != nil {
		return h.handleError(c, errors.ErrInvalidPayload())
	}

	merged, err := h.analytics.MergeUpload(c.Request().Context(), report)
	if err != nil {
		return h.handleError(c, err)
	}
	return h.handleSuccess(c, http.StatusOK, merged)
}

// Stats reports graph-wide counts and job queue depth
func (h *Analysis) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	graphStats, err := h.store.Stats(ctx)
	if err != nil {
		return h.handleError(c, errors.ErrGraphQueryFailed(err))
	}

	jobCounts, err := h.extraction.JobCounts(ctx)
	if err != nil {
		return h.handleError(c, err)
	}

	jobs := make(map[string]int64, len(jobCounts))
	for status, n := range jobCounts {
		jobs[string(status)] = n
	}

	return h.handleSuccess(c, http.StatusOK, dto.StatsResponse{
		Graph: graphStats,
		Jobs:  jobs,
	})
}
