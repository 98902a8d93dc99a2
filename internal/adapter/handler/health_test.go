package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chat2graph/chat2graph/internal/adapter/dto"
)

type stubHealthChecker struct{ err error }

func (s stubHealthChecker) Health(context.Context) error { return s.err }

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name      string
		llmErr    error
		graphErr  error
		wantLLM   string
		wantGraph string
	}{
		{"all up", nil, nil, "ok", "ok"},
		{"ollama down", errors.New("connection refused"), nil, "down", "ok"},
		{"neo4j down", nil, errors.New("no route to host"), "ok", "down"},
		{"everything down", errors.New("x"), errors.New("y"), "down", "down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(stubHealthChecker{tt.llmErr}, stubPinger{tt.graphErr}, zap.NewNop())

			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()

			require.NoError(t, h.Check(e.NewContext(req, rec)))

			// Health is always 200; degradation lives in the body
			assert.Equal(t, http.StatusOK, rec.Code)

			var resp dto.HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "ok", resp.Server)
			assert.Equal(t, tt.wantLLM, resp.Ollama)
			assert.Equal(t, tt.wantGraph, resp.Neo4j)
		})
	}
}
