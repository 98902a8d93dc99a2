package handler

import (
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/chat2graph/chat2graph/errors"
	"github.com/chat2graph/chat2graph/internal/infrastructure/storage"
)

// Transcript exposes the stored raw transcripts for inspection.
// Extraction jobs read from the same bucket, so this is the place to
// verify what a job actually processed.
type Transcript struct {
	Base
	storage *storage.MinIOClient
}

// NewTranscriptHandler creates a new transcript browse handler
func NewTranscriptHandler(storageClient *storage.MinIOClient, logger *zap.Logger) *Transcript {
	return &Transcript{
		Base:    Base{logger: logger},
		storage: storageClient,
	}
}

// List returns all stored transcript object names
func (h *Transcript) List(c echo.Context) error {
	ctx := c.Request().Context()

	objects, err := h.storage.ListTranscripts(ctx)
	if err != nil {
		return h.handleError(c, errors.ErrStorageFailed("list", err))
	}

	return h.handleSuccess(c, 200, map[string]interface{}{
		"transcripts": objects,
		"count":       len(objects),
	})
}

// Content returns the raw text of one stored transcript
func (h *Transcript) Content(c echo.Context) error {
	ctx := c.Request().Context()

	objectName := strings.TrimSpace(c.QueryParam("file"))
	if objectName == "" {
		return h.handleError(c, errors.ErrInvalidArgument("Missing file parameter"))
	}

	content, err := h.storage.DownloadTranscript(ctx, objectName)
	if err != nil {
		return h.handleError(c, errors.ErrStorageFailed("download", err))
	}

	return c.String(200, content)
}

// Delete removes a stored transcript. The graph and analytics built
// from it are untouched.
func (h *Transcript) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	objectName := strings.TrimSpace(c.QueryParam("file"))
	if objectName == "" {
		return h.handleError(c, errors.ErrInvalidArgument("Missing file parameter"))
	}

	if err := h.storage.DeleteTranscript(ctx, objectName); err != nil {
		return h.handleError(c, errors.ErrStorageFailed("delete", err))
	}

	return h.handleSuccess(c, 200, map[string]interface{}{"deleted": objectName})
}

// BucketInfo reports bucket connection details for ops checks
func (h *Transcript) BucketInfo(c echo.Context) error {
	ctx := c.Request().Context()

	info, err := h.storage.GetBucketInfo(ctx)
	if err != nil {
		return h.handleError(c, errors.ErrStorageFailed("info", err))
	}

	return h.handleSuccess(c, 200, info)
}
