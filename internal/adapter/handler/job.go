package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/chat2graph/chat2graph/errors"
	"github.com/chat2graph/chat2graph/internal/adapter/dto"
	"github.com/chat2graph/chat2graph/internal/domain/entities"
	"github.com/chat2graph/chat2graph/internal/usecase/extraction"
)

// Job handles transcript uploads and job status polling
type Job struct {
	Base
	extraction *extraction.Service
}

// NewJobHandler creates the job handler
func NewJobHandler(extractionSvc *extraction.Service, logger *zap.Logger) *Job {
	return &Job{
		Base:       Base{logger: logger},
		extraction: extractionSvc,
	}
}

// UploadTranscript accepts a transcript as multipart form data or JSON
// and queues an extraction job. Responds 202 with the job ID.
func (h *Job) UploadTranscript(c echo.Context) error {
	req, err := h.bindUpload(c)
	if err != nil {
		return h.handleError(c, err)
	}

	job, err := h.extraction.SubmitTranscript(
		c.Request().Context(),
		req.EpisodeName,
		req.Disorder,
		req.MeetsCriteria,
		req.Transcript,
	)
	if err != nil {
		return h.handleError(c, err)
	}

	return h.handleSuccess(c, http.StatusAccepted, dto.UploadAcceptedResponse{JobID: job.ID.String()})
}

// bindUpload reads upload parameters from either encoding
func (h *Job) bindUpload(c echo.Context) (*dto.UploadTranscriptRequest, error) {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		req := &dto.UploadTranscriptRequest{
			EpisodeName:   c.FormValue("episode_name"),
			Disorder:      c.FormValue("disorder"),
			MeetsCriteria: strings.EqualFold(c.FormValue("meets_criteria"), "true"),
		}

		file, err := c.FormFile("file")
		if err != nil {
			return nil, errors.ErrMissingTranscript()
		}
		src, err := file.Open()
		if err != nil {
			return nil, errors.ErrInvalidPayload()
		}
		defer src.Close()
		body, err := io.ReadAll(src)
		if err != nil {
			return nil, errors.ErrInvalidPayload()
		}
		req.Transcript = string(body)
		if req.EpisodeName == "" {
			// fall back to the file name without extension
			name := file.Filename
			if i := strings.LastIndex(name, "."); i > 0 {
				name = name[:i]
			}
			req.EpisodeName = name
		}
		return req, nil
	}

	req := new(dto.UploadTranscriptRequest)
	if err := c.Bind(req); err != nil {
		return nil, errors.ErrInvalidPayload()
	}
	if err := c.Validate(req); err != nil {
		return nil, errors.ErrInvalidArgument(err.Error())
	}
	return req, nil
}

// Status reports job progress. Unknown IDs yield 404.
func (h *Job) Status(c echo.Context) error {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return h.handleError(c, errors.ErrInvalidArgument("job id must be a UUID"))
	}

	job, err := h.extraction.GetJobStatus(c.Request().Context(), jobID)
	if err != nil {
		return h.handleError(c, err)
	}

	return h.handleSuccess(c, http.StatusOK, dto.NewJobStatusResponse(job))
}

// Disorders lists the disorder groupings accepted by uploads
func (h *Job) Disorders(c echo.Context) error {
	return h.handleSuccess(c, http.StatusOK, dto.DisordersResponse{Disorders: entities.KnownDisorders})
}

// AddConversation ingests a transcript synchronously and returns the
// resolved episode graph.
func (h *Job) AddConversation(c echo.Context) error {
	req := new(dto.AddConversationRequest)
	if err := c.Bind(req); err != nil {
		return h.handleError(c, errors.ErrInvalidPayload())
	}
	if err := c.Validate(req); err != nil {
		return h.handleError(c, errors.ErrInvalidArgument(err.Error()))
	}

	result, err := h.extraction.ProcessTranscriptInline(
		c.Request().Context(),
		req.EpisodeName,
		req.Disorder,
		req.MeetsCriteria,
		req.Transcript,
	)
	if err != nil {
		return h.handleError(c, err)
	}

	return h.handleSuccess(c, http.StatusCreated, dto.ConversationResponse{
		Episode:    result.Episode,
		Resolution: result.Resolution,
	})
}

// Reclassify runs one relationship reclassification pass
func (h *Job) Reclassify(c echo.Context) error {
	req := new(dto.ReclassifyRequest)
	if err := c.Bind(req); err != nil {
		return h.handleError(c, errors.ErrInvalidPayload())
	}
	if err := c.Validate(req); err != nil {
		return h.handleError(c, errors.ErrInvalidArgument(err.Error()))
	}

	result, err := h.extraction.ReclassifyRelationships(c.Request().Context(), req.Limit)
	if err != nil {
		return h.handleError(c, err)
	}

	return h.handleSuccess(c, http.StatusOK, result)
}
