package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-seating-api/internal/dto"
	"github.com/noah-isme/exam-seating-api/internal/middleware"
	"github.com/noah-isme/exam-seating-api/internal/service"
	appErrors "github.com/noah-isme/exam-seating-api/pkg/errors"
	"github.com/noah-isme/exam-seating-api/pkg/response"
)

type seatingExportService interface {
	CreateJob(ctx context.Context, examID, actorID string, req dto.SeatingExportRequest) (*dto.SeatingExportJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.SeatingExportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.SeatingDownload, error)
}

// SeatingExportHandler exposes seating chart exports.
type SeatingExportHandler struct {
	service seatingExportService
}

// NewSeatingExportHandler constructs the handler.
func NewSeatingExportHandler(service seatingExportService) *SeatingExportHandler {
	return &SeatingExportHandler{service: service}
}

// Create godoc
// @Summary Queue a seating chart export
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param X-Actor-ID header string true "Acting operator"
// @Param payload body dto.SeatingExportRequest false "Export options"
// @Success 202 {object} response.Envelope
// @Router /exams/{id}/seating/exports [post]
func (h *SeatingExportHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "exports are disabled"))
		return
	}
	var req dto.SeatingExportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid export payload"))
			return
		}
	}
	job, err := h.service.CreateJob(c.Request.Context(), c.Param("id"), middleware.ActorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Seating export status
// @Tags Exports
// @Produce json
// @Param jobId path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Router /seating/exports/{jobId} [get]
func (h *SeatingExportHandler) Status(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "exports are disabled"))
		return
	}
	status, err := h.service.GetStatus(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download a seating chart via signed token
// @Tags Exports
// @Produce text/csv
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /seating/exports/download [get]
func (h *SeatingExportHandler) Download(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "exports are disabled"))
		return
	}
	token := c.Query("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export file"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, nil)
}
