package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-seating-api/internal/dto"
	"github.com/noah-isme/exam-seating-api/internal/middleware"
	appErrors "github.com/noah-isme/exam-seating-api/pkg/errors"
	"github.com/noah-isme/exam-seating-api/pkg/response"
)

type seatAllocator interface {
	Allocate(ctx context.Context, examID, actorID string, req dto.AllocateRequest) (*dto.AllocationSummary, error)
	Preview(ctx context.Context, examID string, req dto.AllocateRequest) (*dto.AllocationPreview, error)
	Clear(ctx context.Context, examID string) (*dto.ClearAllocationResponse, error)
}

// AllocationHandler exposes the seat allocation engine.
type AllocationHandler struct {
	service seatAllocator
}

// NewAllocationHandler constructs the handler.
func NewAllocationHandler(service seatAllocator) *AllocationHandler {
	return &AllocationHandler{service: service}
}

// Allocate godoc
// @Summary Allocate seats for an exam
// @Description Maps every registered student to one usable seat. Fails with ALREADY_ALLOCATED unless clear_existing is set.
// @Tags Allocation
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param X-Actor-ID header string true "Acting operator"
// @Param payload body dto.AllocateRequest true "Allocation options"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /exams/{id}/allocate [post]
func (h *AllocationHandler) Allocate(c *gin.Context) {
	var req dto.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid allocation payload"))
		return
	}
	summary, err := h.service.Allocate(c.Request.Context(), c.Param("id"), middleware.ActorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Preview godoc
// @Summary Preview a seat allocation
// @Description Runs the engine without writing assignments.
// @Tags Allocation
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body dto.AllocateRequest true "Allocation options"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /exams/{id}/allocate/preview [post]
func (h *AllocationHandler) Preview(c *gin.Context) {
	var req dto.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid allocation payload"))
		return
	}
	preview, err := h.service.Preview(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, map[string]interface{}{"mode": "preview"})
}

// Clear godoc
// @Summary Clear seat assignments of an exam
// @Tags Allocation
// @Produce json
// @Param id path string true "Exam ID"
// @Param X-Actor-ID header string true "Acting operator"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/allocate [delete]
func (h *AllocationHandler) Clear(c *gin.Context) {
	result, err := h.service.Clear(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
