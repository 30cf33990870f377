package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-seating-api/internal/dto"
	"github.com/noah-isme/exam-seating-api/internal/middleware"
	"github.com/noah-isme/exam-seating-api/internal/models"
	appErrors "github.com/noah-isme/exam-seating-api/pkg/errors"
	"github.com/noah-isme/exam-seating-api/pkg/response"
)

type assignmentService interface {
	List(ctx context.Context, examID string, query dto.AssignmentListQuery) ([]models.AssignmentDetail, error)
	GetForStudent(ctx context.Context, examID, studentID string) (*models.AssignmentDetail, error)
	Stats(ctx context.Context, examID string) (*models.AssignmentStats, error)
	Override(ctx context.Context, examID, assignmentID, actorID string, req dto.OverrideAssignmentRequest) (*models.AssignmentDetail, error)
	Delete(ctx context.Context, examID, assignmentID string) error
}

// AssignmentHandler serves seating charts and manual overrides.
type AssignmentHandler struct {
	service assignmentService
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(service assignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: service}
}

// List godoc
// @Summary List seat assignments of an exam
// @Tags Assignments
// @Produce json
// @Param id path string true "Exam ID"
// @Param hallId query string false "Hall filter"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	var query dto.AssignmentListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	items, err := h.service.List(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"total": len(items)})
}

// GetForStudent godoc
// @Summary Seat of one student
// @Tags Assignments
// @Produce json
// @Param id path string true "Exam ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exams/{id}/assignments/students/{studentId} [get]
func (h *AssignmentHandler) GetForStudent(c *gin.Context) {
	detail, err := h.service.GetForStudent(c.Request.Context(), c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Stats godoc
// @Summary Assignment coverage of an exam
// @Tags Assignments
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/assignments/stats [get]
func (h *AssignmentHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Override godoc
// @Summary Move an assignment to another seat
// @Description Marks the assignment manual so preserve_manual runs keep it.
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param assignmentId path string true "Assignment ID"
// @Param X-Actor-ID header string true "Acting operator"
// @Param payload body dto.OverrideAssignmentRequest true "Target seat"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exams/{id}/assignments/{assignmentId} [patch]
func (h *AssignmentHandler) Override(c *gin.Context) {
	var req dto.OverrideAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid override payload"))
		return
	}
	detail, err := h.service.Override(c.Request.Context(), c.Param("id"), c.Param("assignmentId"), middleware.ActorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Delete godoc
// @Summary Remove one assignment
// @Tags Assignments
// @Param id path string true "Exam ID"
// @Param assignmentId path string true "Assignment ID"
// @Param X-Actor-ID header string true "Acting operator"
// @Success 204
// @Router /exams/{id}/assignments/{assignmentId} [delete]
func (h *AssignmentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), c.Param("assignmentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
