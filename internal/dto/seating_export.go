package dto

import (
	"time"

	"github.com/noah-isme/exam-seating-api/internal/models"
)

// SeatingExportRequest captures POST /exams/:id/seating/exports payload.
type SeatingExportRequest struct {
	HallID *string `json:"hall_id,omitempty" validate:"omitempty,min=1"`
}

// SeatingExportJobResponse is returned after enqueueing an export.
type SeatingExportJobResponse struct {
	ID     string              `json:"id"`
	ExamID string              `json:"exam_id"`
	Status models.ExportStatus `json:"status"`
}

// SeatingExportStatusResponse exposes export progress metadata.
type SeatingExportStatusResponse struct {
	ID         string              `json:"id"`
	ExamID     string              `json:"exam_id"`
	Status     models.ExportStatus `json:"status"`
	RowCount   int                 `json:"row_count"`
	ResultURL  *string             `json:"result_url,omitempty"`
	Error      *string             `json:"error,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}
