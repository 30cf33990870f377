package dto

import "github.com/noah-isme/exam-seating-api/internal/models"

// AllocateRequest captures POST /exams/:id/allocate payload.
type AllocateRequest struct {
	Pattern        models.AllocationPattern `json:"pattern" validate:"required,oneof=department course year random"`
	ClearExisting  bool                     `json:"clear_existing"`
	PreserveManual bool                     `json:"preserve_manual"`
}

// AllocationSummary reports the outcome of an allocation run.
type AllocationSummary struct {
	ExamID          string                   `json:"exam_id"`
	TotalStudents   int                      `json:"total_students"`
	TotalSeats      int                      `json:"total_seats"`
	Assigned        int                      `json:"assigned"`
	Pattern         models.AllocationPattern `json:"pattern"`
	Cleared         int                      `json:"cleared"`
	PreservedManual int                      `json:"preserved_manual"`
}

// PlacementView is one proposed placement returned by a preview.
type PlacementView struct {
	StudentID  string `json:"student_id"`
	RollNumber string `json:"roll_number"`
	SeatID     string `json:"seat_id"`
	SeatNumber string `json:"seat_number"`
	HallID     string `json:"hall_id"`
	HallName   string `json:"hall_name"`
	Cohort     string `json:"cohort"`
}

// AllocationPreview is a dry run of the engine without persistence.
type AllocationPreview struct {
	Summary    AllocationSummary `json:"summary"`
	Placements []PlacementView   `json:"placements"`
}

// ClearAllocationResponse reports how many assignments were removed.
type ClearAllocationResponse struct {
	ExamID  string `json:"exam_id"`
	Removed int    `json:"removed"`
}
