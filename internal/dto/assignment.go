package dto

// AssignmentListQuery filters GET /exams/:id/assignments.
type AssignmentListQuery struct {
	HallID string `form:"hallId" validate:"omitempty,max=64"`
}

// OverrideAssignmentRequest moves one assignment to another seat.
type OverrideAssignmentRequest struct {
	SeatID string `json:"seat_id" validate:"required"`
}
