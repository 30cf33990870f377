package models

import (
	"fmt"
	"time"
)

// AllocationPattern selects the student attribute used to form cohorts.
type AllocationPattern string

const (
	AllocationPatternDepartment AllocationPattern = "department"
	AllocationPatternCourse     AllocationPattern = "course"
	AllocationPatternYear       AllocationPattern = "year"
	AllocationPatternRandom     AllocationPattern = "random"
)

// Valid reports whether the pattern is one the engine understands.
func (p AllocationPattern) Valid() bool {
	switch p {
	case AllocationPatternDepartment, AllocationPatternCourse, AllocationPatternYear, AllocationPatternRandom:
		return true
	default:
		return false
	}
}

// SeatAssignment binds one student to one seat for one exam.
type SeatAssignment struct {
	ID         string    `db:"id" json:"id"`
	ExamID     string    `db:"exam_id" json:"exam_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	SeatID     string    `db:"seat_id" json:"seat_id"`
	HallID     string    `db:"hall_id" json:"hall_id"`
	AssignedBy string    `db:"assigned_by" json:"assigned_by"`
	IsManual   bool      `db:"is_manual" json:"is_manual"`
	AssignedAt time.Time `db:"assigned_at" json:"assigned_at"`
}

// AssignmentDetail is a seat assignment joined with student, seat and hall data.
type AssignmentDetail struct {
	SeatAssignment
	RollNumber     string  `db:"roll_number" json:"roll_number"`
	StudentName    string  `db:"student_name" json:"student_name"`
	StudentEmail   *string `db:"student_email" json:"student_email,omitempty"`
	DepartmentName *string `db:"department_name" json:"department_name,omitempty"`
	DepartmentCode *string `db:"department_code" json:"department_code,omitempty"`
	CourseName     *string `db:"course_name" json:"course_name,omitempty"`
	CourseCode     *string `db:"course_code" json:"course_code,omitempty"`
	SeatNumber     string  `db:"seat_number" json:"seat_number"`
	RowNumber      int     `db:"row_number" json:"row_number"`
	ColNumber      int     `db:"col_number" json:"col_number"`
	HallName       string  `db:"hall_name" json:"hall_name"`
}

// AssignmentStats summarises assignment coverage for an exam.
type AssignmentStats struct {
	TotalAssignments  int `db:"total_assignments" json:"total_assignments"`
	ManualAssignments int `db:"manual_assignments" json:"manual_assignments"`
	AutoAssignments   int `db:"auto_assignments" json:"auto_assignments"`
	TotalStudents     int `db:"total_students" json:"total_students"`
	Unassigned        int `db:"unassigned" json:"unassigned"`
}

// InsufficientCapacityError reports that usable seats cannot hold the roster.
type InsufficientCapacityError struct {
	StudentsNeeded int `json:"students_needed"`
	SeatsAvailable int `json:"seats_available"`
}

// Shortfall is the number of missing seats.
func (e *InsufficientCapacityError) Shortfall() int {
	if e == nil {
		return 0
	}
	return e.StudentsNeeded - e.SeatsAvailable
}

// Error implements the error interface.
func (e *InsufficientCapacityError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("insufficient seating capacity: %d students need seats but only %d are available", e.StudentsNeeded, e.SeatsAvailable)
}

// AlreadyAllocatedError is returned when an exam already holds assignments
// and the caller did not confirm clearing them.
type AlreadyAllocatedError struct {
	Existing int `json:"existing_assignments"`
}

// Error implements the error interface.
func (e *AlreadyAllocatedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("exam already has %d seat assignments", e.Existing)
}
