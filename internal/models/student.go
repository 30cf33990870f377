package models

// Student is a roster entry for one exam. Grouping keys are coalesced to
// empty values when the source row leaves them unset.
type Student struct {
	ID           string  `db:"id" json:"id"`
	RollNumber   string  `db:"roll_number" json:"roll_number"`
	Name         string  `db:"name" json:"name"`
	Email        *string `db:"email" json:"email,omitempty"`
	DepartmentID string  `db:"department_id" json:"department_id"`
	CourseID     string  `db:"course_id" json:"course_id"`
	Year         int     `db:"year" json:"year"`
}
