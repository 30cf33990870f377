package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-seating-api/internal/models"
)

// RosterRepository reads the students registered for an exam.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs the repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// ListByExam returns the exam roster ordered by roll number.
func (r *RosterRepository) ListByExam(ctx context.Context, examID string) ([]models.Student, error) {
	const query = `SELECT s.id, s.roll_number, s.name, s.email,
COALESCE(s.department_id::text, '') AS department_id,
COALESCE(s.course_id::text, '') AS course_id,
COALESCE(s.year, 0) AS year
FROM exam_students es
JOIN students s ON s.id = es.student_id
WHERE es.exam_id = $1
ORDER BY s.roll_number ASC, s.id ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, examID); err != nil {
		return nil, fmt.Errorf("list exam roster: %w", err)
	}
	return students, nil
}
