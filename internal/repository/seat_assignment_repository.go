package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-seating-api/internal/models"
)

const insertChunkSize = 500

const assignmentColumns = `id, exam_id, student_id, seat_id, hall_id, assigned_by, is_manual, assigned_at`

const assignmentDetailSelect = `SELECT sa.id, sa.exam_id, sa.student_id, sa.seat_id, sa.hall_id, sa.assigned_by, sa.is_manual, sa.assigned_at,
st.roll_number, st.name AS student_name, st.email AS student_email,
d.name AS department_name, d.code AS department_code,
c.name AS course_name, c.code AS course_code,
se.seat_number, se.row_number, se.col_number,
h.name AS hall_name
FROM seat_assignments sa
JOIN students st ON st.id = sa.student_id
LEFT JOIN departments d ON d.id = st.department_id
LEFT JOIN courses c ON c.id = st.course_id
JOIN seats se ON se.id = sa.seat_id
JOIN exam_halls h ON h.id = sa.hall_id`

// SeatAssignmentRepository persists seat assignments. Methods accepting an
// exec run inside the caller's transaction when one is provided.
type SeatAssignmentRepository struct {
	db *sqlx.DB
}

// NewSeatAssignmentRepository constructs the repository.
func NewSeatAssignmentRepository(db *sqlx.DB) *SeatAssignmentRepository {
	return &SeatAssignmentRepository{db: db}
}

func (r *SeatAssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CountByExam returns the number of assignments stored for the exam.
func (r *SeatAssignmentRepository) CountByExam(ctx context.Context, exec sqlx.ExtContext, examID string) (int, error) {
	const query = `SELECT COUNT(*) FROM seat_assignments WHERE exam_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, examID); err != nil {
		return 0, fmt.Errorf("count seat assignments: %w", err)
	}
	return count, nil
}

// LockExam takes a transaction scoped advisory lock keyed by the exam id.
// It blocks until concurrent writers for the same exam commit or roll back.
func (r *SeatAssignmentRepository) LockExam(ctx context.Context, exec sqlx.ExtContext, examID string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := r.exec(exec).ExecContext(ctx, query, examID); err != nil {
		return fmt.Errorf("lock exam %s: %w", examID, err)
	}
	return nil
}

// InsertBatch stores assignments in multi-row inserts.
func (r *SeatAssignmentRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, assignments []models.SeatAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `INSERT INTO seat_assignments (` + assignmentColumns + `)
VALUES (:id, :exam_id, :student_id, :seat_id, :hall_id, :assigned_by, :is_manual, :assigned_at)`

	for i := range assignments {
		a := &assignments[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.AssignedAt.IsZero() {
			a.AssignedAt = now
		}
	}
	for start := 0; start < len(assignments); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(assignments) {
			end = len(assignments)
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, assignments[start:end]); err != nil {
			return fmt.Errorf("insert seat assignments: %w", err)
		}
	}
	return nil
}

// DeleteByExam removes every assignment of the exam and returns the count.
func (r *SeatAssignmentRepository) DeleteByExam(ctx context.Context, exec sqlx.ExtContext, examID string) (int64, error) {
	const query = `DELETE FROM seat_assignments WHERE exam_id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, examID)
	if err != nil {
		return 0, fmt.Errorf("delete seat assignments: %w", err)
	}
	return res.RowsAffected()
}

// DeleteAutoByExam removes engine generated assignments, keeping manual ones.
func (r *SeatAssignmentRepository) DeleteAutoByExam(ctx context.Context, exec sqlx.ExtContext, examID string) (int64, error) {
	const query = `DELETE FROM seat_assignments WHERE exam_id = $1 AND is_manual = FALSE`
	res, err := r.exec(exec).ExecContext(ctx, query, examID)
	if err != nil {
		return 0, fmt.Errorf("delete auto seat assignments: %w", err)
	}
	return res.RowsAffected()
}

// ListManualByExam returns manual overrides of the exam.
func (r *SeatAssignmentRepository) ListManualByExam(ctx context.Context, exec sqlx.ExtContext, examID string) ([]models.SeatAssignment, error) {
	const query = `SELECT ` + assignmentColumns + `
FROM seat_assignments WHERE exam_id = $1 AND is_manual = TRUE`
	var assignments []models.SeatAssignment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &assignments, query, examID); err != nil {
		return nil, fmt.Errorf("list manual seat assignments: %w", err)
	}
	return assignments, nil
}

// ListDetailByExam returns joined assignment rows ordered by hall and seat
// label. An empty hallID returns all halls.
func (r *SeatAssignmentRepository) ListDetailByExam(ctx context.Context, examID, hallID string) ([]models.AssignmentDetail, error) {
	query := assignmentDetailSelect + `
WHERE sa.exam_id = $1 AND ($2 = '' OR sa.hall_id::text = $2)
ORDER BY h.name ASC, se.row_number ASC, se.col_number ASC`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, examID, hallID); err != nil {
		return nil, fmt.Errorf("list seat assignment details: %w", err)
	}
	return details, nil
}

// FindDetailByStudent returns the joined assignment of one student.
func (r *SeatAssignmentRepository) FindDetailByStudent(ctx context.Context, examID, studentID string) (*models.AssignmentDetail, error) {
	query := assignmentDetailSelect + `
WHERE sa.exam_id = $1 AND sa.student_id = $2`
	var detail models.AssignmentDetail
	if err := r.db.GetContext(ctx, &detail, query, examID, studentID); err != nil {
		return nil, fmt.Errorf("find student seat assignment: %w", err)
	}
	return &detail, nil
}

// FindByID returns one assignment scoped to its exam.
func (r *SeatAssignmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, examID, id string) (*models.SeatAssignment, error) {
	const query = `SELECT ` + assignmentColumns + `
FROM seat_assignments WHERE exam_id = $1 AND id = $2`
	var assignment models.SeatAssignment
	if err := sqlx.GetContext(ctx, r.exec(exec), &assignment, query, examID, id); err != nil {
		return nil, fmt.Errorf("find seat assignment: %w", err)
	}
	return &assignment, nil
}

// SeatTaken reports whether another assignment of the exam holds the seat.
func (r *SeatAssignmentRepository) SeatTaken(ctx context.Context, exec sqlx.ExtContext, examID, seatID, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM seat_assignments WHERE exam_id = $1 AND seat_id = $2 AND id <> $3)`
	var taken bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &taken, query, examID, seatID, excludeID); err != nil {
		return false, fmt.Errorf("check seat occupancy: %w", err)
	}
	return taken, nil
}

// MoveToSeat reassigns an assignment and marks it as a manual override.
func (r *SeatAssignmentRepository) MoveToSeat(ctx context.Context, exec sqlx.ExtContext, assignment *models.SeatAssignment) error {
	const query = `UPDATE seat_assignments
SET seat_id = :seat_id, hall_id = :hall_id, is_manual = TRUE, assigned_by = :assigned_by, assigned_at = :assigned_at
WHERE id = :id AND exam_id = :exam_id`
	assignment.IsManual = true
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now().UTC()
	}
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, assignment)
	if err != nil {
		return fmt.Errorf("move seat assignment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes one assignment of the exam.
func (r *SeatAssignmentRepository) Delete(ctx context.Context, examID, id string) error {
	const query = `DELETE FROM seat_assignments WHERE exam_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, examID, id)
	if err != nil {
		return fmt.Errorf("delete seat assignment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Stats aggregates assignment coverage for the exam.
func (r *SeatAssignmentRepository) Stats(ctx context.Context, examID string) (*models.AssignmentStats, error) {
	const query = `SELECT
(SELECT COUNT(*) FROM seat_assignments WHERE exam_id = $1) AS total_assignments,
(SELECT COUNT(*) FROM seat_assignments WHERE exam_id = $1 AND is_manual = TRUE) AS manual_assignments,
(SELECT COUNT(*) FROM exam_students WHERE exam_id = $1) AS total_students`
	var stats models.AssignmentStats
	if err := r.db.GetContext(ctx, &stats, query, examID); err != nil {
		return nil, fmt.Errorf("seat assignment stats: %w", err)
	}
	stats.AutoAssignments = stats.TotalAssignments - stats.ManualAssignments
	stats.Unassigned = stats.TotalStudents - stats.TotalAssignments
	if stats.Unassigned < 0 {
		stats.Unassigned = 0
	}
	return &stats, nil
}
