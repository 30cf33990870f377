package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/exam-seating-api/internal/models"
)

// ExamHallRepository reads halls assigned to an exam and their seats.
type ExamHallRepository struct {
	db *sqlx.DB
}

// NewExamHallRepository constructs the repository.
func NewExamHallRepository(db *sqlx.DB) *ExamHallRepository {
	return &ExamHallRepository{db: db}
}

// ListHallsByExam returns halls assigned to the exam. seats_per_desk is read
// from the hall layout config and is 0 when unset.
func (r *ExamHallRepository) ListHallsByExam(ctx context.Context, examID string) ([]models.Hall, error) {
	const query = `SELECT h.id, h.name, h.rows, h.columns, h.total_seats,
COALESCE(NULLIF(h.layout_config->>'seats_per_desk', '')::int, 0) AS seats_per_desk
FROM exam_halls_assignments eha
JOIN exam_halls h ON h.id = eha.hall_id
WHERE eha.exam_id = $1
ORDER BY h.name ASC, h.id ASC`
	var halls []models.Hall
	if err := r.db.SelectContext(ctx, &halls, query, examID); err != nil {
		return nil, fmt.Errorf("list exam halls: %w", err)
	}
	return halls, nil
}

// ListUsableSeats returns usable seats of the given halls ordered by row and column.
func (r *ExamHallRepository) ListUsableSeats(ctx context.Context, hallIDs []string) ([]models.Seat, error) {
	if len(hallIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, hall_id, seat_number, row_number, col_number, is_usable
FROM seats
WHERE hall_id = ANY($1) AND is_usable = TRUE
ORDER BY hall_id ASC, row_number ASC, col_number ASC`
	var seats []models.Seat
	if err := r.db.SelectContext(ctx, &seats, query, pq.Array(hallIDs)); err != nil {
		return nil, fmt.Errorf("list usable seats: %w", err)
	}
	return seats, nil
}

// FindSeatForExam returns a seat only when its hall is assigned to the exam.
func (r *ExamHallRepository) FindSeatForExam(ctx context.Context, examID, seatID string) (*models.Seat, error) {
	const query = `SELECT s.id, s.hall_id, s.seat_number, s.row_number, s.col_number, s.is_usable
FROM seats s
JOIN exam_halls_assignments eha ON eha.hall_id = s.hall_id AND eha.exam_id = $1
WHERE s.id = $2`
	var seat models.Seat
	if err := r.db.GetContext(ctx, &seat, query, examID, seatID); err != nil {
		return nil, fmt.Errorf("find exam seat: %w", err)
	}
	return &seat, nil
}
