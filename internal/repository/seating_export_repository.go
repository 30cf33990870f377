package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-seating-api/internal/models"
)

const exportJobColumns = `id, exam_id, hall_id, status, result_url, row_count, created_by, created_at, finished_at, error_message`

// SeatingExportRepository persists seating chart export job metadata.
type SeatingExportRepository struct {
	db *sqlx.DB
}

// NewSeatingExportRepository constructs the repository.
func NewSeatingExportRepository(db *sqlx.DB) *SeatingExportRepository {
	return &SeatingExportRepository{db: db}
}

// Create inserts a new export job with generated defaults.
func (r *SeatingExportRepository) Create(ctx context.Context, job *models.SeatingExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO seating_export_jobs (` + exportJobColumns + `)
VALUES (:id, :exam_id, :hall_id, :status, :result_url, :row_count, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create seating export job: %w", err)
	}
	return nil
}

// GetByID returns a job by its identifier.
func (r *SeatingExportRepository) GetByID(ctx context.Context, id string) (*models.SeatingExportJob, error) {
	const query = `SELECT ` + exportJobColumns + ` FROM seating_export_jobs WHERE id = $1`
	var job models.SeatingExportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get seating export job: %w", err)
	}
	return &job, nil
}

// UpdateExportJobParams defines the mutable fields of an export job.
type UpdateExportJobParams struct {
	Status       *models.ExportStatus
	ResultURL    *string
	RowCount     *int
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a job row.
func (r *SeatingExportRepository) Update(ctx context.Context, id string, params UpdateExportJobParams) error {
	set := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.ResultURL != nil {
		add("result_url", *params.ResultURL)
	}
	if params.RowCount != nil {
		add("row_count", *params.RowCount)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE seating_export_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update seating export job: %w", err)
	}
	return nil
}

// ListQueued fetches queued jobs for replay after a restart.
func (r *SeatingExportRepository) ListQueued(ctx context.Context, limit int) ([]models.SeatingExportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT ` + exportJobColumns + ` FROM seating_export_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var jobs []models.SeatingExportJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued seating export jobs: %w", err)
	}
	return jobs, nil
}
