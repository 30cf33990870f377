package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-seating-api/internal/models"
)

var exportJobRowColumns = []string{"id", "exam_id", "hall_id", "status", "result_url", "row_count", "created_by", "created_at", "finished_at", "error_message"}

func TestSeatingExportRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSeatingExportRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO seating_export_jobs")).
		WithArgs(sqlmock.AnyArg(), "exam-1", nil, "QUEUED", nil, 0, "admin-1", sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.SeatingExportJob{ExamID: "exam-1", CreatedBy: "admin-1"}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NotEmpty(t, job.ID)

	rows := sqlmock.NewRows(exportJobRowColumns).
		AddRow(job.ID, "exam-1", nil, "QUEUED", nil, 0, "admin-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM seating_export_jobs WHERE id = $1")).
		WithArgs(job.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExportStatusQueued, fetched.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatingExportRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSeatingExportRepository(db)

	now := time.Now()
	status := models.ExportStatusFinished
	url := "/api/v1/seating/exports/download?token=abc"
	count := 12
	mock.ExpectExec(regexp.QuoteMeta("UPDATE seating_export_jobs SET status = $1, result_url = $2, row_count = $3, finished_at = $4 WHERE id = $5")).
		WithArgs(status, url, count, now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateExportJobParams{
		Status:     &status,
		ResultURL:  &url,
		RowCount:   &count,
		FinishedAt: &now,
	}))
	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateExportJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatingExportRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSeatingExportRepository(db)

	rows := sqlmock.NewRows(exportJobRowColumns).
		AddRow("job-1", "exam-1", "hall-1", "QUEUED", nil, 0, "admin-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(rows)

	jobs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "hall-1", *jobs[0].HallID)
	require.NoError(t, mock.ExpectationsWereMet())
}
