package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-seating-api/internal/dto"
	"github.com/noah-isme/exam-seating-api/internal/models"
	"github.com/noah-isme/exam-seating-api/internal/repository"
	appErrors "github.com/noah-isme/exam-seating-api/pkg/errors"
	"github.com/noah-isme/exam-seating-api/pkg/export"
	"github.com/noah-isme/exam-seating-api/pkg/jobs"
)

// SeatingExportJobType tags queue jobs handled by SeatingExportService.
const SeatingExportJobType = "seating_chart"

type exportJobStore interface {
	Create(ctx context.Context, job *models.SeatingExportJob) error
	GetByID(ctx context.Context, id string) (*models.SeatingExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.SeatingExportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type chartSource interface {
	ListDetailByExam(ctx context.Context, examID, hallID string) ([]models.AssignmentDetail, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type chartRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

type tokenSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error)
}

var seatingChartColumns = []export.Column{
	{Key: "hall", Label: "Hall"},
	{Key: "seat", Label: "Seat"},
	{Key: "row", Label: "Row"},
	{Key: "column", Label: "Column"},
	{Key: "roll_number", Label: "Roll Number"},
	{Key: "student", Label: "Student"},
	{Key: "department", Label: "Department"},
	{Key: "course", Label: "Course"},
	{Key: "manual", Label: "Manual"},
}

// SeatingExportConfig tunes download URLs.
type SeatingExportConfig struct {
	APIPrefix string
}

// SeatingDownload is an opened export ready to stream.
type SeatingDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// SeatingExportService renders seating charts in the background and hands
// out signed download links.
type SeatingExportService struct {
	repo      exportJobStore
	source    chartSource
	queue     jobDispatcher
	storage   fileStorage
	renderer  chartRenderer
	signer    tokenSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SeatingExportConfig
}

// NewSeatingExportService constructs the service.
func NewSeatingExportService(repo exportJobStore, source chartSource, queue jobDispatcher, storage fileStorage, renderer chartRenderer, signer tokenSigner, validate *validator.Validate, logger *zap.Logger, cfg SeatingExportConfig) *SeatingExportService {
	if renderer == nil {
		renderer = export.NewCSVExporter()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &SeatingExportService{
		repo:      repo,
		source:    source,
		queue:     queue,
		storage:   storage,
		renderer:  renderer,
		signer:    signer,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// SetQueue attaches the dispatcher once the worker queue exists.
func (s *SeatingExportService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob persists and enqueues a seating chart export.
func (s *SeatingExportService) CreateJob(ctx context.Context, examID, actorID string, req dto.SeatingExportRequest) (*dto.SeatingExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid hall_id")
	}
	if actorID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	job := &models.SeatingExportJob{
		ExamID:    examID,
		HallID:    req.HallID,
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: SeatingExportJobType}); err != nil {
		s.markFailed(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return &dto.SeatingExportJobResponse{ID: job.ID, ExamID: job.ExamID, Status: job.Status}, nil
}

// GetStatus exposes job metadata to clients.
func (s *SeatingExportService) GetStatus(ctx context.Context, id string) (*dto.SeatingExportStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.SeatingExportStatusResponse{
		ID:         job.ID,
		ExamID:     job.ExamID,
		Status:     job.Status,
		RowCount:   job.RowCount,
		ResultURL:  job.ResultURL,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates a token and opens the stored file.
func (s *SeatingExportService) ResolveDownload(ctx context.Context, token string) (*SeatingDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, url.QueryEscape(token)) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &SeatingDownload{
		File:        file,
		Filename:    path.Base(relPath),
		ContentType: s.renderer.ContentType(),
		ExpiresAt:   expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a restart.
func (s *SeatingExportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: SeatingExportJobType}); err != nil {
			s.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// PurgeExpired removes stored charts older than ttl.
func (s *SeatingExportService) PurgeExpired(ttl time.Duration) ([]string, error) {
	removed, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		s.logger.Info("expired seating charts removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}

// Handle renders one export. Returned errors are retried by the queue.
func (s *SeatingExportService) Handle(ctx context.Context, job jobs.Job) error {
	record, err := s.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		return err
	}

	hallID := ""
	if record.HallID != nil {
		hallID = *record.HallID
	}
	details, err := s.source.ListDetailByExam(ctx, record.ExamID, hallID)
	if err != nil {
		return fmt.Errorf("load seating chart: %w", err)
	}
	payload, err := s.renderer.Render(seatingChartDataset(details))
	if err != nil {
		return fmt.Errorf("render seating chart: %w", err)
	}
	name := fmt.Sprintf("seating/%s/%s.%s", record.ExamID, record.ID, s.renderer.Extension())
	relPath, err := s.storage.Save(name, payload)
	if err != nil {
		return fmt.Errorf("store seating chart: %w", err)
	}
	token, _, err := s.signer.Generate(record.ID, relPath)
	if err != nil {
		return fmt.Errorf("sign download: %w", err)
	}

	finished := models.ExportStatusFinished
	resultURL := fmt.Sprintf("%s/seating/exports/download?token=%s", strings.TrimRight(s.cfg.APIPrefix, "/"), url.QueryEscape(token))
	rows := len(details)
	now := time.Now().UTC()
	clear := ""
	if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		ResultURL:    &resultURL,
		RowCount:     &rows,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		return err
	}
	s.logger.Info("seating chart exported", zap.String("job_id", job.ID), zap.String("exam_id", record.ExamID), zap.Int("rows", rows))
	return nil
}

// HandleFailure marks a job failed once the queue gives up on it.
func (s *SeatingExportService) HandleFailure(job jobs.Job, err error) {
	s.markFailed(context.Background(), job.ID, err.Error())
}

func (s *SeatingExportService) markFailed(ctx context.Context, id, msg string) {
	failed := models.ExportStatusFailed
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateExportJobParams{
		Status:       &failed,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", id), zap.Error(err))
	}
}

func (s *SeatingExportService) load(ctx context.Context, id string) (*models.SeatingExportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

func seatingChartDataset(details []models.AssignmentDetail) export.Dataset {
	rows := make([]map[string]string, 0, len(details))
	for _, d := range details {
		rows = append(rows, map[string]string{
			"hall":        d.HallName,
			"seat":        d.SeatNumber,
			"row":         strconv.Itoa(d.RowNumber),
			"column":      strconv.Itoa(d.ColNumber),
			"roll_number": d.RollNumber,
			"student":     d.StudentName,
			"department":  deref(d.DepartmentCode),
			"course":      deref(d.CourseCode),
			"manual":      strconv.FormatBool(d.IsManual),
		})
	}
	return export.Dataset{Columns: seatingChartColumns, Rows: rows}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
