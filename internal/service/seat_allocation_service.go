package service

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-seating-api/internal/dto"
	"github.com/noah-isme/exam-seating-api/internal/models"
	"github.com/noah-isme/exam-seating-api/pkg/database"
	appErrors "github.com/noah-isme/exam-seating-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type assignmentStore interface {
	CountByExam(ctx context.Context, exec sqlx.ExtContext, examID string) (int, error)
	LockExam(ctx context.Context, exec sqlx.ExtContext, examID string) error
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, assignments []models.SeatAssignment) error
	DeleteByExam(ctx context.Context, exec sqlx.ExtContext, examID string) (int64, error)
	DeleteAutoByExam(ctx context.Context, exec sqlx.ExtContext, examID string) (int64, error)
	ListManualByExam(ctx context.Context, exec sqlx.ExtContext, examID string) ([]models.SeatAssignment, error)
}

type allocationLocker interface {
	Acquire(ctx context.Context, examID string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, examID, token string) error
}

type seatingInvalidator interface {
	InvalidateExam(ctx context.Context, examID string)
}

type allocationRecorder interface {
	ObserveAllocation(pattern, outcome string, duration time.Duration, assigned int)
}

// SeatAllocationConfig tunes the allocation engine.
type SeatAllocationConfig struct {
	DefaultSeatsPerDesk int
	LockTTL             time.Duration
	// RandomSeed makes every run reproducible when non-zero.
	RandomSeed int64
}

// SeatAllocationService maps an exam roster onto the usable seats of its
// halls and persists the result as one batch.
type SeatAllocationService struct {
	input     *inputAssembler
	store     assignmentStore
	tx        txProvider
	locker    allocationLocker
	cache     seatingInvalidator
	metrics   allocationRecorder
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SeatAllocationConfig
	newRand   func() *rand.Rand
}

// NewSeatAllocationService wires the allocation engine.
func NewSeatAllocationService(
	roster rosterReader,
	halls hallReader,
	store assignmentStore,
	tx txProvider,
	locker allocationLocker,
	cache seatingInvalidator,
	metrics allocationRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg SeatAllocationConfig,
) *SeatAllocationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultSeatsPerDesk <= 0 {
		cfg.DefaultSeatsPerDesk = 2
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	seed := cfg.RandomSeed
	newRand := func() *rand.Rand {
		if seed != 0 {
			return rand.New(rand.NewSource(seed))
		}
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SeatAllocationService{
		input:     &inputAssembler{roster: roster, halls: halls, defaultSeatsPerDesk: cfg.DefaultSeatsPerDesk},
		store:     store,
		tx:        tx,
		locker:    locker,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		newRand:   newRand,
	}
}

// Allocate runs the engine for the exam and replaces its engine generated
// assignments. Existing assignments are only removed when ClearExisting is set.
func (s *SeatAllocationService) Allocate(ctx context.Context, examID, actorID string, req dto.AllocateRequest) (*dto.AllocationSummary, error) {
	start := time.Now()
	summary, err := s.allocate(ctx, examID, actorID, req)

	assigned := 0
	if summary != nil {
		assigned = summary.Assigned
	}
	outcome := "success"
	if err != nil {
		outcome = strings.ToLower(appErrors.FromError(err).Code)
	}
	if s.metrics != nil {
		s.metrics.ObserveAllocation(string(req.Pattern), outcome, time.Since(start), assigned)
	}

	fields := []zap.Field{
		zap.String("exam_id", examID),
		zap.String("pattern", string(req.Pattern)),
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		s.logger.Warn("seat allocation rejected", append(fields, zap.Error(err))...)
		return nil, err
	}
	s.logger.Info("seat allocation completed", append(fields,
		zap.Int("assigned", summary.Assigned),
		zap.Int("cleared", summary.Cleared),
		zap.Int("preserved_manual", summary.PreservedManual),
	)...)
	return summary, nil
}

func (s *SeatAllocationService) allocate(ctx context.Context, examID, actorID string, req dto.AllocateRequest) (*dto.AllocationSummary, error) {
	if err := s.validateRequest(examID, req); err != nil {
		return nil, err
	}
	if actorID == "" {
		return nil, appErrors.ErrUnauthorized
	}

	release, err := s.acquire(ctx, examID)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.store.CountByExam(ctx, nil, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing assignments")
	}
	if existing > 0 && !req.ClearExisting {
		return nil, alreadyAllocated(existing)
	}

	var manual []models.SeatAssignment
	if existing > 0 && req.PreserveManual {
		if manual, err = s.store.ListManualByExam(ctx, nil, examID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load manual assignments")
		}
	}

	input, placements, err := s.plan(ctx, examID, req.Pattern, manual)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rows := make([]models.SeatAssignment, len(placements))
	for i, p := range placements {
		rows[i] = models.SeatAssignment{
			ExamID:     examID,
			StudentID:  p.student.ID,
			SeatID:     p.seat.ID,
			HallID:     p.hall.ID,
			AssignedBy: actorID,
			IsManual:   false,
			AssignedAt: now,
		}
	}

	cleared, err := s.replace(ctx, examID, existing, req, manual, rows)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.InvalidateExam(ctx, examID)
	}

	return &dto.AllocationSummary{
		ExamID:          examID,
		TotalStudents:   input.rosterSize,
		TotalSeats:      input.seatsInHalls,
		Assigned:        len(rows),
		Pattern:         req.Pattern,
		Cleared:         int(cleared),
		PreservedManual: len(manual),
	}, nil
}

// Preview runs assembly, grouping and placement without writing anything.
func (s *SeatAllocationService) Preview(ctx context.Context, examID string, req dto.AllocateRequest) (*dto.AllocationPreview, error) {
	if err := s.validateRequest(examID, req); err != nil {
		return nil, err
	}
	var manual []models.SeatAssignment
	if req.PreserveManual {
		var err error
		if manual, err = s.store.ListManualByExam(ctx, nil, examID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load manual assignments")
		}
	}
	input, placements, err := s.plan(ctx, examID, req.Pattern, manual)
	if err != nil {
		return nil, err
	}

	views := make([]dto.PlacementView, len(placements))
	for i, p := range placements {
		views[i] = dto.PlacementView{
			StudentID:  p.student.ID,
			RollNumber: p.student.RollNumber,
			SeatID:     p.seat.ID,
			SeatNumber: p.seat.SeatNumber,
			HallID:     p.hall.ID,
			HallName:   p.hall.Name,
			Cohort:     p.cohort,
		}
	}
	return &dto.AllocationPreview{
		Summary: dto.AllocationSummary{
			ExamID:          examID,
			TotalStudents:   input.rosterSize,
			TotalSeats:      input.seatsInHalls,
			Assigned:        len(placements),
			Pattern:         req.Pattern,
			PreservedManual: len(manual),
		},
		Placements: views,
	}, nil
}

// Clear removes every assignment of the exam. Clearing an exam without
// assignments succeeds.
func (s *SeatAllocationService) Clear(ctx context.Context, examID string) (*dto.ClearAllocationResponse, error) {
	if strings.TrimSpace(examID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam id is required")
	}
	release, err := s.acquire(ctx, examID)
	if err != nil {
		return nil, err
	}
	defer release()

	removed, err := s.clear(ctx, examID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.InvalidateExam(ctx, examID)
	}
	s.logger.Info("seat assignments cleared", zap.String("exam_id", examID), zap.Int64("removed", removed))
	return &dto.ClearAllocationResponse{ExamID: examID, Removed: int(removed)}, nil
}

func (s *SeatAllocationService) clear(ctx context.Context, examID string) (removed int64, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrPersistence, err, "")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.store.LockExam(ctx, tx, examID); err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrPersistence, err, "")
	}
	if removed, err = s.store.DeleteByExam(ctx, tx, examID); err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrPersistence, err, "")
	}
	if err = tx.Commit(); err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrPersistence, err, "")
	}
	return removed, nil
}

// plan assembles the input and computes placements. It is read-only.
func (s *SeatAllocationService) plan(ctx context.Context, examID string, pattern models.AllocationPattern, manual []models.SeatAssignment) (*allocationInput, []placement, error) {
	excl := assembleExclusions{
		students: make(map[string]struct{}, len(manual)),
		seats:    make(map[string]struct{}, len(manual)),
	}
	for _, m := range manual {
		excl.students[m.StudentID] = struct{}{}
		excl.seats[m.SeatID] = struct{}{}
	}

	input, err := s.input.assemble(ctx, examID, excl)
	if err != nil {
		return nil, nil, err
	}

	rng := s.newRand()
	cohorts := groupStudents(input.students, pattern)
	desks := buildDesks(input.halls, s.cfg.DefaultSeatsPerDesk)
	placements := placeStudents(cohorts, desks, rng)
	if len(placements) != len(input.students) {
		err := fmt.Errorf("placed %d of %d students", len(placements), len(input.students))
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "seat placement incomplete")
	}
	s.logger.Debug("seat placement computed",
		zap.String("exam_id", examID),
		zap.String("pattern", string(pattern)),
		zap.Int("cohorts", len(cohorts)),
		zap.Int("desks", len(desks)),
		zap.Int("students", len(input.students)),
	)
	return input, placements, nil
}

// replace swaps the stored batch under the exam advisory lock. The count and,
// when manual rows are kept, the manual set are re-read under the lock so a
// writer that raced us surfaces as a conflict.
func (s *SeatAllocationService) replace(ctx context.Context, examID string, existing int, req dto.AllocateRequest, manual []models.SeatAssignment, rows []models.SeatAssignment) (cleared int64, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrPersistence, err, "")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.store.LockExam(ctx, tx, examID); err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrPersistence, err, "")
	}
	current, err := s.store.CountByExam(ctx, tx, examID)
	if err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrPersistence, err, "")
	}
	if current != existing {
		if current > 0 && !req.ClearExisting {
			return 0, alreadyAllocated(current)
		}
		return 0, appErrors.Clone(appErrors.ErrConflict, "seat assignments changed during allocation; retry the request")
	}
	if req.ClearExisting && req.PreserveManual && current > 0 {
		locked, listErr := s.store.ListManualByExam(ctx, tx, examID)
		if listErr != nil {
			err = appErrors.WrapAs(appErrors.ErrPersistence, listErr, "")
			return 0, err
		}
		if !sameManualSet(manual, locked) {
			err = appErrors.Clone(appErrors.ErrConflict, "manual assignments changed during allocation; retry the request")
			return 0, err
		}
	}

	if req.ClearExisting && current > 0 {
		if req.PreserveManual {
			cleared, err = s.store.DeleteAutoByExam(ctx, tx, examID)
		} else {
			cleared, err = s.store.DeleteByExam(ctx, tx, examID)
		}
		if err != nil {
			return 0, appErrors.WrapAs(appErrors.ErrPersistence, err, "")
		}
	}

	if err = s.store.InsertBatch(ctx, tx, rows); err != nil {
		return 0, persistenceError(err)
	}
	if err = tx.Commit(); err != nil {
		return 0, persistenceError(err)
	}
	return cleared, nil
}

func (s *SeatAllocationService) acquire(ctx context.Context, examID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	token, ok, err := s.locker.Acquire(ctx, examID, s.cfg.LockTTL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire allocation lock")
	}
	if !ok {
		return nil, appErrors.ErrAllocationInProgress
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), examID, token); err != nil {
			s.logger.Warn("failed to release allocation lock", zap.String("exam_id", examID), zap.Error(err))
		}
	}, nil
}

func (s *SeatAllocationService) validateRequest(examID string, req dto.AllocateRequest) error {
	if strings.TrimSpace(examID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "exam id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "pattern must be one of department, course, year, random")
	}
	return nil
}

func alreadyAllocated(existing int) error {
	return appErrors.WrapAs(appErrors.ErrAlreadyAllocated, &models.AlreadyAllocatedError{Existing: existing}, "")
}

// sameManualSet compares manual rows by id, student and seat.
func sameManualSet(planned, locked []models.SeatAssignment) bool {
	if len(planned) != len(locked) {
		return false
	}
	seen := make(map[string]models.SeatAssignment, len(planned))
	for _, row := range planned {
		seen[row.ID] = row
	}
	for _, row := range locked {
		prev, ok := seen[row.ID]
		if !ok || prev.StudentID != row.StudentID || prev.SeatID != row.SeatID {
			return false
		}
	}
	return true
}

func persistenceError(err error) error {
	if database.IsUniqueViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "seat assignments changed during allocation; retry the request")
	}
	return appErrors.WrapAs(appErrors.ErrPersistence, err, "")
}
