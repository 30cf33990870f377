package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-seating-api/internal/dto"
	"github.com/noah-isme/exam-seating-api/internal/models"
	appErrors "github.com/noah-isme/exam-seating-api/pkg/errors"
)

type assignmentReader interface {
	LockExam(ctx context.Context, exec sqlx.ExtContext, examID string) error
	ListDetailByExam(ctx context.Context, examID, hallID string) ([]models.AssignmentDetail, error)
	FindDetailByStudent(ctx context.Context, examID, studentID string) (*models.AssignmentDetail, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, examID, id string) (*models.SeatAssignment, error)
	SeatTaken(ctx context.Context, exec sqlx.ExtContext, examID, seatID, excludeID string) (bool, error)
	MoveToSeat(ctx context.Context, exec sqlx.ExtContext, assignment *models.SeatAssignment) error
	Delete(ctx context.Context, examID, id string) error
	Stats(ctx context.Context, examID string) (*models.AssignmentStats, error)
}

type examSeatLookup interface {
	FindSeatForExam(ctx context.Context, examID, seatID string) (*models.Seat, error)
}

type seatingCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidateExam(ctx context.Context, examID string)
}

// SeatAssignmentService serves seating views and manual overrides.
type SeatAssignmentService struct {
	repo      assignmentReader
	seats     examSeatLookup
	tx        txProvider
	cache     seatingCache
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewSeatAssignmentService constructs the service.
func NewSeatAssignmentService(repo assignmentReader, seats examSeatLookup, tx txProvider, cache seatingCache, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *SeatAssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeatAssignmentService{repo: repo, seats: seats, tx: tx, cache: cache, validator: validate, logger: logger, cacheTTL: cacheTTL}
}

// List returns the exam seating chart, optionally narrowed to one hall.
func (s *SeatAssignmentService) List(ctx context.Context, examID string, query dto.AssignmentListQuery) ([]models.AssignmentDetail, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid hallId")
	}
	view := "assignments:all"
	if query.HallID != "" {
		view = "assignments:hall:" + query.HallID
	}
	key := SeatingCacheKey(examID, view)

	var cached []models.AssignmentDetail
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	details, err := s.repo.ListDetailByExam(ctx, examID, query.HallID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list seat assignments")
	}
	if details == nil {
		details = []models.AssignmentDetail{}
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, details, s.cacheTTL)
	}
	return details, nil
}

// GetForStudent returns the seat of one student.
func (s *SeatAssignmentService) GetForStudent(ctx context.Context, examID, studentID string) (*models.AssignmentDetail, error) {
	detail, err := s.repo.FindDetailByStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no seat assignment for this exam")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load seat assignment")
	}
	return detail, nil
}

// Stats reports assignment coverage for the exam.
func (s *SeatAssignmentService) Stats(ctx context.Context, examID string) (*models.AssignmentStats, error) {
	key := SeatingCacheKey(examID, "stats")
	var cached models.AssignmentStats
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}
	stats, err := s.repo.Stats(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment stats")
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, stats, s.cacheTTL)
	}
	return stats, nil
}

// Override moves an assignment to another usable seat of the exam and marks
// it manual so later preserve-manual runs keep it.
func (s *SeatAssignmentService) Override(ctx context.Context, examID, assignmentID, actorID string, req dto.OverrideAssignmentRequest) (*models.AssignmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "seat_id is required")
	}
	if actorID == "" {
		return nil, appErrors.ErrUnauthorized
	}

	seat, err := s.seats.FindSeatForExam(ctx, examID, req.SeatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "seat does not belong to a hall assigned to this exam")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load seat")
	}
	if !seat.IsUsable {
		return nil, appErrors.Clone(appErrors.ErrValidation, "seat is marked unusable")
	}

	studentID, err := s.move(ctx, examID, assignmentID, actorID, seat)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.InvalidateExam(ctx, examID)
	}
	s.logger.Info("seat assignment overridden",
		zap.String("exam_id", examID),
		zap.String("assignment_id", assignmentID),
		zap.String("seat_id", seat.ID),
		zap.String("actor_id", actorID),
	)
	return s.GetForStudent(ctx, examID, studentID)
}

func (s *SeatAssignmentService) move(ctx context.Context, examID, assignmentID, actorID string, seat *models.Seat) (studentID string, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return "", appErrors.WrapAs(appErrors.ErrPersistence, err, "")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.LockExam(ctx, tx, examID); err != nil {
		return "", appErrors.WrapAs(appErrors.ErrPersistence, err, "")
	}
	assignment, err := s.repo.FindByID(ctx, tx, examID, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "seat assignment not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load seat assignment")
	}
	taken, err := s.repo.SeatTaken(ctx, tx, examID, seat.ID, assignment.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check seat occupancy")
	}
	if taken {
		return "", appErrors.Clone(appErrors.ErrConflict, "seat is already assigned to another student")
	}

	assignment.SeatID = seat.ID
	assignment.HallID = seat.HallID
	assignment.AssignedBy = actorID
	assignment.AssignedAt = time.Now().UTC()
	if err = s.repo.MoveToSeat(ctx, tx, assignment); err != nil {
		return "", persistenceError(err)
	}
	if err = tx.Commit(); err != nil {
		return "", persistenceError(err)
	}
	return assignment.StudentID, nil
}

// Delete removes one assignment from the exam.
func (s *SeatAssignmentService) Delete(ctx context.Context, examID, assignmentID string) error {
	if err := s.repo.Delete(ctx, examID, assignmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "seat assignment not found")
		}
		return appErrors.WrapAs(appErrors.ErrPersistence, err, "")
	}
	if s.cache != nil {
		s.cache.InvalidateExam(ctx, examID)
	}
	return nil
}
