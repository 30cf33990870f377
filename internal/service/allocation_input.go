package service

import (
	"context"

	"github.com/noah-isme/exam-seating-api/internal/models"
	appErrors "github.com/noah-isme/exam-seating-api/pkg/errors"
)

type rosterReader interface {
	ListByExam(ctx context.Context, examID string) ([]models.Student, error)
}

type hallReader interface {
	ListHallsByExam(ctx context.Context, examID string) ([]models.Hall, error)
	ListUsableSeats(ctx context.Context, hallIDs []string) ([]models.Seat, error)
}

// allocationInput is the validated roster and seat pool of one run.
type allocationInput struct {
	students     []models.Student
	halls        []models.HallSeats
	rosterSize   int
	seatsInHalls int
}

func (in *allocationInput) seatCount() int {
	total := 0
	for _, h := range in.halls {
		total += len(h.Seats)
	}
	return total
}

// assembleExclusions removes students and seats already held by preserved
// manual assignments from the pool.
type assembleExclusions struct {
	students map[string]struct{}
	seats    map[string]struct{}
}

// inputAssembler loads and validates everything a run needs. It never writes.
type inputAssembler struct {
	roster              rosterReader
	halls               hallReader
	defaultSeatsPerDesk int
}

func (a *inputAssembler) assemble(ctx context.Context, examID string, excl assembleExclusions) (*allocationInput, error) {
	students, err := a.roster.ListByExam(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam roster")
	}
	if len(students) == 0 {
		return nil, appErrors.ErrNoStudents
	}

	halls, err := a.halls.ListHallsByExam(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam halls")
	}
	if len(halls) == 0 {
		return nil, appErrors.ErrNoHalls
	}

	hallIDs := make([]string, len(halls))
	for i, h := range halls {
		hallIDs[i] = h.ID
	}
	seats, err := a.halls.ListUsableSeats(ctx, hallIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load hall seats")
	}

	byHall := make(map[string][]models.Seat, len(halls))
	seatsInHalls := 0
	for _, seat := range seats {
		if !seat.IsUsable {
			continue
		}
		seatsInHalls++
		if _, skip := excl.seats[seat.ID]; skip {
			continue
		}
		byHall[seat.HallID] = append(byHall[seat.HallID], seat)
	}

	in := &allocationInput{
		students:     make([]models.Student, 0, len(students)),
		halls:        make([]models.HallSeats, 0, len(halls)),
		rosterSize:   len(students),
		seatsInHalls: seatsInHalls,
	}
	for _, st := range students {
		if _, skip := excl.students[st.ID]; skip {
			continue
		}
		in.students = append(in.students, st)
	}
	for _, h := range halls {
		if h.SeatsPerDesk <= 0 {
			h.SeatsPerDesk = a.defaultSeatsPerDesk
		}
		in.halls = append(in.halls, models.HallSeats{Hall: h, Seats: byHall[h.ID]})
	}

	if available := in.seatCount(); available < len(in.students) {
		capacity := &models.InsufficientCapacityError{StudentsNeeded: len(in.students), SeatsAvailable: available}
		return nil, appErrors.WrapAs(appErrors.ErrInsufficientCapacity, capacity, capacity.Error())
	}
	return in, nil
}
