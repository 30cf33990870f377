package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-seating-api/internal/models"
	appErrors "github.com/noah-isme/exam-seating-api/pkg/errors"
)

func TestGroupStudentsKeepsFirstSeenOrder(t *testing.T) {
	students := []models.Student{
		{ID: "b1", DepartmentID: "B", CourseID: "c2", Year: 2},
		{ID: "a1", DepartmentID: "A", CourseID: "c1", Year: 1},
		{ID: "b2", DepartmentID: "B", CourseID: "c1", Year: 1},
		{ID: "a2", DepartmentID: "A", CourseID: "c2", Year: 3},
	}

	cohorts := groupStudents(students, models.AllocationPatternDepartment)
	require.Len(t, cohorts, 2)
	assert.Equal(t, "B", cohorts[0].key)
	assert.Equal(t, []string{"b1", "b2"}, studentIDs(cohorts[0].students))
	assert.Equal(t, "A", cohorts[1].key)
	assert.Equal(t, []string{"a1", "a2"}, studentIDs(cohorts[1].students))

	byCourse := groupStudents(students, models.AllocationPatternCourse)
	require.Len(t, byCourse, 2)
	assert.Equal(t, "c2", byCourse[0].key)

	byYear := groupStudents(students, models.AllocationPatternYear)
	require.Len(t, byYear, 3)
	assert.Equal(t, []string{"2", "1", "3"}, []string{byYear[0].key, byYear[1].key, byYear[2].key})
}

func TestGroupStudentsRandomIsOneCohort(t *testing.T) {
	students := makeStudents(7, 3)
	cohorts := groupStudents(students, models.AllocationPatternRandom)
	require.Len(t, cohorts, 1)
	assert.Equal(t, studentIDs(students), studentIDs(cohorts[0].students))

	cohorts[0].students[0].ID = "changed"
	assert.Equal(t, "s-0", students[0].ID, "cohort must not alias the roster")
	assert.Nil(t, groupStudents(nil, models.AllocationPatternDepartment))
}

func TestPlaceSingleCohortIsSeededShuffle(t *testing.T) {
	students := makeStudents(8, 1)
	desks := buildDesks([]models.HallSeats{gridHall("h1", 2, 4, 8)}, 2)
	cohorts := groupStudents(students, models.AllocationPatternRandom)

	first := placeStudents(cohorts, desks, rand.New(rand.NewSource(42)))
	again := placeStudents(cohorts, desks, rand.New(rand.NewSource(42)))
	require.Len(t, first, 8)
	assertBijection(t, students, first)
	for i := range first {
		assert.Equal(t, first[i].student.ID, again[i].student.ID)
		assert.Equal(t, first[i].seat.ID, again[i].seat.ID)
	}
	assert.Equal(t, studentIDs(students), studentIDs(cohorts[0].students), "placement must not reorder the cohort")
}

func TestBuildDesksOrdersByRowThenDesk(t *testing.T) {
	hall := models.Hall{ID: "h1", Name: "Main", SeatsPerDesk: 2}
	seats := []models.Seat{
		{ID: "2B", HallID: "h1", RowNumber: 2, ColNumber: 2},
		{ID: "1C", HallID: "h1", RowNumber: 1, ColNumber: 3},
		{ID: "1B", HallID: "h1", RowNumber: 1, ColNumber: 2},
		{ID: "2A", HallID: "h1", RowNumber: 2, ColNumber: 1},
		{ID: "1A", HallID: "h1", RowNumber: 1, ColNumber: 1},
	}

	desks := buildDesks([]models.HallSeats{{Hall: hall, Seats: seats}}, 2)
	require.Len(t, desks, 3)
	assert.Equal(t, []string{"1A", "1B"}, seatIDs(desks[0].seats))
	assert.Equal(t, []string{"1C"}, seatIDs(desks[1].seats))
	assert.Equal(t, []string{"2A", "2B"}, seatIDs(desks[2].seats))

	// Unset desk width falls back to the default.
	hall.SeatsPerDesk = 0
	wide := buildDesks([]models.HallSeats{{Hall: hall, Seats: seats}}, 3)
	require.Len(t, wide, 2)
	assert.Equal(t, []string{"1A", "1B", "1C"}, seatIDs(wide[0].seats))
}

func TestPlaceAlternatingDepartmentScenario(t *testing.T) {
	students := []models.Student{
		{ID: "a1", DepartmentID: "A"},
		{ID: "a2", DepartmentID: "A"},
		{ID: "b1", DepartmentID: "B"},
		{ID: "b2", DepartmentID: "B"},
	}
	halls := []models.HallSeats{gridHall("h1", 2, 2, 4)}
	rng := rand.New(rand.NewSource(7))

	cohorts := groupStudents(students, models.AllocationPatternDepartment)
	desks := buildDesks(halls, 2)
	placements := placeStudents(cohorts, desks, rng)

	require.Len(t, placements, 4)
	bySeat := make(map[string]string)
	for _, p := range placements {
		bySeat[p.seat.SeatNumber] = p.student.ID
	}
	assert.Equal(t, map[string]string{"1A": "a1", "1B": "b1", "2A": "a2", "2B": "b2"}, bySeat)

	for _, d := range desks {
		cohortsAtDesk := make(map[string]bool)
		for _, p := range placements {
			if p.seat.RowNumber == d.row {
				cohortsAtDesk[p.cohort] = true
			}
		}
		assert.Len(t, cohortsAtDesk, 2, "desk in row %d must mix cohorts", d.row)
	}
}

func TestPlaceAlternatingStepsOverExhaustedCohorts(t *testing.T) {
	cohorts := []cohort{
		{key: "A", students: []models.Student{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}, {ID: "a4"}}},
		{key: "B", students: []models.Student{{ID: "b1"}}},
	}
	desks := buildDesks([]models.HallSeats{gridHall("h1", 3, 2, 6)}, 2)

	placements := placeAlternating(cohorts, desks)
	require.Len(t, placements, 5)
	got := make([]string, len(placements))
	for i, p := range placements {
		got[i] = p.student.ID
	}
	assert.Equal(t, []string{"a1", "b1", "a2", "a3", "a4"}, got)
}

func TestPlaceAlternatingMixesNeighboursAtDesk(t *testing.T) {
	cases := []struct {
		cohorts      int
		perCohort    int
		seatsPerDesk int
		cols         int
	}{
		{cohorts: 2, perCohort: 6, seatsPerDesk: 2, cols: 4},
		{cohorts: 2, perCohort: 6, seatsPerDesk: 3, cols: 6},
		{cohorts: 3, perCohort: 6, seatsPerDesk: 2, cols: 6},
		{cohorts: 3, perCohort: 6, seatsPerDesk: 3, cols: 6},
		{cohorts: 2, perCohort: 5, seatsPerDesk: 3, cols: 6},
		{cohorts: 3, perCohort: 4, seatsPerDesk: 2, cols: 4},
	}
	for _, tc := range cases {
		name := fmt.Sprintf("%d-cohorts/%d-each/desk-%d", tc.cohorts, tc.perCohort, tc.seatsPerDesk)
		t.Run(name, func(t *testing.T) {
			total := tc.cohorts * tc.perCohort
			roster := make([]models.Student, 0, total)
			for i := 0; i < tc.perCohort; i++ {
				for c := 0; c < tc.cohorts; c++ {
					roster = append(roster, models.Student{ID: fmt.Sprintf("d%d-%d", c, i), DepartmentID: fmt.Sprintf("d%d", c)})
				}
			}
			rows := (total + tc.cols - 1) / tc.cols
			hall := gridHall("h1", rows, tc.cols, rows*tc.cols)
			hall.Hall.SeatsPerDesk = tc.seatsPerDesk
			desks := buildDesks([]models.HallSeats{hall}, 2)

			placements := placeStudents(groupStudents(roster, models.AllocationPatternDepartment), desks, rand.New(rand.NewSource(1)))
			require.Len(t, placements, total)
			assertBijection(t, roster, placements)

			deskOf := make(map[string]int)
			for i, d := range desks {
				for _, seat := range d.seats {
					deskOf[seat.ID] = i
				}
			}
			// remaining[i][key] is how many students of key are still unplaced
			// right before placements[i] is made
			remaining := make([]map[string]int, len(placements))
			left := make(map[string]int)
			for _, p := range placements {
				left[p.cohort]++
			}
			for i, p := range placements {
				snapshot := make(map[string]int, len(left))
				for k, v := range left {
					snapshot[k] = v
				}
				remaining[i] = snapshot
				left[p.cohort]--
			}

			for i := 1; i < len(placements); i++ {
				prev, cur := placements[i-1], placements[i]
				if deskOf[prev.seat.ID] != deskOf[cur.seat.ID] {
					continue
				}
				othersLeft := false
				for key, n := range remaining[i] {
					if key != prev.cohort && n > 0 {
						othersLeft = true
					}
				}
				if othersLeft {
					assert.NotEqual(t, prev.cohort, cur.cohort, "seats %s and %s share a desk and a cohort", prev.seat.ID, cur.seat.ID)
				}
			}
		})
	}
}

func TestPlaceStudentsRandomScenario(t *testing.T) {
	students := makeStudents(5, 1)
	halls := []models.HallSeats{gridHall("h1", 1, 5, 5)}
	rng := rand.New(rand.NewSource(99))

	placements := placeStudents(groupStudents(students, models.AllocationPatternRandom), buildDesks(halls, 2), rng)
	require.Len(t, placements, 5)
	assertBijection(t, students, placements)
}

func TestPlacementIsBijectiveAcrossCapacities(t *testing.T) {
	patterns := []models.AllocationPattern{
		models.AllocationPatternDepartment,
		models.AllocationPatternCourse,
		models.AllocationPatternYear,
		models.AllocationPatternRandom,
	}
	for _, pattern := range patterns {
		for students := 1; students <= 24; students += 5 {
			for extra := 0; extra <= 4; extra += 2 {
				seats := students + extra
				name := fmt.Sprintf("%s/%d-students/%d-seats", pattern, students, seats)
				t.Run(name, func(t *testing.T) {
					roster := makeStudents(students, 3)
					halls := []models.HallSeats{gridHall("h1", (seats+3)/4, 4, seats), gridHall("h2", 1, 2, 1)}
					rng := rand.New(rand.NewSource(int64(students*31 + seats)))

					placements := placeStudents(groupStudents(roster, pattern), buildDesks(halls, 2), rng)
					require.Len(t, placements, students)
					assertBijection(t, roster, placements)
				})
			}
		}
	}
}

func TestInputAssemblerFailures(t *testing.T) {
	ctx := context.Background()

	empty := &inputAssembler{roster: &rosterStub{}, halls: &hallStub{}, defaultSeatsPerDesk: 2}
	_, err := empty.assemble(ctx, "exam-1", assembleExclusions{})
	assert.True(t, errors.Is(err, appErrors.ErrNoStudents))

	noHalls := &inputAssembler{roster: &rosterStub{students: makeStudents(2, 1)}, halls: &hallStub{}, defaultSeatsPerDesk: 2}
	_, err = noHalls.assemble(ctx, "exam-1", assembleExclusions{})
	assert.True(t, errors.Is(err, appErrors.ErrNoHalls))

	hall := gridHall("h1", 2, 3, 6)
	short := &inputAssembler{
		roster:              &rosterStub{students: makeStudents(10, 2)},
		halls:               &hallStub{halls: []models.Hall{hall.Hall}, seats: hall.Seats},
		defaultSeatsPerDesk: 2,
	}
	_, err = short.assemble(ctx, "exam-1", assembleExclusions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInsufficientCapacity))
	var capacity *models.InsufficientCapacityError
	require.True(t, errors.As(err, &capacity))
	assert.Equal(t, 10, capacity.StudentsNeeded)
	assert.Equal(t, 6, capacity.SeatsAvailable)
}

func TestInputAssemblerCapacityBoundaries(t *testing.T) {
	ctx := context.Background()
	hall := gridHall("h1", 2, 3, 6)

	t.Run("halls without usable seats", func(t *testing.T) {
		assembler := &inputAssembler{
			roster:              &rosterStub{students: makeStudents(3, 1)},
			halls:               &hallStub{halls: []models.Hall{hall.Hall}},
			defaultSeatsPerDesk: 2,
		}
		_, err := assembler.assemble(ctx, "exam-1", assembleExclusions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, appErrors.ErrInsufficientCapacity))
		var capacity *models.InsufficientCapacityError
		require.True(t, errors.As(err, &capacity))
		assert.Equal(t, 3, capacity.StudentsNeeded)
		assert.Equal(t, 0, capacity.SeatsAvailable)
	})

	t.Run("one seat short", func(t *testing.T) {
		assembler := &inputAssembler{
			roster:              &rosterStub{students: makeStudents(7, 2)},
			halls:               &hallStub{halls: []models.Hall{hall.Hall}, seats: hall.Seats},
			defaultSeatsPerDesk: 2,
		}
		_, err := assembler.assemble(ctx, "exam-1", assembleExclusions{})
		assert.True(t, errors.Is(err, appErrors.ErrInsufficientCapacity))
	})

	t.Run("exactly full", func(t *testing.T) {
		assembler := &inputAssembler{
			roster:              &rosterStub{students: makeStudents(6, 2)},
			halls:               &hallStub{halls: []models.Hall{hall.Hall}, seats: hall.Seats},
			defaultSeatsPerDesk: 2,
		}
		in, err := assembler.assemble(ctx, "exam-1", assembleExclusions{})
		require.NoError(t, err)
		assert.Equal(t, 6, in.seatCount())
		assert.Len(t, in.students, 6)
	})
}

func TestInputAssemblerHonoursExclusions(t *testing.T) {
	hall := gridHall("h1", 1, 3, 3)
	hall.Seats = append(hall.Seats, models.Seat{ID: "broken", HallID: "h1", RowNumber: 1, ColNumber: 4})
	assembler := &inputAssembler{
		roster:              &rosterStub{students: makeStudents(3, 1)},
		halls:               &hallStub{halls: []models.Hall{hall.Hall}, seats: hall.Seats},
		defaultSeatsPerDesk: 2,
	}

	in, err := assembler.assemble(context.Background(), "exam-1", assembleExclusions{
		students: map[string]struct{}{"s-0": {}},
		seats:    map[string]struct{}{hall.Seats[0].ID: {}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, in.rosterSize)
	assert.Equal(t, 3, in.seatsInHalls)
	assert.Len(t, in.students, 2)
	assert.Equal(t, 2, in.seatCount())
}

type rosterStub struct {
	students []models.Student
	err      error
}

func (r *rosterStub) ListByExam(ctx context.Context, examID string) ([]models.Student, error) {
	return r.students, r.err
}

type hallStub struct {
	halls []models.Hall
	seats []models.Seat
}

func (h *hallStub) ListHallsByExam(ctx context.Context, examID string) ([]models.Hall, error) {
	return h.halls, nil
}

func (h *hallStub) ListUsableSeats(ctx context.Context, hallIDs []string) ([]models.Seat, error) {
	return h.seats, nil
}

// gridHall builds a rows x cols hall and keeps the first usable seats.
func gridHall(id string, rows, cols, usable int) models.HallSeats {
	hall := models.Hall{ID: id, Name: "Hall " + id, Rows: rows, Columns: cols, TotalSeats: rows * cols, SeatsPerDesk: 2}
	seats := make([]models.Seat, 0, rows*cols)
	for r := 1; r <= rows; r++ {
		for c := 1; c <= cols; c++ {
			label := fmt.Sprintf("%d%c", r, 'A'+c-1)
			seats = append(seats, models.Seat{
				ID:         id + "-" + label,
				HallID:     id,
				SeatNumber: label,
				RowNumber:  r,
				ColNumber:  c,
				IsUsable:   true,
			})
		}
	}
	if usable < len(seats) {
		seats = seats[:usable]
	}
	return models.HallSeats{Hall: hall, Seats: seats}
}

func makeStudents(n, departments int) []models.Student {
	students := make([]models.Student, n)
	for i := range students {
		students[i] = models.Student{
			ID:           fmt.Sprintf("s-%d", i),
			RollNumber:   fmt.Sprintf("R%03d", i),
			DepartmentID: fmt.Sprintf("dept-%d", i%departments),
			CourseID:     fmt.Sprintf("course-%d", i%2),
			Year:         1 + i%4,
		}
	}
	return students
}

func assertBijection(t *testing.T, students []models.Student, placements []placement) {
	t.Helper()
	seenStudents := make(map[string]bool)
	seenSeats := make(map[string]bool)
	for _, p := range placements {
		assert.False(t, seenStudents[p.student.ID], "student %s placed twice", p.student.ID)
		assert.False(t, seenSeats[p.seat.ID], "seat %s used twice", p.seat.ID)
		assert.Equal(t, p.hall.ID, p.seat.HallID)
		seenStudents[p.student.ID] = true
		seenSeats[p.seat.ID] = true
	}
	for _, s := range students {
		assert.True(t, seenStudents[s.ID], "student %s not placed", s.ID)
	}
}

func studentIDs(students []models.Student) []string {
	ids := make([]string, len(students))
	for i, s := range students {
		ids[i] = s.ID
	}
	return ids
}

func seatIDs(seats []models.Seat) []string {
	ids := make([]string, len(seats))
	for i, s := range seats {
		ids[i] = s.ID
	}
	return ids
}
