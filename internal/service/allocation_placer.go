package service

import (
	"math/rand"
	"sort"

	"github.com/noah-isme/exam-seating-api/internal/models"
)

// desk is a cluster of physically adjacent seats in one hall row.
type desk struct {
	hall  models.Hall
	row   int
	index int
	seats []models.Seat
}

// placement is one (student, seat, hall) triple produced by the placer.
type placement struct {
	student models.Student
	seat    models.Seat
	hall    models.Hall
	cohort  string
}

// buildDesks groups seats by (hall, row, (col-1)/seats_per_desk). Desks follow
// hall order, then row, then desk index; seats inside a desk follow column.
func buildDesks(halls []models.HallSeats, defaultSeatsPerDesk int) []desk {
	if defaultSeatsPerDesk <= 0 {
		defaultSeatsPerDesk = 2
	}
	desks := make([]desk, 0)
	for _, h := range halls {
		perDesk := h.Hall.SeatsPerDesk
		if perDesk <= 0 {
			perDesk = defaultSeatsPerDesk
		}
		type deskKey struct{ row, index int }
		byKey := make(map[deskKey]int)
		hallDesks := make([]desk, 0)
		for _, seat := range h.Seats {
			col := seat.ColNumber
			if col < 1 {
				col = 1
			}
			key := deskKey{row: seat.RowNumber, index: (col - 1) / perDesk}
			pos, ok := byKey[key]
			if !ok {
				pos = len(hallDesks)
				byKey[key] = pos
				hallDesks = append(hallDesks, desk{hall: h.Hall, row: key.row, index: key.index})
			}
			hallDesks[pos].seats = append(hallDesks[pos].seats, seat)
		}
		sort.SliceStable(hallDesks, func(i, j int) bool {
			if hallDesks[i].row != hallDesks[j].row {
				return hallDesks[i].row < hallDesks[j].row
			}
			return hallDesks[i].index < hallDesks[j].index
		})
		for i := range hallDesks {
			seats := hallDesks[i].seats
			sort.SliceStable(seats, func(a, b int) bool { return seats[a].ColNumber < seats[b].ColNumber })
		}
		desks = append(desks, hallDesks...)
	}
	return desks
}

// placeStudents maps every student to a distinct seat. Callers guarantee
// there are at least as many seats as students.
func placeStudents(cohorts []cohort, desks []desk, rng *rand.Rand) []placement {
	switch len(cohorts) {
	case 0:
		return nil
	case 1:
		return placeSingleCohort(cohorts[0], desks, rng)
	default:
		return placeAlternating(cohorts, desks)
	}
}

func placeSingleCohort(c cohort, desks []desk, rng *rand.Rand) []placement {
	type slot struct {
		seat models.Seat
		hall models.Hall
	}
	slots := make([]slot, 0)
	for _, d := range desks {
		for _, seat := range d.seats {
			slots = append(slots, slot{seat: seat, hall: d.hall})
		}
	}
	students := append([]models.Student(nil), c.students...)
	rng.Shuffle(len(students), func(i, j int) { students[i], students[j] = students[j], students[i] })
	rng.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })

	n := len(students)
	if len(slots) < n {
		n = len(slots)
	}
	placements := make([]placement, n)
	for i := 0; i < n; i++ {
		placements[i] = placement{student: students[i], seat: slots[i].seat, hall: slots[i].hall, cohort: c.key}
	}
	return placements
}

// placeAlternating walks desks seat by seat, rotating across cohorts so that
// neighbours at a desk come from different cohorts. Exhausted cohorts are
// stepped over within the same seat turn, so no seat is left empty while
// students remain.
func placeAlternating(cohorts []cohort, desks []desk) []placement {
	total := 0
	for _, c := range cohorts {
		total += len(c.students)
	}
	cursors := make([]int, len(cohorts))
	placements := make([]placement, 0, total)
	next := 0

	for _, d := range desks {
		for _, seat := range d.seats {
			if len(placements) == total {
				return placements
			}
			picked := -1
			for step := 0; step < len(cohorts); step++ {
				candidate := (next + step) % len(cohorts)
				if cursors[candidate] < len(cohorts[candidate].students) {
					picked = candidate
					break
				}
			}
			if picked < 0 {
				return placements
			}
			c := cohorts[picked]
			placements = append(placements, placement{
				student: c.students[cursors[picked]],
				seat:    seat,
				hall:    d.hall,
				cohort:  c.key,
			})
			cursors[picked]++
			next = (picked + 1) % len(cohorts)
		}
	}
	return placements
}
