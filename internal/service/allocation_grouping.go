package service

import (
	"strconv"

	"github.com/noah-isme/exam-seating-api/internal/models"
)

// cohort is a group of students sharing one grouping attribute value.
type cohort struct {
	key      string
	students []models.Student
}

// groupStudents partitions students by the pattern attribute. Cohorts keep
// the order in which their key first appears; members keep roster order.
// The random pattern yields one cohort in roster order; the placer shuffles it.
func groupStudents(students []models.Student, pattern models.AllocationPattern) []cohort {
	if len(students) == 0 {
		return nil
	}
	if pattern == models.AllocationPatternRandom {
		return []cohort{{key: string(models.AllocationPatternRandom), students: append([]models.Student(nil), students...)}}
	}

	keyOf := cohortKey(pattern)
	index := make(map[string]int)
	cohorts := make([]cohort, 0)
	for _, st := range students {
		key := keyOf(st)
		pos, ok := index[key]
		if !ok {
			pos = len(cohorts)
			index[key] = pos
			cohorts = append(cohorts, cohort{key: key})
		}
		cohorts[pos].students = append(cohorts[pos].students, st)
	}
	return cohorts
}

func cohortKey(pattern models.AllocationPattern) func(models.Student) string {
	switch pattern {
	case models.AllocationPatternCourse:
		return func(s models.Student) string { return s.CourseID }
	case models.AllocationPatternYear:
		return func(s models.Student) string { return strconv.Itoa(s.Year) }
	default:
		return func(s models.Student) string { return s.DepartmentID }
	}
}
