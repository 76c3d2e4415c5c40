package schedule

import (
	"time"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
)

// AddDays moves t by n calendar days, keeping the wall clock time.
// Offsets are day-granular throughout; sub-day precision never matters
// to questionnaire windows.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// Expand generates the occurrence start dates of a recurrence anchored
// at anchor: anchor + days_to_start + k*days_in_cycle for k = 0, 1, ...
// while the start is no later than anchor + days_till_termination.
// A termination earlier than the first start yields no occurrences.
func Expand(anchor time.Time, r domain.Recurrence) []time.Time {
	if r.DaysInCycle <= 0 {
		return nil
	}

	terminal := AddDays(anchor, r.DaysTillTermination)
	var starts []time.Time
	for k := 0; ; k++ {
		start := AddDays(anchor, r.DaysToStart+k*r.DaysInCycle)
		if start.After(terminal) {
			break
		}
		starts = append(starts, start)
	}
	return starts
}
