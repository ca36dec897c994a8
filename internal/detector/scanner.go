package detector

import (
	"time"

	"github.com/gmsas95/medwatch/internal/schedule"
	"github.com/gmsas95/medwatch/internal/store"
)

// skipReason explains why a tablet produced no candidates; empty means it did.
type skipReason string

const (
	skipIncomplete   skipReason = "incomplete tablet"
	skipNotifyOff    skipReason = "caregiver notifications disabled"
	skipNotToday     skipReason = "not scheduled today"
	skipNoLateWindow skipReason = "late window missing or not numeric"
)

// scanTablet decides whether a tablet is evaluated on now's date and, if so,
// returns its parsed recurrence. Every slot of the recurrence is one
// candidate occurrence for today.
func scanTablet(t *store.Tablet, now time.Time) (schedule.Recurrence, skipReason) {
	if t.Schedule == nil || t.Medication == nil || t.CaregiverSettings == nil {
		return schedule.Recurrence{}, skipIncomplete
	}
	if !t.CaregiverSettings.NotifyCaregivers {
		return schedule.Recurrence{}, skipNotifyOff
	}
	if !schedule.ParseDays(t.Schedule.DaysOfWeek).Includes(now) {
		return schedule.Recurrence{}, skipNotToday
	}

	rec, err := schedule.NewRecurrence(t.Schedule.DaysOfWeek, t.Schedule.Times, t.CaregiverSettings.LateWindow)
	if err != nil {
		return schedule.Recurrence{}, skipNoLateWindow
	}
	return rec, ""
}
