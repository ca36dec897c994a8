package schedule

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"time"
)

// AllDays is the daysOfWeek token meaning "every day".
const AllDays = "All"

var weekdayTokens = [7]string{"Su", "Mo", "Tu", "We", "Th", "Fr", "Sa"}

// ErrNoLateWindow means the tablet has no usable grace window and is never checked.
var ErrNoLateWindow = errors.New("late window missing or not numeric")

var leadingNumber = regexp.MustCompile(`\d+`)

const maxWindowMinutes = math.MaxInt64 / int64(time.Minute)

var maxWindow = time.Duration(maxWindowMinutes) * time.Minute

// WeekdayToken returns the two-letter token for d, "Su" through "Sa".
func WeekdayToken(d time.Weekday) string {
	return weekdayTokens[d]
}

// Days is a parsed daysOfWeek set.
type Days struct {
	all  bool
	days [7]bool
}

// ParseDays builds a Days set. Unknown tokens are ignored.
func ParseDays(tokens []string) Days {
	var d Days
	for _, tok := range tokens {
		if tok == AllDays {
			d.all = true
			continue
		}
		for i, w := range weekdayTokens {
			if tok == w {
				d.days[i] = true
			}
		}
	}
	return d
}

// Includes reports whether the set schedules a dose on t's weekday.
func (d Days) Includes(t time.Time) bool {
	return d.all || d.days[t.Weekday()]
}

// ParseLateWindow reads the first integer in s, e.g. "30 minutes", as minutes.
// A missing, non-numeric or zero value yields ErrNoLateWindow. Values too large
// for a time.Duration are capped at the largest whole-minute duration.
func ParseLateWindow(s string) (time.Duration, error) {
	digits := leadingNumber.FindString(s)
	if digits == "" {
		return 0, ErrNoLateWindow
	}
	minutes, err := strconv.ParseInt(digits, 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, ErrNoLateWindow
	}
	if minutes == 0 {
		return 0, ErrNoLateWindow
	}
	if err != nil || minutes > maxWindowMinutes {
		return maxWindow, nil
	}
	return time.Duration(minutes) * time.Minute, nil
}

// IsOverdue reports whether now is strictly past scheduled plus the grace window.
func IsOverdue(scheduled time.Time, window time.Duration, now time.Time) bool {
	return now.After(scheduled.Add(window))
}

// Slot is one entry of schedule.times. Raw is kept verbatim because it is part
// of the log identity shared with the mobile client.
type Slot struct {
	Raw   string
	Clock Clock
	Err   error
}

// Recurrence is a tablet schedule with all string fields parsed.
type Recurrence struct {
	Days       Days
	Slots      []Slot
	LateWindow time.Duration
}

// NewRecurrence parses the raw schedule fields. A bad late window fails the
// whole recurrence; a bad time only marks its own slot.
func NewRecurrence(daysOfWeek, times []string, lateWindow string) (Recurrence, error) {
	window, err := ParseLateWindow(lateWindow)
	if err != nil {
		return Recurrence{}, err
	}

	slots := make([]Slot, 0, len(times))
	for _, raw := range times {
		c, err := ParseClock(raw)
		slots = append(slots, Slot{Raw: raw, Clock: c, Err: err})
	}

	return Recurrence{
		Days:       ParseDays(daysOfWeek),
		Slots:      slots,
		LateWindow: window,
	}, nil
}

// Due reports whether the slot's dose for now's date is past its grace deadline.
func (r Recurrence) Due(s Slot, now time.Time) bool {
	if s.Err != nil {
		return false
	}
	return IsOverdue(s.Clock.On(now), r.LateWindow, now)
}
