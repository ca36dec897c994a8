// Package schedule turns the string-encoded schedule fields stored with each
// tablet into typed values and answers the two questions the detector asks:
// is this dose scheduled today, and is it past its grace deadline.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*([AaPp][Mm])$`)

// Clock is a time of day parsed from the 12-hour form "H:MM AM|PM".
type Clock struct {
	Hour   int // 0-23
	Minute int
}

// ParseClock parses "8:00 AM", "12:30 PM" and the like.
func ParseClock(s string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Clock{}, fmt.Errorf("invalid schedule time %q: want H:MM AM|PM", s)
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour < 1 || hour > 12 {
		return Clock{}, fmt.Errorf("invalid schedule time %q: hour out of range", s)
	}
	if minute > 59 {
		return Clock{}, fmt.Errorf("invalid schedule time %q: minute out of range", s)
	}

	pm := strings.EqualFold(m[3], "PM")
	switch {
	case pm && hour != 12:
		hour += 12
	case !pm && hour == 12:
		hour = 0
	}

	return Clock{Hour: hour, Minute: minute}, nil
}

// On returns the instant at this clock time on ref's calendar date, in ref's location.
func (c Clock) On(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), c.Hour, c.Minute, 0, 0, ref.Location())
}

// String renders the clock back in 12-hour form.
func (c Clock) String() string {
	hour := c.Hour % 12
	if hour == 0 {
		hour = 12
	}
	meridiem := "AM"
	if c.Hour >= 12 {
		meridiem = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", hour, c.Minute, meridiem)
}

// DateString formats t as YYYY-MM-DD in t's own location.
func DateString(t time.Time) string {
	return t.Format("2006-01-02")
}
