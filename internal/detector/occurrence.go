package detector

import (
	"fmt"
	"regexp"
	"strings"
)

var keyPattern = regexp.MustCompile(`^(.+)_(\d{4}-\d{2}-\d{2})_(\d{1,2}-\d{2}_[AaPp][Mm])$`)

var (
	encodeTime = strings.NewReplacer(":", "-", " ", "_")
	decodeTime = strings.NewReplacer("-", ":", "_", " ")
)

// OccurrenceKey identifies one scheduled dose: a tablet, a calendar date and
// the schedule time string exactly as configured.
//
// The encoded form is "<tabletID>_<YYYY-MM-DD>_<time>" with ':' in the time
// replaced by '-' and ' ' by '_', e.g. "tab1_2024-03-05_9-00_AM". The mobile
// client derives the same ID when it logs a dose as taken. For time strings in
// the canonical "H:MM AM|PM" form the encoding is injective and
// ParseOccurrenceKey inverts it.
type OccurrenceKey struct {
	TabletID      string
	Date          string
	ScheduledTime string
}

// String returns the storage ID of the occurrence.
func (k OccurrenceKey) String() string {
	return k.TabletID + "_" + k.Date + "_" + encodeTime.Replace(k.ScheduledTime)
}

// ParseOccurrenceKey decodes an ID produced by String for a canonical time.
func ParseOccurrenceKey(id string) (OccurrenceKey, error) {
	m := keyPattern.FindStringSubmatch(id)
	if m == nil {
		return OccurrenceKey{}, fmt.Errorf("invalid occurrence key %q", id)
	}
	return OccurrenceKey{
		TabletID:      m[1],
		Date:          m[2],
		ScheduledTime: decodeTime.Replace(m[3]),
	}, nil
}
