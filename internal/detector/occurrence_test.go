package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccurrenceKey_String(t *testing.T) {
	k := OccurrenceKey{TabletID: "tab1", Date: "2024-03-05", ScheduledTime: "9:00 AM"}
	assert.Equal(t, "tab1_2024-03-05_9-00_AM", k.String())
}

func TestParseOccurrenceKey(t *testing.T) {
	for _, k := range []OccurrenceKey{
		{TabletID: "tab1", Date: "2024-03-05", ScheduledTime: "9:00 AM"},
		{TabletID: "my_tab_2", Date: "2024-12-31", ScheduledTime: "11:30 pm"},
	} {
		got, err := ParseOccurrenceKey(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseOccurrenceKey("tab1_20240305_9-00_AM")
	assert.Error(t, err)
}
