package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/gmsas95/medwatch/internal/store"
)

// Recorder writes a "missed" log for an occurrence unless one already exists.
// The existence check is the only deduplication; it is not transactional, so
// two runs racing on one key may both pass it.
type Recorder struct {
	store Store
}

// NewRecorder creates a recorder on top of the log store
func NewRecorder(st Store) *Recorder {
	return &Recorder{store: st}
}

// RecordMissed returns true when it created a new log.
func (r *Recorder) RecordMissed(ctx context.Context, groupID string, key OccurrenceKey, medicationName string) (bool, error) {
	id := key.String()

	exists, err := r.store.MedicationLogExists(ctx, groupID, id)
	if err != nil {
		return false, fmt.Errorf("check log %s: %w", id, err)
	}
	if exists {
		return false, nil
	}

	err = r.store.CreateMedicationLog(ctx, &store.MedicationLog{
		PatientGroupID: groupID,
		ID:             id,
		TabletID:       key.TabletID,
		MedicationName: medicationName,
		ScheduledTime:  key.ScheduledTime,
		Date:           key.Date,
		Status:         store.StatusMissed,
	})
	if errors.Is(err, store.ErrLogExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("write log %s: %w", id, err)
	}
	return true, nil
}
