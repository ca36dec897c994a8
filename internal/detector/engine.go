// Package detector finds scheduled doses that passed their grace window
// without a log, records each as missed once and alerts the caregivers.
package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gmsas95/medwatch/internal/schedule"
	"github.com/gmsas95/medwatch/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the document access the detector needs.
type Store interface {
	ListPatientGroups(ctx context.Context) ([]store.PatientGroup, error)
	GetPatientGroup(ctx context.Context, id string) (*store.PatientGroup, error)
	ListTablets(ctx context.Context, groupID string) ([]store.Tablet, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
	MedicationLogExists(ctx context.Context, groupID, logID string) (bool, error)
	CreateMedicationLog(ctx context.Context, log *store.MedicationLog) error
}

// Engine runs one detection pass over every patient group. All work is
// sequential; a failure in one group, tablet or occurrence is recorded and the
// pass moves on.
type Engine struct {
	store    Store
	recorder *Recorder
	notifier *Notifier
	logger   *zap.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewEngine creates a detection engine that evaluates schedules in loc
func NewEngine(st Store, notifier *Notifier, loc *time.Location, logger *zap.Logger) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		store:    st,
		recorder: NewRecorder(st),
		notifier: notifier,
		logger:   logger,
		loc:      loc,
		now:      time.Now,
	}
}

// WithClock overrides the engine's clock
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Run performs one detection pass. It never returns an error: anything that
// stops the pass early is reported through Aborted and AbortReason.
func (e *Engine) Run(ctx context.Context) (summary *RunSummary) {
	now := e.now().In(e.loc)
	summary = &RunSummary{RunID: uuid.NewString(), StartedAt: now}
	log := e.logger.With(zap.String("run_id", summary.RunID))

	defer func() {
		if r := recover(); r != nil {
			summary.abort(fmt.Sprintf("panic: %v", r))
		}
		summary.FinishedAt = e.now().In(e.loc)
		if summary.Aborted {
			log.Error("Error checking missed medications", zap.String("reason", summary.AbortReason))
		}
		log.Info("Missed medication check finished",
			zap.Int("groups", summary.Groups),
			zap.Int("checked", summary.Checked),
			zap.Int("missed", summary.Missed),
			zap.Int("errors", summary.Errors),
			zap.Int("notifications_sent", summary.NotificationsSent),
			zap.Int("notifications_failed", summary.NotificationsFailed),
			zap.Bool("aborted", summary.Aborted),
		)
	}()

	log.Info("Checking for missed medications", zap.String("date", schedule.DateString(now)))

	groups, err := e.store.ListPatientGroups(ctx)
	if err != nil {
		summary.abort(fmt.Sprintf("list patient groups: %v", err))
		return summary
	}

	for i := range groups {
		if err := ctx.Err(); err != nil {
			summary.abort(fmt.Sprintf("cancelled: %v", err))
			return summary
		}
		summary.Groups++
		e.runGroup(ctx, log, &groups[i], now, summary)
	}

	return summary
}

func (e *Engine) runGroup(ctx context.Context, log *zap.Logger, group *store.PatientGroup, now time.Time, summary *RunSummary) {
	log = log.With(zap.String("group_id", group.ID))

	patientName := defaultPatientName
	patient, err := e.store.GetUser(ctx, group.PatientUID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		log.Error("Failed to load patient, skipping group", zap.Error(err))
		summary.Errors++
		return
	case patient.FullName != "":
		patientName = patient.FullName
	}

	tablets, err := e.store.ListTablets(ctx, group.ID)
	if err != nil {
		log.Error("Failed to list tablets, skipping group", zap.Error(err))
		summary.Errors++
		return
	}

	for i := range tablets {
		e.runTablet(ctx, log, group, patientName, &tablets[i], now, summary)
	}
}

func (e *Engine) runTablet(ctx context.Context, log *zap.Logger, group *store.PatientGroup, patientName string, tablet *store.Tablet, now time.Time, summary *RunSummary) {
	log = log.With(zap.String("tablet_id", tablet.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while evaluating tablet", zap.Any("recover", r))
			summary.add(ItemResult{
				GroupID: group.ID,
				Key:     OccurrenceKey{TabletID: tablet.ID, Date: schedule.DateString(now)},
				Outcome: OutcomeError,
				Err:     fmt.Errorf("panic: %v", r),
			})
		}
	}()

	rec, reason := scanTablet(tablet, now)
	if reason != "" {
		log.Debug("Tablet skipped", zap.String("reason", string(reason)))
		summary.TabletsSkipped++
		return
	}

	for _, slot := range rec.Slots {
		summary.Checked++
		summary.add(e.evaluate(ctx, log, group, patientName, tablet, rec, slot, now))
	}
}

func (e *Engine) evaluate(ctx context.Context, log *zap.Logger, group *store.PatientGroup, patientName string, tablet *store.Tablet, rec schedule.Recurrence, slot schedule.Slot, now time.Time) ItemResult {
	key := OccurrenceKey{TabletID: tablet.ID, Date: schedule.DateString(now), ScheduledTime: slot.Raw}
	res := ItemResult{GroupID: group.ID, Key: key}

	if slot.Err != nil {
		log.Warn("Error parsing time", zap.String("time", slot.Raw), zap.Error(slot.Err))
		res.Outcome = OutcomeSkipped
		res.Err = slot.Err
		return res
	}
	if !rec.Due(slot, now) {
		res.Outcome = OutcomeNotDue
		return res
	}

	medication := tablet.Medication.Name
	created, err := e.recorder.RecordMissed(ctx, group.ID, key, medication)
	if err != nil {
		log.Error("Failed to record missed dose", zap.String("occurrence", key.String()), zap.Error(err))
		res.Outcome = OutcomeError
		res.Err = err
		return res
	}
	if !created {
		res.Outcome = OutcomeAlreadyLogged
		return res
	}

	log.Info("MISSED",
		zap.String("medication", medication),
		zap.String("scheduled_time", slot.Raw),
		zap.String("patient", patientName),
	)

	counts := e.notifier.NotifyMissed(ctx, MissedDose{
		GroupID:        group.ID,
		PatientUID:     group.PatientUID,
		PatientName:    patientName,
		MedicationName: medication,
		ScheduledTime:  slot.Raw,
	})
	res.Outcome = OutcomeMissed
	res.Sent = counts.Sent
	res.Failed = counts.Failed
	return res
}
