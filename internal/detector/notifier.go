package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/gmsas95/medwatch/internal/notify"
	"github.com/gmsas95/medwatch/internal/push"
	"github.com/gmsas95/medwatch/internal/store"
	"go.uber.org/zap"
)

const (
	missedTitle        = "Medication Missed"
	missedType         = "medication_missed"
	defaultPatientName = "Patient"
)

// Notifier alerts a patient's caregivers about a newly recorded miss.
type Notifier struct {
	store      Store
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
}

// NewNotifier creates a caregiver notifier
func NewNotifier(st Store, dispatcher *notify.Dispatcher, logger *zap.Logger) *Notifier {
	return &Notifier{
		store:      st,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// MissedDose describes the dose the alert is about.
type MissedDose struct {
	GroupID        string
	PatientUID     string
	PatientName    string
	MedicationName string
	ScheduledTime  string
}

// NotifyMissed sends one multicast to every caregiver token it can find. A
// dispatch error counts every target token as failed.
func (n *Notifier) NotifyMissed(ctx context.Context, dose MissedDose) notify.Counts {
	tokens := n.CaregiverTokens(ctx, dose.GroupID, dose.PatientUID)
	if len(tokens) == 0 {
		return notify.Counts{}
	}

	counts, err := n.dispatcher.Dispatch(ctx, notify.SourceDetector, &push.Message{
		Tokens: tokens,
		Title:  missedTitle,
		Body:   fmt.Sprintf("%s missed %s (scheduled for %s)", dose.PatientName, dose.MedicationName, dose.ScheduledTime),
		Data: map[string]string{
			"type":           missedType,
			"medicationName": dose.MedicationName,
			"scheduledTime":  dose.ScheduledTime,
		},
	})
	if err != nil {
		n.logger.Error("Failed to dispatch missed-dose alert",
			zap.String("group_id", dose.GroupID),
			zap.Int("tokens", len(tokens)),
			zap.Error(err),
		)
		return notify.Counts{Failed: len(tokens)}
	}
	return counts
}

// CaregiverTokens resolves the group's caregivers, excluding the patient, to
// their distinct push tokens. Caregivers without a token are left out; lookup
// failures are logged and yield fewer tokens rather than an error.
func (n *Notifier) CaregiverTokens(ctx context.Context, groupID, patientUID string) []string {
	group, err := n.store.GetPatientGroup(ctx, groupID)
	if err != nil {
		n.logger.Error("Error getting caregiver tokens", zap.String("group_id", groupID), zap.Error(err))
		return nil
	}

	seen := make(map[string]bool)
	var tokens []string
	for _, id := range group.CaregiverIDs {
		if id == patientUID || id == group.PatientUID {
			continue
		}

		user, err := n.store.GetUser(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			n.logger.Warn("Error getting caregiver",
				zap.String("group_id", groupID),
				zap.String("caregiver_id", id),
				zap.Error(err),
			)
			continue
		}

		tok := user.Token()
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}
	return tokens
}
