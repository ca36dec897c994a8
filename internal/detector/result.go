package detector

import (
	"time"

	"github.com/gmsas95/medwatch/internal/store"
)

// Outcome classifies what happened to one candidate occurrence.
type Outcome string

const (
	OutcomeNotDue        Outcome = "not_due"
	OutcomeAlreadyLogged Outcome = "already_logged"
	OutcomeMissed        Outcome = "missed"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeError         Outcome = "error"
)

// ItemResult is the result for one occurrence.
type ItemResult struct {
	GroupID string
	Key     OccurrenceKey
	Outcome Outcome
	Sent    int
	Failed  int
	Err     error
}

// RunSummary aggregates a whole detection run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Groups              int
	TabletsSkipped      int
	Checked             int
	NotDue              int
	Missed              int
	AlreadyLogged       int
	Skipped             int
	Errors              int
	NotificationsSent   int
	NotificationsFailed int

	Aborted     bool
	AbortReason string

	Items []ItemResult
}

func (s *RunSummary) add(r ItemResult) {
	s.Items = append(s.Items, r)
	switch r.Outcome {
	case OutcomeNotDue:
		s.NotDue++
	case OutcomeAlreadyLogged:
		s.AlreadyLogged++
	case OutcomeMissed:
		s.Missed++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeError:
		s.Errors++
	}
	s.NotificationsSent += r.Sent
	s.NotificationsFailed += r.Failed
}

func (s *RunSummary) abort(reason string) {
	s.Aborted = true
	s.AbortReason = reason
}

// Record converts the summary into its persisted form.
func (s *RunSummary) Record() *store.RunRecord {
	return &store.RunRecord{
		ID:                  s.RunID,
		StartedAt:           s.StartedAt,
		FinishedAt:          s.FinishedAt,
		Groups:              s.Groups,
		TabletsSkipped:      s.TabletsSkipped,
		Checked:             s.Checked,
		NotDue:              s.NotDue,
		Missed:              s.Missed,
		AlreadyLogged:       s.AlreadyLogged,
		Skipped:             s.Skipped,
		Errors:              s.Errors,
		NotificationsSent:   s.NotificationsSent,
		NotificationsFailed: s.NotificationsFailed,
		Aborted:             s.Aborted,
		AbortReason:         s.AbortReason,
	}
}
