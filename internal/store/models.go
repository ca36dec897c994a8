package store

import "time"

// Log statuses written by the detector and the mobile client.
const (
	StatusMissed = "missed"
	StatusTaken  = "taken"
)

// User is an app user, either a patient or a caregiver.
type User struct {
	ID        string    `gorm:"primaryKey" json:"id" yaml:"id"`
	FullName  string    `json:"fullName" yaml:"fullName"`
	FCMToken  *string   `json:"fcmToken,omitempty" yaml:"fcmToken"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Token returns the user's push token, or "" if none is registered.
func (u *User) Token() string {
	if u == nil || u.FCMToken == nil {
		return ""
	}
	return *u.FCMToken
}

// PatientGroup ties one patient to the caregivers allowed to see their alerts.
type PatientGroup struct {
	ID           string    `gorm:"primaryKey" json:"id" yaml:"id"`
	PatientUID   string    `gorm:"column:patient_uid;index" json:"patient_uid" yaml:"patient_uid"`
	CaregiverIDs []string  `gorm:"column:caregivers;type:text;serializer:json" json:"caregivers" yaml:"caregivers"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"-"`

	Tablets []Tablet        `gorm:"-" json:"-" yaml:"tablets"`
	Logs    []MedicationLog `gorm:"-" json:"-" yaml:"logs"`
}

// Medication names what a tablet is.
type Medication struct {
	Name string `json:"name" yaml:"name"`
}

// Schedule is the raw recurrence as the mobile client stores it.
type Schedule struct {
	DaysOfWeek []string `json:"daysOfWeek" yaml:"daysOfWeek"`
	Times      []string `json:"times" yaml:"times"`
}

// CaregiverSettings controls whether and when caregivers hear about a missed dose.
type CaregiverSettings struct {
	NotifyCaregivers bool   `json:"notifyCaregivers" yaml:"notifyCaregivers"`
	LateWindow       string `json:"lateWindow" yaml:"lateWindow"`
}

// Tablet is one medication schedule unit inside a patient group. The nested
// parts are nullable: a tablet the client never finished configuring has some
// of them missing.
type Tablet struct {
	PatientGroupID    string             `gorm:"primaryKey" json:"patient_group_id" yaml:"-"`
	ID                string             `gorm:"primaryKey" json:"id" yaml:"id"`
	Medication        *Medication        `gorm:"type:text;serializer:json" json:"medication,omitempty" yaml:"medication"`
	Schedule          *Schedule          `gorm:"type:text;serializer:json" json:"schedule,omitempty" yaml:"schedule"`
	CaregiverSettings *CaregiverSettings `gorm:"type:text;serializer:json" json:"caregiverSettings,omitempty" yaml:"caregiverSettings"`
	CreatedAt         time.Time          `json:"created_at" yaml:"-"`
	UpdatedAt         time.Time          `json:"updated_at" yaml:"-"`
}

// MedicationLog records the outcome of one scheduled dose. ID is the
// occurrence key and is unique within a patient group.
type MedicationLog struct {
	PatientGroupID string    `gorm:"primaryKey" json:"patient_group_id" yaml:"-"`
	ID             string    `gorm:"primaryKey" json:"id" yaml:"id"`
	TabletID       string    `gorm:"index" json:"tabletId" yaml:"tabletId"`
	MedicationName string    `json:"medicationName" yaml:"medicationName"`
	ScheduledTime  string    `json:"scheduledTime" yaml:"scheduledTime"`
	Date           string    `gorm:"index" json:"date" yaml:"date"`
	Status         string    `json:"status" yaml:"status"`
	CreatedAt      time.Time `json:"createdAt" yaml:"-"`
}

// RunRecord is the persisted summary of one detection run.
type RunRecord struct {
	ID                  string    `json:"id"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	Groups              int       `json:"groups"`
	TabletsSkipped      int       `json:"tablets_skipped"`
	Checked             int       `json:"checked"`
	NotDue              int       `json:"not_due"`
	Missed              int       `json:"missed"`
	AlreadyLogged       int       `json:"already_logged"`
	Skipped             int       `json:"skipped"`
	Errors              int       `json:"errors"`
	NotificationsSent   int       `json:"notifications_sent"`
	NotificationsFailed int       `json:"notifications_failed"`
	Aborted             bool      `json:"aborted"`
	AbortReason         string    `json:"abort_reason,omitempty"`
}
