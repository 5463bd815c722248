package appointment

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeConsultation Type = "CONSULTATION"
	TypeFollowUp     Type = "FOLLOW_UP"
	TypeExam         Type = "EXAM"
	TypeReturn       Type = "RETURN"
	TypeOther        Type = "OTHER"
)

func (t Type) Valid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeExam, TypeReturn, TypeOther:
		return true
	}
	return false
}

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// SyncStatus is the outcome of the last calendar push.
type SyncStatus string

const (
	SyncStatusSynced SyncStatus = "SYNCED"
	SyncStatusFailed SyncStatus = "FAILED"
)

type Appointment struct {
	ID                 uuid.UUID   `db:"id" json:"id"`
	PatientID          uuid.UUID   `db:"patient_id" json:"patient_id"`
	UserID             uuid.UUID   `db:"user_id" json:"user_id"`
	Title              string      `db:"title" json:"title"`
	Description        *string     `db:"description" json:"description,omitempty"`
	StartTime          time.Time   `db:"start_time" json:"start_time"`
	EndTime            time.Time   `db:"end_time" json:"end_time"`
	Duration           int         `db:"duration" json:"duration"`
	Type               Type        `db:"type" json:"type"`
	Location           *string     `db:"location" json:"location,omitempty"`
	IsOnline           bool        `db:"is_online" json:"is_online"`
	MeetingURL         *string     `db:"meeting_url" json:"meeting_url,omitempty"`
	Notes              *string     `db:"notes" json:"notes,omitempty"`
	Status             Status      `db:"status" json:"status"`
	CancellationReason *string     `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	GoogleEventID      *string     `db:"google_event_id" json:"google_event_id,omitempty"`
	AppleEventUID      *string     `db:"apple_event_uid" json:"apple_event_uid,omitempty"`
	SyncStatus         *SyncStatus `db:"sync_status" json:"sync_status,omitempty"`
	SyncError          *string     `db:"sync_error" json:"sync_error,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at" json:"updated_at"`
	Patient            *PatientRef `json:"patient,omitempty"`
	User               *UserRef    `json:"user,omitempty"`
}

type PatientRef struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Email    *string   `json:"email,omitempty"`
	Phone    string    `json:"phone"`
}

type UserRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// minutesBetween is the rounded length of [start, end] in minutes.
func minutesBetween(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Minutes()))
}

// Filter narrows a listing. StartDate and EndDate bound start_time
// inclusively.
type Filter struct {
	PatientID *uuid.UUID
	UserID    *uuid.UUID
	Status    *Status
	StartDate *time.Time
	EndDate   *time.Time
}

type CreateInput struct {
	PatientID   *uuid.UUID `json:"patient_id"`
	UserID      *uuid.UUID `json:"user_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Type        Type       `json:"type"`
	Location    *string    `json:"location"`
	IsOnline    bool       `json:"is_online"`
	MeetingURL  *string    `json:"meeting_url"`
	Notes       *string    `json:"notes"`
}

// UpdateInput is a partial update; nil fields are left as stored.
type UpdateInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Type        *Type      `json:"type"`
	Location    *string    `json:"location"`
	IsOnline    *bool      `json:"is_online"`
	MeetingURL  *string    `json:"meeting_url"`
	Notes       *string    `json:"notes"`
	Status      *Status    `json:"status"`
}

func (in UpdateInput) apply(a *Appointment) {
	if in.Title != nil {
		a.Title = *in.Title
	}
	if in.Description != nil {
		a.Description = in.Description
	}
	if in.StartTime != nil {
		a.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		a.EndTime = *in.EndTime
	}
	if in.StartTime != nil || in.EndTime != nil {
		a.Duration = minutesBetween(a.StartTime, a.EndTime)
	}
	if in.Type != nil {
		a.Type = *in.Type
	}
	if in.Location != nil {
		a.Location = in.Location
	}
	if in.IsOnline != nil {
		a.IsOnline = *in.IsOnline
	}
	if in.MeetingURL != nil {
		a.MeetingURL = in.MeetingURL
	}
	if in.Notes != nil {
		a.Notes = in.Notes
	}
	if in.Status != nil {
		a.Status = *in.Status
	}
}

// SyncResult is what a calendar push writes back onto an appointment.
type SyncResult struct {
	GoogleEventID *string
	AppleEventUID *string
	Status        SyncStatus
	Error         *string
}
