package consultation

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/jobs"
)

type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Consultation struct {
	ID                 uuid.UUID   `db:"id" json:"id"`
	PatientID          uuid.UUID   `db:"patient_id" json:"patient_id"`
	ConductedBy        uuid.UUID   `db:"conducted_by" json:"conducted_by"`
	Date               time.Time   `db:"date" json:"date"`
	ChiefComplaint     *string     `db:"chief_complaint" json:"chief_complaint,omitempty"`
	Symptoms           *string     `db:"symptoms" json:"symptoms,omitempty"`
	MedicalHistory     *string     `db:"medical_history" json:"medical_history,omitempty"`
	CurrentMedications *string     `db:"current_medications" json:"current_medications,omitempty"`
	Transcription      *string     `db:"transcription" json:"transcription,omitempty"`
	Status             Status      `db:"status" json:"status"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at" json:"updated_at"`
	Patient            *PatientRef `json:"patient,omitempty"`
	Audios             []*Audio    `json:"audio_recordings"`
}

// PatientRef is the patient summary embedded in consultation listings.
type PatientRef struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Phone    string    `json:"phone"`
	Email    *string   `json:"email,omitempty"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Audio is a recording attached to a consultation. It is the job record of
// the transcription job.
type Audio struct {
	ID                  uuid.UUID   `db:"id" json:"id"`
	ConsultationID      uuid.UUID   `db:"consultation_id" json:"consultation_id"`
	FileURL             string      `db:"file_url" json:"file_url"`
	FileName            string      `db:"file_name" json:"file_name"`
	FileSize            int64       `db:"file_size" json:"file_size"`
	Transcription       *string     `db:"transcription" json:"transcription,omitempty"`
	Duration            *int        `db:"duration" json:"duration,omitempty"`
	Language            *string     `db:"language" json:"language,omitempty"`
	Segments            []Segment   `db:"segments" json:"segments,omitempty"`
	TranscriptionStatus jobs.Status `db:"transcription_status" json:"transcription_status"`
	TranscriptionError  *string     `db:"transcription_error" json:"transcription_error,omitempty"`
	CreatedAt           time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at" json:"updated_at"`
}

// Transcript is the result a transcription job writes onto an Audio.
type Transcript struct {
	Text     string
	Duration *int
	Language string
	Segments []Segment
}

type CreateInput struct {
	PatientID      *uuid.UUID `json:"patient_id"`
	ConductedBy    *uuid.UUID `json:"conducted_by"`
	Date           *time.Time `json:"date"`
	ChiefComplaint *string    `json:"chief_complaint"`
	Symptoms       *string    `json:"symptoms"`
	Status         Status     `json:"status"`
}

// UpdateInput lists the fields a consultation update may change. Nil fields
// are left as stored.
type UpdateInput struct {
	ChiefComplaint     *string `json:"chief_complaint"`
	Symptoms           *string `json:"symptoms"`
	MedicalHistory     *string `json:"medical_history"`
	CurrentMedications *string `json:"current_medications"`
	Transcription      *string `json:"transcription"`
	Status             *Status `json:"status"`
}

func (in UpdateInput) apply(c *Consultation) {
	if in.ChiefComplaint != nil {
		c.ChiefComplaint = in.ChiefComplaint
	}
	if in.Symptoms != nil {
		c.Symptoms = in.Symptoms
	}
	if in.MedicalHistory != nil {
		c.MedicalHistory = in.MedicalHistory
	}
	if in.CurrentMedications != nil {
		c.CurrentMedications = in.CurrentMedications
	}
	if in.Transcription != nil {
		c.Transcription = in.Transcription
	}
	if in.Status != nil {
		c.Status = *in.Status
	}
}
