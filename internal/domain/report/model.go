package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/jobs"
)

type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusApproved      Status = "APPROVED"
	StatusDelivered     Status = "DELIVERED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusApproved, StatusDelivered:
		return true
	}
	return false
}

// Report is a generated clinical report. It is the job record of the
// generation job and is created as PROCESSING/DRAFT when generation is
// requested.
type Report struct {
	ID                  uuid.UUID        `db:"id" json:"id"`
	ConsultationID      uuid.UUID        `db:"consultation_id" json:"consultation_id"`
	PatientID           uuid.UUID        `db:"patient_id" json:"patient_id"`
	GeneratedBy         uuid.UUID        `db:"generated_by" json:"generated_by"`
	FullReportContent   *string          `db:"full_report_content" json:"full_report_content,omitempty"`
	Summary             *string          `db:"summary" json:"summary,omitempty"`
	MainFindings        []string         `db:"main_findings" json:"main_findings,omitempty"`
	Recommendations     []string         `db:"recommendations" json:"recommendations,omitempty"`
	RedBloodCells       *string          `db:"red_blood_cells" json:"red_blood_cells,omitempty"`
	WhiteBloodCells     *string          `db:"white_blood_cells" json:"white_blood_cells,omitempty"`
	Platelets           *string          `db:"platelets" json:"platelets,omitempty"`
	Plasma              *string          `db:"plasma" json:"plasma,omitempty"`
	Supplementation     *string          `db:"supplementation" json:"supplementation,omitempty"`
	Phytotherapy        *string          `db:"phytotherapy" json:"phytotherapy,omitempty"`
	NutritionalGuidance *string          `db:"nutritional_guidance" json:"nutritional_guidance,omitempty"`
	Status              Status           `db:"status" json:"status"`
	AIGenerated         bool             `db:"ai_generated" json:"ai_generated"`
	AIModel             *string          `db:"ai_model" json:"ai_model,omitempty"`
	ProcessingStatus    jobs.Status      `db:"processing_status" json:"processing_status"`
	ProcessingError     *string          `db:"processing_error" json:"processing_error,omitempty"`
	ReviewedAt          *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
	Patient             *PatientRef      `json:"patient,omitempty"`
	Consultation        *ConsultationRef `json:"consultation,omitempty"`
}

type PatientRef struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Phone    string    `json:"phone"`
}

type ConsultationRef struct {
	ID   uuid.UUID `json:"id"`
	Date time.Time `json:"date"`
}

// Generated is what a successful generation writes onto a report.
type Generated struct {
	Content             string
	Summary             string
	MainFindings        []string
	Recommendations     []string
	RedBloodCells       string
	WhiteBloodCells     string
	Platelets           string
	Plasma              string
	Supplementation     string
	Phytotherapy        string
	NutritionalGuidance string
	Model               string
}

type GenerateInput struct {
	PatientID      *uuid.UUID `json:"patient_id"`
	ConsultationID *uuid.UUID `json:"consultation_id"`
	ConductedBy    *uuid.UUID `json:"conducted_by"`
}

// UpdateInput lists the fields a reviewer may edit. Nil fields are left as
// stored.
type UpdateInput struct {
	RedBloodCells       *string `json:"red_blood_cells"`
	WhiteBloodCells     *string `json:"white_blood_cells"`
	Platelets           *string `json:"platelets"`
	Plasma              *string `json:"plasma"`
	Supplementation     *string `json:"supplementation"`
	Phytotherapy        *string `json:"phytotherapy"`
	NutritionalGuidance *string `json:"nutritional_guidance"`
	Status              *Status `json:"status"`
}

func (in UpdateInput) apply(r *Report, now time.Time) {
	for _, f := range []struct {
		src *string
		dst **string
	}{
		{in.RedBloodCells, &r.RedBloodCells},
		{in.WhiteBloodCells, &r.WhiteBloodCells},
		{in.Platelets, &r.Platelets},
		{in.Plasma, &r.Plasma},
		{in.Supplementation, &r.Supplementation},
		{in.Phytotherapy, &r.Phytotherapy},
		{in.NutritionalGuidance, &r.NutritionalGuidance},
	} {
		if f.src != nil {
			*f.dst = f.src
		}
	}
	if in.Status != nil {
		r.Status = *in.Status
		if r.Status == StatusApproved {
			r.ReviewedAt = &now
		}
	}
}
