package patient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Patient struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	FullName           string     `db:"full_name" json:"full_name"`
	Email              *string    `db:"email" json:"email,omitempty"`
	Phone              string     `db:"phone" json:"phone"`
	CPF                *string    `db:"cpf" json:"cpf,omitempty"`
	BirthDate          Date       `db:"birth_date" json:"birth_date"`
	Gender             *string    `db:"gender" json:"gender,omitempty"`
	Address            *string    `db:"address" json:"address,omitempty"`
	City               *string    `db:"city" json:"city,omitempty"`
	State              *string    `db:"state" json:"state,omitempty"`
	ZipCode            *string    `db:"zip_code" json:"zip_code,omitempty"`
	BloodType          *string    `db:"blood_type" json:"blood_type,omitempty"`
	Allergies          *string    `db:"allergies" json:"allergies,omitempty"`
	CurrentMedications *string    `db:"current_medications" json:"current_medications,omitempty"`
	MedicalHistory     *string    `db:"medical_history" json:"medical_history,omitempty"`
	Notes              *string    `db:"notes" json:"notes,omitempty"`
	ConsentGiven       bool       `db:"consent_given" json:"consent_given"`
	ConsentDate        *time.Time `db:"consent_date" json:"consent_date,omitempty"`
	ConsentVersion     *string    `db:"consent_version" json:"consent_version,omitempty"`
	TotalConsultations int        `db:"total_consultations" json:"total_consultations"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Age is the difference between the current year and the birth year, or
// false when the birth date is unknown.
func (p *Patient) Age(now time.Time) (int, bool) {
	if p.BirthDate.IsZero() {
		return 0, false
	}
	return now.Year() - p.BirthDate.Year(), true
}

// Counts holds the number of records that reference a patient.
type Counts struct {
	Consultations int `json:"consultations"`
	Reports       int `json:"reports"`
	Exams         int `json:"exams"`
}

// ListItem is a patient row in the directory listing.
type ListItem struct {
	*Patient
	Count Counts `json:"_count"`
}

type ConsultationSummary struct {
	ID             uuid.UUID `json:"id"`
	Date           time.Time `json:"date"`
	ChiefComplaint *string   `json:"chief_complaint,omitempty"`
	Status         string    `json:"status"`
}

type ReportSummary struct {
	ID               uuid.UUID `json:"id"`
	Summary          *string   `json:"summary,omitempty"`
	Status           string    `json:"status"`
	ProcessingStatus string    `json:"processing_status"`
	CreatedAt        time.Time `json:"created_at"`
}

type ExamSummary struct {
	ID               uuid.UUID  `json:"id"`
	FileName         string     `json:"file_name"`
	FileURL          string     `json:"file_url"`
	Category         *string    `json:"category,omitempty"`
	ExamType         *string    `json:"exam_type,omitempty"`
	ExamDate         *time.Time `json:"exam_date,omitempty"`
	ProcessingStatus string     `json:"processing_status"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Detail is a patient with its most recent clinical activity.
type Detail struct {
	*Patient
	Consultations []ConsultationSummary `json:"consultations"`
	Reports       []ReportSummary       `json:"reports"`
	Exams         []ExamSummary         `json:"exams"`
}

const dateLayout = "2006-01-02"

// Date is a calendar date stored in a DATE column. The zero value is NULL.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

// UnmarshalJSON accepts "2006-01-02" as well as full RFC 3339 timestamps.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	y, m, day := t.Date()
	*d = NewDate(y, m, day)
	return nil
}

// ScanDate implements pgtype.DateScanner.
func (d *Date) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = v.Time
	return nil
}

// DateValue implements pgtype.DateValuer.
func (d Date) DateValue() (pgtype.Date, error) {
	if d.IsZero() {
		return pgtype.Date{}, nil
	}
	return pgtype.Date{Time: d.Time, Valid: true}, nil
}
