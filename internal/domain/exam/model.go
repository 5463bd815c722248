package exam

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/jobs"
)

type FileType string

const (
	FileTypePDF   FileType = "pdf"
	FileTypeImage FileType = "image"
)

// Finding is one notable parameter or observation reported by the analysis.
type Finding struct {
	Parameter   string `json:"parameter,omitempty"`
	Value       string `json:"value,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Status      string `json:"status,omitempty"`
	Description string `json:"description,omitempty"`
}

// AbnormalValue is a parameter outside its reference range.
type AbnormalValue struct {
	Parameter string `json:"parameter"`
	Value     string `json:"value"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Exam is an uploaded lab result. It is the job record of the analysis job:
// the result fields stay empty until processing_status is COMPLETED.
type Exam struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	PatientID        uuid.UUID       `db:"patient_id" json:"patient_id"`
	FileName         string          `db:"file_name" json:"file_name"`
	FileURL          string          `db:"file_url" json:"file_url"`
	FileType         FileType        `db:"file_type" json:"file_type"`
	FileSize         int64           `db:"file_size" json:"file_size"`
	Category         *string         `db:"category" json:"category,omitempty"`
	SubCategory      *string         `db:"sub_category" json:"sub_category,omitempty"`
	ExamType         *string         `db:"exam_type" json:"exam_type,omitempty"`
	ExamDate         *time.Time      `db:"exam_date" json:"exam_date,omitempty"`
	ExtractedData    map[string]any  `db:"extracted_data" json:"extracted_data,omitempty"`
	KeyFindings      []Finding       `db:"key_findings" json:"key_findings,omitempty"`
	AbnormalValues   []AbnormalValue `db:"abnormal_values" json:"abnormal_values,omitempty"`
	Recommendations  []string        `db:"recommendations" json:"recommendations,omitempty"`
	AISummary        *string         `db:"ai_summary" json:"ai_summary,omitempty"`
	AIModel          *string         `db:"ai_model" json:"ai_model,omitempty"`
	Confidence       *float64        `db:"confidence" json:"confidence,omitempty"`
	ProcessingStatus jobs.Status     `db:"processing_status" json:"processing_status"`
	ProcessingError  *string         `db:"processing_error" json:"processing_error,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	Patient          *PatientRef     `json:"patient,omitempty"`
}

type PatientRef struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
}

// Analysis is the canonical result every analysis response is normalized
// into, whatever shape the model answered with.
type Analysis struct {
	Category        string          `json:"category"`
	SubCategory     string          `json:"sub_category,omitempty"`
	ExamType        string          `json:"exam_type"`
	ExamDate        *time.Time      `json:"exam_date,omitempty"`
	ExtractedData   map[string]any  `json:"extracted_data"`
	KeyFindings     []Finding       `json:"key_findings"`
	AbnormalValues  []AbnormalValue `json:"abnormal_values"`
	Summary         string          `json:"summary"`
	Recommendations []string        `json:"recommendations"`
	Confidence      float64         `json:"confidence"`
	Model           string          `json:"ai_model"`
}

// Reference classifies a numeric result against its reference range.
type Reference string

const (
	ReferenceNormal       Reference = "NORMAL"
	ReferenceLow          Reference = "LOW"
	ReferenceHigh         Reference = "HIGH"
	ReferenceCriticalLow  Reference = "CRITICAL_LOW"
	ReferenceCriticalHigh Reference = "CRITICAL_HIGH"
)

// criticalDeviation is the relative distance beyond a limit at which a value
// becomes critical.
const criticalDeviation = 0.3

// CompareWithReference classifies value against the [minRef, maxRef] range.
func CompareWithReference(value, minRef, maxRef float64) Reference {
	if value < minRef {
		if (minRef-value)/minRef > criticalDeviation {
			return ReferenceCriticalLow
		}
		return ReferenceLow
	}
	if value > maxRef {
		if (value-maxRef)/maxRef > criticalDeviation {
			return ReferenceCriticalHigh
		}
		return ReferenceHigh
	}
	return ReferenceNormal
}
