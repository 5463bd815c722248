package patient

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Search lists patients ordered by name. An empty query matches all.
	Search(ctx context.Context, query string, limit, offset int) ([]*ListItem, int, error)
	IncrementConsultations(ctx context.Context, id uuid.UUID) error

	RecentConsultations(ctx context.Context, patientID uuid.UUID, n int) ([]ConsultationSummary, error)
	RecentReports(ctx context.Context, patientID uuid.UUID, n int) ([]ReportSummary, error)
	Exams(ctx context.Context, patientID uuid.UUID) ([]ExamSummary, error)
}
