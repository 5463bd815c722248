package report

import (
	"context"

	"github.com/google/uuid"
)

type ReportRepository interface {
	Create(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*Report, error)
	List(ctx context.Context, limit, offset int) ([]*Report, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Report, error)
	// Update writes the reviewer-editable fields, status and reviewed_at.
	Update(ctx context.Context, r *Report) error
	Delete(ctx context.Context, id uuid.UUID) error

	// Reset puts a report back to PROCESSING/DRAFT with every generated
	// field and the error cleared.
	Reset(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, g Generated) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
}
