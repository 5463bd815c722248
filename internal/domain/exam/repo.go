package exam

import (
	"context"

	"github.com/google/uuid"
)

type ExamRepository interface {
	Create(ctx context.Context, e *Exam) error
	GetByID(ctx context.Context, id uuid.UUID) (*Exam, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Exam, error)
	// Completed returns up to limit analyzed exams of a patient, most recent
	// exam date first.
	Completed(ctx context.Context, patientID uuid.UUID, limit int) ([]*Exam, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Reset, Complete and Fail each rewrite every result and error field in
	// a single statement.
	Reset(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, a Analysis) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
}
