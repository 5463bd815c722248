package consultation

import (
	"context"

	"github.com/google/uuid"
)

type ConsultationRepository interface {
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Update(ctx context.Context, c *Consultation) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns consultations newest first, optionally for one patient.
	List(ctx context.Context, patientID *uuid.UUID, limit, offset int) ([]*Consultation, int, error)
	LatestForPatient(ctx context.Context, patientID uuid.UUID) (*Consultation, error)
}

type AudioRepository interface {
	Create(ctx context.Context, a *Audio) error
	GetByID(ctx context.Context, id uuid.UUID) (*Audio, error)
	ListByConsultations(ctx context.Context, consultationIDs []uuid.UUID) ([]*Audio, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Reset puts the audio back to PROCESSING and clears every result and
	// error field.
	Reset(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, t Transcript) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
}
