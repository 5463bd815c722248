package patient

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/filestore"
)

const (
	recentConsultations = 5
	recentReports       = 5
)

type Service struct {
	patients PatientRepository
	tx       db.TxRunner
	files    filestore.Store
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(patients PatientRepository, tx db.TxRunner, files filestore.Store, logger zerolog.Logger) *Service {
	return &Service{patients: patients, tx: tx, files: files, logger: logger, now: time.Now}
}

func (s *Service) validate(p *Patient) error {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Phone = strings.TrimSpace(p.Phone)
	if p.FullName == "" {
		return apperr.Required("full_name")
	}
	if p.Phone == "" {
		return apperr.Required("phone")
	}
	if p.Email != nil {
		email := strings.TrimSpace(*p.Email)
		if email == "" {
			p.Email = nil
		} else if _, err := mail.ParseAddress(email); err != nil {
			return &apperr.AppError{Code: apperr.CodeValidation, Message: "invalid email address", Field: "email"}
		} else {
			p.Email = &email
		}
	}
	if p.ConsentGiven && p.ConsentDate == nil {
		now := s.now()
		p.ConsentDate = &now
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := s.validate(p); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if apperr.IsNotFound(err) {
		return nil, apperr.NotFound("patient not found")
	}
	return p, err
}

// GetDetail returns the patient with its latest consultations and reports
// plus every exam.
func (s *Service) GetDetail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	p, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &Detail{Patient: p}
	if d.Consultations, err = s.patients.RecentConsultations(ctx, id, recentConsultations); err != nil {
		return nil, err
	}
	if d.Reports, err = s.patients.RecentReports(ctx, id, recentReports); err != nil {
		return nil, err
	}
	if d.Exams, err = s.patients.Exams(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := s.validate(p); err != nil {
		return err
	}
	err := s.patients.Update(ctx, p)
	if apperr.IsNotFound(err) {
		return apperr.NotFound("patient not found")
	}
	return err
}

// DeletePatient removes a patient and, through the schema's cascade, its
// exams and appointments. Patients with consultations or reports cannot be
// deleted. Exam files are unlinked only once the row is gone.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetPatient(ctx, id); err != nil {
		return err
	}
	exams, err := s.patients.Exams(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.patients.Delete(ctx, id)
	}); err != nil {
		return err
	}
	for _, e := range exams {
		filestore.RemoveBestEffort(ctx, s.files, s.logger, e.FileURL)
	}
	s.logger.Info().Str("patient_id", id.String()).Int("exams", len(exams)).Msg("patient deleted")
	return nil
}

func (s *Service) SearchPatients(ctx context.Context, query string, limit, offset int) ([]*ListItem, int, error) {
	return s.patients.Search(ctx, strings.TrimSpace(query), limit, offset)
}

// RecordConsultation bumps the patient's consultation counter.
func (s *Service) RecordConsultation(ctx context.Context, id uuid.UUID) error {
	return s.patients.IncrementConsultations(ctx, id)
}
