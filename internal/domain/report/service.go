package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/consultation"
	"github.com/clinic/clinic/internal/domain/exam"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/jobs"
)

// AutoChiefComplaint is the chief complaint of the consultation created for
// a report requested without one.
const AutoChiefComplaint = "Análise de sangue vivo e avaliação geral"

type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*staff.User, error)
}

// ConsultationStore is the slice of the consultation service reports need.
type ConsultationStore interface {
	GetConsultation(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error)
	LatestForPatient(ctx context.Context, patientID uuid.UUID) (*consultation.Consultation, error)
	CreateRecord(ctx context.Context, c *consultation.Consultation) error
}

// ExamSource supplies the analyzed exams a report is built from.
type ExamSource interface {
	CompletedForReport(ctx context.Context, patientID uuid.UUID) ([]*exam.Exam, error)
}

type Deps struct {
	Reports       ReportRepository
	Patients      PatientDirectory
	Users         UserDirectory
	Consultations ConsultationStore
	Exams         ExamSource
	Tx            db.TxRunner
	Messenger     Messenger
	Model         string
	Runner        *jobs.Runner
	Logger        zerolog.Logger
}

type Service struct {
	reports       ReportRepository
	patients      PatientDirectory
	users         UserDirectory
	consultations ConsultationStore
	exams         ExamSource
	tx            db.TxRunner
	messenger     Messenger
	model         string
	runner        *jobs.Runner
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		reports:       d.Reports,
		patients:      d.Patients,
		users:         d.Users,
		consultations: d.Consultations,
		exams:         d.Exams,
		tx:            d.Tx,
		messenger:     d.Messenger,
		model:         d.Model,
		runner:        d.Runner,
		logger:        d.Logger,
		now:           time.Now,
	}
}

func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	r, err := s.reports.GetByID(ctx, id)
	if apperr.IsNotFound(err) {
		return nil, apperr.NotFound("report not found")
	}
	return r, err
}

func (s *Service) ListReports(ctx context.Context, limit, offset int) ([]*Report, int, error) {
	return s.reports.List(ctx, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Report, error) {
	return s.reports.ListByPatient(ctx, patientID)
}

// Generate validates the request, creates the report as PROCESSING/DRAFT
// and starts the generation job. With wait the job runs in the caller and
// the final record is returned.
func (s *Service) Generate(ctx context.Context, in GenerateInput, wait bool) (*Report, error) {
	r, prompt, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	if r.ProcessingStatus == jobs.StatusFailed {
		return r, nil
	}
	if !wait {
		s.startGeneration(r.ID, prompt)
		return r, nil
	}
	// The outcome is on the record; the collaborator error is not returned.
	_ = s.runGeneration(r.ID, prompt)
	return s.GetReport(ctx, r.ID)
}

func (s *Service) prepare(ctx context.Context, in GenerateInput) (*Report, string, error) {
	if in.PatientID == nil || *in.PatientID == uuid.Nil {
		return nil, "", apperr.Required("patient_id")
	}
	if in.ConductedBy == nil || *in.ConductedBy == uuid.Nil {
		return nil, "", apperr.Required("conducted_by")
	}
	p, err := s.patients.GetPatient(ctx, *in.PatientID)
	if err != nil {
		return nil, "", err
	}
	user, err := s.users.GetUser(ctx, *in.ConductedBy)
	if err != nil {
		return nil, "", err
	}

	// subject is the consultation the prompt describes: the requested one,
	// or the patient's latest when none was requested.
	var cons, subject *consultation.Consultation
	if in.ConsultationID != nil && *in.ConsultationID != uuid.Nil {
		if cons, err = s.consultations.GetConsultation(ctx, *in.ConsultationID); err != nil {
			return nil, "", err
		}
		if cons.PatientID != p.ID {
			return nil, "", apperr.NotFound("consultation not found")
		}
		subject = cons
	} else {
		subject, err = s.consultations.LatestForPatient(ctx, p.ID)
		if err != nil && !apperr.IsNotFound(err) {
			return nil, "", err
		}
	}

	r := &Report{
		PatientID:        p.ID,
		GeneratedBy:      user.ID,
		Status:           StatusDraft,
		AIGenerated:      true,
		ProcessingStatus: jobs.StatusProcessing,
		Patient:          &PatientRef{ID: p.ID, FullName: p.FullName, Phone: p.Phone},
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if cons == nil {
			complaint := AutoChiefComplaint
			cons = &consultation.Consultation{
				PatientID:      p.ID,
				ConductedBy:    user.ID,
				ChiefComplaint: &complaint,
				Status:         consultation.StatusCompleted,
			}
			if err := s.consultations.CreateRecord(ctx, cons); err != nil {
				return err
			}
		}
		r.ConsultationID = cons.ID
		return s.reports.Create(ctx, r)
	})
	if err != nil {
		return nil, "", err
	}
	r.Consultation = &ConsultationRef{ID: cons.ID, Date: cons.Date}
	if subject == nil {
		subject = cons
	}

	// Once the record exists a prompt failure is reported on it, like any
	// other generation failure.
	prompt, err := s.buildPrompt(ctx, p, subject)
	if err != nil {
		if ferr := s.fail(ctx, r, err); ferr != nil {
			return nil, "", ferr
		}
		return r, "", nil
	}
	return r, prompt, nil
}

func (s *Service) buildPrompt(ctx context.Context, p *patient.Patient, c *consultation.Consultation) (string, error) {
	exams, err := s.exams.CompletedForReport(ctx, p.ID)
	if err != nil {
		return "", err
	}
	return buildPrompt(promptInput{Patient: p, Consultation: c, Exams: exams, Now: s.now()}), nil
}

// fail records a failure that happened before the job could start, so the
// record does not stay PROCESSING.
func (s *Service) fail(ctx context.Context, r *Report, cause error) error {
	msg := generationError(cause)
	if err := s.reports.Fail(ctx, r.ID, msg); err != nil {
		s.logger.Error().Err(err).Str("report_id", r.ID.String()).Msg("failed to record report failure")
		return err
	}
	r.ProcessingStatus, r.ProcessingError = jobs.StatusFailed, &msg
	return nil
}

// Regenerate clears the generated content, puts the report back to
// PROCESSING/DRAFT and starts a new generation from current patient data.
// A generation still running for the same report is not stopped and the
// last one to finish wins.
func (s *Service) Regenerate(ctx context.Context, id uuid.UUID) (*Report, error) {
	r, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.patients.GetPatient(ctx, r.PatientID)
	if err != nil {
		return nil, err
	}
	cons, err := s.consultations.GetConsultation(ctx, r.ConsultationID)
	if err != nil {
		return nil, err
	}
	prompt, err := s.buildPrompt(ctx, p, cons)
	if err != nil {
		return nil, err
	}
	if err := s.reports.Reset(ctx, r.ID); err != nil {
		return nil, err
	}
	clearGenerated(r)

	s.startGeneration(r.ID, prompt)
	return r, nil
}

func clearGenerated(r *Report) {
	r.ProcessingStatus, r.ProcessingError, r.Status = jobs.StatusProcessing, nil, StatusDraft
	r.FullReportContent, r.Summary, r.MainFindings, r.Recommendations = nil, nil, nil, nil
	r.RedBloodCells, r.WhiteBloodCells, r.Platelets, r.Plasma = nil, nil, nil, nil
	r.Supplementation, r.Phytotherapy, r.NutritionalGuidance, r.AIModel = nil, nil, nil, nil
}

// UpdateReport applies a reviewer's edits. Approving a report stamps
// reviewed_at.
func (s *Service) UpdateReport(ctx context.Context, id uuid.UUID, in UpdateInput) (*Report, error) {
	r, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, apperr.Validationf("invalid report status: %s", *in.Status)
	}
	in.apply(r, s.now())
	if err := s.reports.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) DeleteReport(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetReport(ctx, id); err != nil {
		return err
	}
	return s.reports.Delete(ctx, id)
}
