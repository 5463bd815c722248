package exam

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/filestore"
	"github.com/clinic/clinic/internal/platform/jobs"
)

const examFolder = "exams"

// reportExamLimit caps the exams fed into a generated report.
const reportExamLimit = 10

var allowedExamTypes = []string{"application/pdf", "image/*"}

// PatientDirectory is the slice of the patient service exams need.
type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type Deps struct {
	Exams       ExamRepository
	Patients    PatientDirectory
	Files       filestore.Store
	Messenger   Messenger
	Model       string
	Runner      *jobs.Runner
	Logger      zerolog.Logger
	MaxFileSize int64
}

type Service struct {
	exams       ExamRepository
	patients    PatientDirectory
	files       filestore.Store
	messenger   Messenger
	model       string
	runner      *jobs.Runner
	logger      zerolog.Logger
	maxFileSize int64
}

func NewService(d Deps) *Service {
	return &Service{
		exams:       d.Exams,
		patients:    d.Patients,
		files:       d.Files,
		messenger:   d.Messenger,
		model:       d.Model,
		runner:      d.Runner,
		logger:      d.Logger,
		maxFileSize: d.MaxFileSize,
	}
}

// Upload stores an exam file for an existing patient, creates its record as
// PROCESSING and starts the analysis job.
func (s *Service) Upload(ctx context.Context, patientID uuid.UUID, name, contentType string, content io.Reader) (*Exam, error) {
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "exame.pdf"
	}
	stored, err := s.files.Save(ctx, filestore.Upload{
		Folder:       examFolder,
		OriginalName: name,
		ContentType:  contentType,
		MaxSize:      s.maxFileSize,
		Allowed:      allowedExamTypes,
	}, content)
	if err != nil {
		return nil, uploadError(err)
	}

	e := &Exam{
		PatientID:        p.ID,
		FileName:         stored.OriginalName,
		FileURL:          stored.URL,
		FileType:         FileTypeFor(stored.ContentType),
		FileSize:         stored.Size,
		ProcessingStatus: jobs.StatusProcessing,
		Patient:          &PatientRef{ID: p.ID, FullName: p.FullName},
	}
	if err := s.exams.Create(ctx, e); err != nil {
		filestore.RemoveBestEffort(ctx, s.files, s.logger, stored.URL)
		return nil, err
	}

	s.startAnalysis(e)
	return e, nil
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, filestore.ErrFileTooLarge):
		return apperr.Validation("exam file exceeds the maximum allowed size")
	case errors.Is(err, filestore.ErrInvalidContentType):
		return apperr.Validation("only PDF and image files are accepted")
	case errors.Is(err, filestore.ErrMissingFileName):
		return apperr.Required("file")
	}
	return apperr.Internal("failed to store exam file", err)
}

func (s *Service) GetExam(ctx context.Context, id uuid.UUID) (*Exam, error) {
	e, err := s.exams.GetByID(ctx, id)
	if apperr.IsNotFound(err) {
		return nil, apperr.NotFound("exam not found")
	}
	return e, err
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Exam, error) {
	return s.exams.ListByPatient(ctx, patientID)
}

// CompletedForReport returns the analyzed exams a report is built from.
func (s *Service) CompletedForReport(ctx context.Context, patientID uuid.UUID) ([]*Exam, error) {
	return s.exams.Completed(ctx, patientID, reportExamLimit)
}

// Reprocess clears every result and error field, sets the exam back to
// PROCESSING and runs the analysis again. With wait the analysis runs in
// the caller and the final record is returned; otherwise the reset record
// is. An analysis still running for the same exam is not stopped and the
// last one to finish wins.
func (s *Service) Reprocess(ctx context.Context, id uuid.UUID, wait bool) (*Exam, error) {
	e, err := s.GetExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.FileURL == "" || e.FileType == "" {
		return nil, apperr.Validation("exam has no file to reprocess")
	}
	if err := s.exams.Reset(ctx, e.ID); err != nil {
		return nil, err
	}
	clearResult(e)

	if !wait {
		s.startAnalysis(e)
		return e, nil
	}
	// The outcome is on the record; the collaborator error is not returned.
	_ = s.runAnalysis(e)
	return s.GetExam(ctx, e.ID)
}

func clearResult(e *Exam) {
	e.ProcessingStatus = jobs.StatusProcessing
	e.ProcessingError = nil
	e.Category, e.SubCategory, e.ExamType, e.ExamDate = nil, nil, nil, nil
	e.ExtractedData, e.KeyFindings, e.AbnormalValues, e.Recommendations = nil, nil, nil, nil
	e.AISummary, e.AIModel, e.Confidence = nil, nil, nil
}

// DeleteExam removes the record and then its file. A file that is already
// gone does not fail the delete.
func (s *Service) DeleteExam(ctx context.Context, id uuid.UUID) error {
	e, err := s.GetExam(ctx, id)
	if err != nil {
		return err
	}
	if err := s.exams.Delete(ctx, e.ID); err != nil {
		return err
	}
	filestore.RemoveBestEffort(ctx, s.files, s.logger, e.FileURL)
	return nil
}
