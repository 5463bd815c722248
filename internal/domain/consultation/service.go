package consultation

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/filestore"
	"github.com/clinic/clinic/internal/platform/jobs"
)

const audioFolder = "consultations"

// PatientDirectory is the slice of the patient service consultations need.
type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	RecordConsultation(ctx context.Context, id uuid.UUID) error
}

// UserDirectory resolves the staff member conducting a consultation.
type UserDirectory interface {
	Resolve(ctx context.Context, id *uuid.UUID) (*staff.User, error)
}

type Deps struct {
	Consultations ConsultationRepository
	Audios        AudioRepository
	Patients      PatientDirectory
	Users         UserDirectory
	Tx            db.TxRunner
	Files         filestore.Store
	Transcriber   Transcriber
	Runner        *jobs.Runner
	Logger        zerolog.Logger
	MaxAudioSize  int64
}

type Service struct {
	consultations ConsultationRepository
	audios        AudioRepository
	patients      PatientDirectory
	users         UserDirectory
	tx            db.TxRunner
	files         filestore.Store
	transcriber   Transcriber
	runner        *jobs.Runner
	logger        zerolog.Logger
	maxAudioSize  int64
	now           func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		consultations: d.Consultations,
		audios:        d.Audios,
		patients:      d.Patients,
		users:         d.Users,
		tx:            d.Tx,
		files:         d.Files,
		transcriber:   d.Transcriber,
		runner:        d.Runner,
		logger:        d.Logger,
		maxAudioSize:  d.MaxAudioSize,
		now:           time.Now,
	}
}

// CreateConsultation validates the patient and the conducting user, then
// stores the consultation and bumps the patient's consultation counter in
// one transaction. Without an explicit user the oldest registered user is
// used.
func (s *Service) CreateConsultation(ctx context.Context, in CreateInput) (*Consultation, error) {
	if in.PatientID == nil || *in.PatientID == uuid.Nil {
		return nil, apperr.Required("patient_id")
	}
	p, err := s.patients.GetPatient(ctx, *in.PatientID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.Resolve(ctx, in.ConductedBy)
	if err != nil {
		return nil, err
	}

	c := &Consultation{
		PatientID:      p.ID,
		ConductedBy:    user.ID,
		Date:           s.now(),
		ChiefComplaint: in.ChiefComplaint,
		Symptoms:       in.Symptoms,
		Status:         in.Status,
		Audios:         []*Audio{},
	}
	if in.Date != nil && !in.Date.IsZero() {
		c.Date = *in.Date
	}
	if c.Status == "" {
		c.Status = StatusScheduled
	}
	if !c.Status.Valid() {
		return nil, apperr.Validationf("invalid consultation status: %s", c.Status)
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.consultations.Create(ctx, c); err != nil {
			return err
		}
		return s.patients.RecordConsultation(ctx, p.ID)
	})
	if err != nil {
		return nil, err
	}
	c.Patient = &PatientRef{ID: p.ID, FullName: p.FullName, Phone: p.Phone, Email: p.Email}
	return c, nil
}

func (s *Service) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := s.consultations.GetByID(ctx, id)
	if apperr.IsNotFound(err) {
		return nil, apperr.NotFound("consultation not found")
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachAudios(ctx, []*Consultation{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// LatestForPatient returns the most recent consultation of a patient.
func (s *Service) LatestForPatient(ctx context.Context, patientID uuid.UUID) (*Consultation, error) {
	c, err := s.consultations.LatestForPatient(ctx, patientID)
	if apperr.IsNotFound(err) {
		return nil, apperr.NotFound("consultation not found")
	}
	return c, err
}

// CreateRecord stores a consultation built by another workflow without the
// checks CreateConsultation performs. It joins the caller's transaction.
func (s *Service) CreateRecord(ctx context.Context, c *Consultation) error {
	if c.Date.IsZero() {
		c.Date = s.now()
	}
	if c.Status == "" {
		c.Status = StatusScheduled
	}
	if err := s.consultations.Create(ctx, c); err != nil {
		return err
	}
	return s.patients.RecordConsultation(ctx, c.PatientID)
}

func (s *Service) ListConsultations(ctx context.Context, patientID *uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	items, total, err := s.consultations.List(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if err := s.attachAudios(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) attachAudios(ctx context.Context, items []*Consultation) error {
	ids := make([]uuid.UUID, 0, len(items))
	byID := make(map[uuid.UUID]*Consultation, len(items))
	for _, c := range items {
		c.Audios = []*Audio{}
		ids = append(ids, c.ID)
		byID[c.ID] = c
	}
	audios, err := s.audios.ListByConsultations(ctx, ids)
	if err != nil {
		return err
	}
	for _, a := range audios {
		if c, ok := byID[a.ConsultationID]; ok {
			c.Audios = append(c.Audios, a)
		}
	}
	return nil
}

func (s *Service) UpdateConsultation(ctx context.Context, id uuid.UUID, in UpdateInput) (*Consultation, error) {
	c, err := s.GetConsultation(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(c)
	if !c.Status.Valid() {
		return nil, apperr.Validationf("invalid consultation status: %s", c.Status)
	}
	if err := s.consultations.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteConsultation removes the consultation and its recordings. A
// consultation referenced by a report cannot be deleted.
func (s *Service) DeleteConsultation(ctx context.Context, id uuid.UUID) error {
	c, err := s.GetConsultation(ctx, id)
	if err != nil {
		return err
	}
	if err := s.consultations.Delete(ctx, id); err != nil {
		return err
	}
	for _, a := range c.Audios {
		filestore.RemoveBestEffort(ctx, s.files, s.logger, a.FileURL)
	}
	return nil
}

// UploadAudio stores a recording, creates its record as PROCESSING and
// starts the transcription job. The job's outcome is read back through
// GetAudio.
func (s *Service) UploadAudio(ctx context.Context, consultationID uuid.UUID, name, contentType string, content io.Reader) (*Audio, error) {
	if _, err := s.GetConsultation(ctx, consultationID); err != nil {
		return nil, err
	}
	stored, err := s.files.Save(ctx, filestore.Upload{
		Folder:       audioFolder,
		OriginalName: name,
		ContentType:  contentType,
		MaxSize:      s.maxAudioSize,
		Allowed:      []string{"audio/*"},
	}, content)
	if err != nil {
		return nil, uploadError(err)
	}

	a := &Audio{
		ConsultationID:      consultationID,
		FileURL:             stored.URL,
		FileName:            stored.OriginalName,
		FileSize:            stored.Size,
		TranscriptionStatus: jobs.StatusProcessing,
	}
	if err := s.audios.Create(ctx, a); err != nil {
		filestore.RemoveBestEffort(ctx, s.files, s.logger, stored.URL)
		return nil, err
	}

	s.startTranscription(a)
	return a, nil
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, filestore.ErrFileTooLarge):
		return apperr.Validation("audio file exceeds the maximum allowed size")
	case errors.Is(err, filestore.ErrInvalidContentType):
		return apperr.Validation("only audio files are accepted")
	case errors.Is(err, filestore.ErrMissingFileName):
		return apperr.Required("audio")
	}
	return apperr.Internal("failed to store audio file", err)
}

func (s *Service) GetAudio(ctx context.Context, consultationID, audioID uuid.UUID) (*Audio, error) {
	a, err := s.audios.GetByID(ctx, audioID)
	if apperr.IsNotFound(err) || (err == nil && a.ConsultationID != consultationID) {
		return nil, apperr.NotFound("audio recording not found")
	}
	return a, err
}

// ReprocessAudio resets a recording to PROCESSING and runs its
// transcription again. A job still running for the same recording is not
// stopped; whichever finishes last decides the stored outcome.
func (s *Service) ReprocessAudio(ctx context.Context, consultationID, audioID uuid.UUID) (*Audio, error) {
	a, err := s.GetAudio(ctx, consultationID, audioID)
	if err != nil {
		return nil, err
	}
	if err := s.audios.Reset(ctx, a.ID); err != nil {
		return nil, err
	}
	a.TranscriptionStatus = jobs.StatusProcessing
	a.Transcription, a.Duration, a.Language, a.Segments, a.TranscriptionError = nil, nil, nil, nil, nil

	s.startTranscription(a)
	return a, nil
}

func (s *Service) DeleteAudio(ctx context.Context, consultationID, audioID uuid.UUID) error {
	a, err := s.GetAudio(ctx, consultationID, audioID)
	if err != nil {
		return err
	}
	if err := s.audios.Delete(ctx, a.ID); err != nil {
		return err
	}
	filestore.RemoveBestEffort(ctx, s.files, s.logger, a.FileURL)
	return nil
}
