package appointment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/caldav"
	"github.com/clinic/clinic/internal/platform/jobs"
)

const defaultUIDDomain = "clinic.local"

type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type UserDirectory interface {
	Resolve(ctx context.Context, id *uuid.UUID) (*staff.User, error)
}

type Deps struct {
	Appointments AppointmentRepository
	Patients     PatientDirectory
	Users        UserDirectory
	Google       GoogleCalendar
	CalDAV       CalendarStore
	Runner       *jobs.Runner
	Logger       zerolog.Logger
	// Organizer is written into CalDAV events when its email is set.
	Organizer caldav.Person
	UIDDomain string
}

type Service struct {
	appointments AppointmentRepository
	patients     PatientDirectory
	users        UserDirectory
	google       GoogleCalendar
	caldav       CalendarStore
	runner       *jobs.Runner
	logger       zerolog.Logger
	organizer    caldav.Person
	uidDomain    string
	syncLocks    keyedMutex
	now          func() time.Time
}

func NewService(d Deps) *Service {
	if d.UIDDomain == "" {
		d.UIDDomain = defaultUIDDomain
	}
	return &Service{
		appointments: d.Appointments,
		patients:     d.Patients,
		users:        d.Users,
		google:       d.Google,
		caldav:       d.CalDAV,
		runner:       d.Runner,
		logger:       d.Logger,
		organizer:    d.Organizer,
		uidDomain:    d.UIDDomain,
		now:          time.Now,
	}
}

func (s *Service) Google() GoogleCalendar { return s.google }

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if apperr.IsNotFound(err) {
		return nil, apperr.NotFound("appointment not found")
	}
	return a, err
}

func (s *Service) ListAppointments(ctx context.Context, f Filter) ([]*Appointment, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, apperr.Validationf("invalid appointment status: %s", *f.Status)
	}
	return s.appointments.List(ctx, f)
}

// CreateAppointment checks the patient and the user, defaulting to the
// oldest registered user, and starts a calendar push. A missing patient or
// user is a validation error here.
func (s *Service) CreateAppointment(ctx context.Context, in CreateInput) (*Appointment, error) {
	switch {
	case in.PatientID == nil || *in.PatientID == uuid.Nil:
		return nil, apperr.Required("patient_id")
	case strings.TrimSpace(in.Title) == "":
		return nil, apperr.Required("title")
	case in.StartTime == nil || in.StartTime.IsZero():
		return nil, apperr.Required("start_time")
	case in.EndTime == nil || in.EndTime.IsZero():
		return nil, apperr.Required("end_time")
	}
	if !in.EndTime.After(*in.StartTime) {
		return nil, apperr.Validation("end_time must be after start_time")
	}
	if in.Type == "" {
		in.Type = TypeConsultation
	}
	if !in.Type.Valid() {
		return nil, apperr.Validationf("invalid appointment type: %s", in.Type)
	}

	p, err := s.patients.GetPatient(ctx, *in.PatientID)
	if err != nil {
		return nil, asValidation(err)
	}
	user, err := s.users.Resolve(ctx, in.UserID)
	if err != nil {
		return nil, asValidation(err)
	}

	a := &Appointment{
		PatientID:   p.ID,
		UserID:      user.ID,
		Title:       in.Title,
		Description: in.Description,
		StartTime:   *in.StartTime,
		EndTime:     *in.EndTime,
		Duration:    minutesBetween(*in.StartTime, *in.EndTime),
		Type:        in.Type,
		Location:    in.Location,
		IsOnline:    in.IsOnline,
		MeetingURL:  in.MeetingURL,
		Notes:       in.Notes,
		Status:      StatusScheduled,
		Patient:     &PatientRef{ID: p.ID, FullName: p.FullName, Email: p.Email, Phone: p.Phone},
		User:        &UserRef{ID: user.ID, Name: user.Name, Email: user.Email},
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}
	s.startPush(a.ID)
	return a, nil
}

func asValidation(err error) error {
	if apperr.IsNotFound(err) {
		return apperr.Validation(err.Error())
	}
	return err
}

// UpdateAppointment applies a partial update, recomputing the duration when
// a boundary changes, and pushes the result to the calendars.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	a, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(a)
	if !a.EndTime.After(a.StartTime) {
		return nil, apperr.Validation("end_time must be after start_time")
	}
	if !a.Type.Valid() {
		return nil, apperr.Validationf("invalid appointment type: %s", a.Type)
	}
	if !a.Status.Valid() {
		return nil, apperr.Validationf("invalid appointment status: %s", a.Status)
	}
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	if a.Status == StatusCancelled {
		s.startRemoval(a, true)
	} else {
		s.startPush(a.ID)
	}
	return a, nil
}

// CancelAppointment marks the appointment CANCELLED and removes its remote
// calendar events.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason *string) (*Appointment, error) {
	a, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Status = StatusCancelled
	a.CancellationReason = reason
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	s.startRemoval(a, true)
	return a, nil
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	a, err := s.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.appointments.Delete(ctx, id); err != nil {
		return err
	}
	s.startRemoval(a, false)
	return nil
}
