package appointment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/caldav"
	"github.com/clinic/clinic/internal/platform/gcal"
	"github.com/clinic/clinic/internal/platform/jobs"
)

// GoogleCalendar is the Google Calendar account appointments are pushed to.
type GoogleCalendar interface {
	Enabled() bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Insert(ctx context.Context, ev gcal.Event) (string, error)
	Update(ctx context.Context, eventID string, ev gcal.Event) error
	Delete(ctx context.Context, eventID string) error
	List(ctx context.Context, timeMin, timeMax time.Time) ([]gcal.Event, error)
}

// CalendarStore is a CalDAV collection holding one .ics per appointment.
type CalendarStore interface {
	Enabled() bool
	Put(ctx context.Context, uid, ics string) error
	Delete(ctx context.Context, uid string) error
}

// keyedMutex serializes calendar jobs per appointment. An entry lives only
// while some job holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

// lock blocks until id is free and returns its release func, which is safe
// to call more than once.
func (k *keyedMutex) lock(id uuid.UUID) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uuid.UUID]*keyedLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.Unlock()
			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, id)
			}
			k.mu.Unlock()
		})
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// lockedJob holds the appointment's lock from the start of the call until
// the outcome is written, so the next job for the same appointment reads the
// event ids this one stored.
type lockedJob struct {
	locks   *keyedMutex
	id      uuid.UUID
	sink    jobs.Sink[SyncResult]
	release func()
}

func (j *lockedJob) wrap(call jobs.Call[SyncResult]) jobs.Call[SyncResult] {
	return func(ctx context.Context) (SyncResult, error) {
		j.release = j.locks.lock(j.id)
		return call(ctx)
	}
}

func (j *lockedJob) unlock() {
	if j.release != nil {
		j.release()
	}
}

func (j *lockedJob) Complete(ctx context.Context, id string, res SyncResult) error {
	defer j.unlock()
	return j.sink.Complete(ctx, id, res)
}

func (j *lockedJob) Fail(ctx context.Context, id string, message string) error {
	defer j.unlock()
	return j.sink.Fail(ctx, id, message)
}

func (s *Service) startSync(id uuid.UUID, sink jobs.Sink[SyncResult], call jobs.Call[SyncResult]) {
	j := &lockedJob{locks: &s.syncLocks, id: id, sink: sink}
	jobs.Start(s.runner, jobs.KindCalendarSync, id.String(), j, j.wrap(call), syncError)
}

func (s *Service) syncEnabled() bool {
	return s.google.Enabled() || s.caldav.Enabled()
}

// EventUID is the CalDAV identifier of an appointment.
func (s *Service) EventUID(a *Appointment) string {
	if a.AppleEventUID != nil && *a.AppleEventUID != "" {
		return *a.AppleEventUID
	}
	return fmt.Sprintf("appointment-%s@%s", a.ID, s.uidDomain)
}

func googleEvent(a *Appointment) gcal.Event {
	ev := gcal.Event{
		Summary:     a.Title,
		Description: deref(a.Description),
		Location:    deref(a.Location),
		Start:       gcal.At(a.StartTime),
		End:         gcal.At(a.EndTime),
		Reminders:   gcal.DefaultReminders(),
	}
	if a.Patient != nil && deref(a.Patient.Email) != "" {
		ev.Attendees = []gcal.Attendee{{Email: *a.Patient.Email, DisplayName: a.Patient.FullName}}
	}
	return ev
}

func (s *Service) icsEvent(a *Appointment) caldav.Event {
	ev := caldav.Event{
		UID:         s.EventUID(a),
		Summary:     a.Title,
		Description: deref(a.Description),
		Location:    deref(a.Location),
		Start:       a.StartTime,
		End:         a.EndTime,
	}
	if s.organizer.Email != "" {
		org := s.organizer
		ev.Organizer = &org
	}
	if a.Patient != nil && deref(a.Patient.Email) != "" {
		ev.Attendees = []caldav.Person{{Name: a.Patient.FullName, Email: *a.Patient.Email}}
	}
	return ev
}

// ICS renders the appointment as an iCalendar document.
func (s *Service) ICS(a *Appointment) string {
	return caldav.Render(s.icsEvent(a), s.now())
}

// syncFailure collects provider errors into one sync_error message.
type syncFailure []string

func (f *syncFailure) add(provider string, err error) {
	*f = append(*f, provider+": "+err.Error())
}

func (f syncFailure) apply(res *SyncResult) {
	res.Status, res.Error = SyncStatusSynced, nil
	if len(f) > 0 {
		msg := strings.Join(f, "; ")
		res.Status, res.Error = SyncStatusFailed, &msg
	}
}

func syncError(err error) string {
	return "Erro ao sincronizar calendário: " + err.Error()
}

// startPush publishes the current state of an appointment to every
// configured calendar.
func (s *Service) startPush(id uuid.UUID) {
	if !s.syncEnabled() {
		return
	}
	s.startSync(id, s.syncSink(), s.pushCall(id))
}

// startRemoval deletes the remote events of a cancelled appointment. When
// record is false the appointment row is already gone and nothing is
// written back.
func (s *Service) startRemoval(a *Appointment, record bool) {
	if !s.syncEnabled() {
		return
	}
	if !record && a.GoogleEventID == nil && a.AppleEventUID == nil {
		return
	}
	sink := s.syncSink()
	if !record {
		sink = jobs.SinkFuncs[SyncResult]{
			CompleteFn: func(context.Context, string, SyncResult) error { return nil },
			FailFn:     func(context.Context, string, string) error { return nil },
		}
	}
	s.startSync(a.ID, sink, s.removeCall(*a, record))
}

// syncSink writes the sync outcome. A row deleted while the push was
// running is skipped.
func (s *Service) syncSink() jobs.Sink[SyncResult] {
	return jobs.SinkFuncs[SyncResult]{
		CompleteFn: func(ctx context.Context, id string, res SyncResult) error {
			uid, err := uuid.Parse(id)
			if err != nil {
				return err
			}
			if err := s.appointments.SetSync(ctx, uid, res); err != nil && !apperr.IsNotFound(err) {
				return err
			}
			return nil
		},
		FailFn: func(ctx context.Context, id string, message string) error {
			uid, err := uuid.Parse(id)
			if err != nil {
				return err
			}
			a, err := s.appointments.GetByID(ctx, uid)
			if apperr.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			return s.appointments.SetSync(ctx, uid, SyncResult{
				GoogleEventID: a.GoogleEventID,
				AppleEventUID: a.AppleEventUID,
				Status:        SyncStatusFailed,
				Error:         &message,
			})
		},
	}
}

// pushCall re-reads the appointment, which startSync does under its lock, so
// a push sees the event ids written by the previous one. Provider errors do
// not fail the job; they are recorded as sync_status FAILED with the ids
// that did sync.
func (s *Service) pushCall(id uuid.UUID) jobs.Call[SyncResult] {
	return func(ctx context.Context) (SyncResult, error) {
		a, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return SyncResult{}, err
		}
		res := SyncResult{GoogleEventID: a.GoogleEventID, AppleEventUID: a.AppleEventUID}
		var failed syncFailure

		if s.google.Enabled() {
			ev := googleEvent(a)
			if eventID := deref(a.GoogleEventID); eventID != "" {
				if err := s.google.Update(ctx, eventID, ev); err != nil {
					failed.add("Google Calendar", err)
				}
			} else if newID, err := s.google.Insert(ctx, ev); err != nil {
				failed.add("Google Calendar", err)
			} else {
				res.GoogleEventID = &newID
			}
		}
		if s.caldav.Enabled() {
			uid := s.EventUID(a)
			if err := s.caldav.Put(ctx, uid, s.ICS(a)); err != nil {
				failed.add("CalDAV", err)
			} else {
				res.AppleEventUID = &uid
			}
		}

		failed.apply(&res)
		if res.Error != nil {
			s.logger.Warn().Str("appointment_id", id.String()).Str("sync_error", *res.Error).Msg("calendar sync failed")
		}
		return res, nil
	}
}

func (s *Service) removeCall(a Appointment, record bool) jobs.Call[SyncResult] {
	return func(ctx context.Context) (SyncResult, error) {
		res := SyncResult{GoogleEventID: a.GoogleEventID, AppleEventUID: a.AppleEventUID}
		if record {
			if cur, err := s.appointments.GetByID(ctx, a.ID); err == nil {
				res.GoogleEventID, res.AppleEventUID = cur.GoogleEventID, cur.AppleEventUID
			}
		}
		var failed syncFailure

		if eventID := deref(res.GoogleEventID); eventID != "" && s.google.Enabled() {
			if err := s.google.Delete(ctx, eventID); err != nil {
				failed.add("Google Calendar", err)
			} else {
				res.GoogleEventID = nil
			}
		}
		if uid := deref(res.AppleEventUID); uid != "" && s.caldav.Enabled() {
			if err := s.caldav.Delete(ctx, uid); err != nil {
				failed.add("CalDAV", err)
			} else {
				res.AppleEventUID = nil
			}
		}

		failed.apply(&res)
		if res.Error != nil {
			s.logger.Warn().Str("appointment_id", a.ID.String()).Str("sync_error", *res.Error).Msg("calendar removal failed")
		}
		return res, nil
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
