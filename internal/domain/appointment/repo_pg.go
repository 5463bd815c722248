package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `a.id, a.patient_id, a.user_id, a.title, a.description, a.start_time, a.end_time, a.duration,
	a.type, a.location, a.is_online, a.meeting_url, a.notes, a.status, a.cancellation_reason,
	a.google_event_id, a.apple_event_uid, a.sync_status, a.sync_error, a.created_at, a.updated_at,
	p.full_name, p.email, p.phone, u.name, u.email`

const apptFrom = ` FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN users u ON u.id = a.user_id`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	p := &PatientRef{}
	u := &UserRef{}
	err := row.Scan(&a.ID, &a.PatientID, &a.UserID, &a.Title, &a.Description, &a.StartTime, &a.EndTime, &a.Duration,
		&a.Type, &a.Location, &a.IsOnline, &a.MeetingURL, &a.Notes, &a.Status, &a.CancellationReason,
		&a.GoogleEventID, &a.AppleEventUID, &a.SyncStatus, &a.SyncError, &a.CreatedAt, &a.UpdatedAt,
		&p.FullName, &p.Email, &p.Phone, &u.Name, &u.Email)
	if err != nil {
		return nil, apperr.MapDBError(err)
	}
	p.ID, u.ID = a.PatientID, a.UserID
	a.Patient, a.User = p, u
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, user_id, title, description, start_time, end_time, duration,
			type, location, is_online, meeting_url, notes, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.UserID, a.Title, a.Description, a.StartTime, a.EndTime, a.Duration,
		a.Type, a.Location, a.IsOnline, a.MeetingURL, a.Notes, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return apperr.MapDBError(err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+apptFrom+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) List(ctx context.Context, f Filter) ([]*Appointment, error) {
	query := `SELECT ` + apptCols + apptFrom + ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		query += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.UserID != nil {
		query += fmt.Sprintf(` AND a.user_id = $%d`, idx)
		args = append(args, *f.UserID)
		idx++
	}
	if f.Status != nil {
		query += fmt.Sprintf(` AND a.status = $%d`, idx)
		args = append(args, *f.Status)
		idx++
	}
	if f.StartDate != nil {
		query += fmt.Sprintf(` AND a.start_time >= $%d`, idx)
		args = append(args, *f.StartDate)
		idx++
	}
	if f.EndDate != nil {
		query += fmt.Sprintf(` AND a.start_time <= $%d`, idx)
		args = append(args, *f.EndDate)
	}
	query += ` ORDER BY a.start_time ASC`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.MapDBError(err)
	}
	defer rows.Close()
	items := []*Appointment{}
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, apperr.MapDBError(rows.Err())
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	return r.exec(ctx, `
		UPDATE appointments SET title=$2, description=$3, start_time=$4, end_time=$5, duration=$6,
			type=$7, location=$8, is_online=$9, meeting_url=$10, notes=$11, status=$12,
			cancellation_reason=$13, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.Title, a.Description, a.StartTime, a.EndTime, a.Duration,
		a.Type, a.Location, a.IsOnline, a.MeetingURL, a.Notes, a.Status,
		a.CancellationReason)
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
}

func (r *appointmentRepoPG) SetSync(ctx context.Context, id uuid.UUID, res SyncResult) error {
	return r.exec(ctx, `
		UPDATE appointments SET google_event_id=$2, apple_event_uid=$3, sync_status=$4, sync_error=$5,
			updated_at=NOW()
		WHERE id = $1`,
		id, res.GoogleEventID, res.AppleEventUID, res.Status, res.Error)
}

func (r *appointmentRepoPG) exec(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperr.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment not found")
	}
	return nil
}
