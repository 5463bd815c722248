package consultation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/jobs"
)

// =========== Consultation Repository ===========

type consultationRepoPG struct{ pool *pgxpool.Pool }

func NewConsultationRepoPG(pool *pgxpool.Pool) ConsultationRepository {
	return &consultationRepoPG{pool: pool}
}

func (r *consultationRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const consultationCols = `c.id, c.patient_id, c.conducted_by, c.date, c.chief_complaint, c.symptoms,
	c.medical_history, c.current_medications, c.transcription, c.status, c.created_at, c.updated_at,
	p.full_name, p.phone, p.email`

const consultationFrom = ` FROM consultations c JOIN patients p ON p.id = c.patient_id`

func (r *consultationRepoPG) scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	ref := &PatientRef{}
	err := row.Scan(&c.ID, &c.PatientID, &c.ConductedBy, &c.Date, &c.ChiefComplaint, &c.Symptoms,
		&c.MedicalHistory, &c.CurrentMedications, &c.Transcription, &c.Status, &c.CreatedAt, &c.UpdatedAt,
		&ref.FullName, &ref.Phone, &ref.Email)
	if err != nil {
		return nil, apperr.MapDBError(err)
	}
	ref.ID = c.PatientID
	c.Patient = ref
	return &c, nil
}

func (r *consultationRepoPG) Create(ctx context.Context, c *Consultation) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultations (id, patient_id, conducted_by, date, chief_complaint, symptoms,
			medical_history, current_medications, transcription, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		c.ID, c.PatientID, c.ConductedBy, c.Date, c.ChiefComplaint, c.Symptoms,
		c.MedicalHistory, c.CurrentMedications, c.Transcription, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return apperr.MapDBError(err)
}

func (r *consultationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return r.scanConsultation(r.conn(ctx).QueryRow(ctx, `SELECT `+consultationCols+consultationFrom+` WHERE c.id = $1`, id))
}

func (r *consultationRepoPG) LatestForPatient(ctx context.Context, patientID uuid.UUID) (*Consultation, error) {
	return r.scanConsultation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+consultationCols+consultationFrom+` WHERE c.patient_id = $1 ORDER BY c.date DESC LIMIT 1`, patientID))
}

func (r *consultationRepoPG) Update(ctx context.Context, c *Consultation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE consultations SET chief_complaint=$2, symptoms=$3, medical_history=$4,
			current_medications=$5, transcription=$6, status=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.ChiefComplaint, c.Symptoms, c.MedicalHistory, c.CurrentMedications, c.Transcription, c.Status,
	).Scan(&c.UpdatedAt)
	return apperr.MapDBError(err)
}

func (r *consultationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM consultations WHERE id = $1`, id)
	if err != nil {
		return apperr.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("consultation not found")
	}
	return nil
}

func (r *consultationRepoPG) List(ctx context.Context, patientID *uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if patientID != nil {
		where += fmt.Sprintf(` AND c.patient_id = $%d`, idx)
		args = append(args, *patientID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM consultations c`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.MapDBError(err)
	}

	query := `SELECT ` + consultationCols + consultationFrom + where +
		fmt.Sprintf(` ORDER BY c.date DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.MapDBError(err)
	}
	defer rows.Close()
	var items []*Consultation
	for rows.Next() {
		c, err := r.scanConsultation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, apperr.MapDBError(rows.Err())
}

// =========== Audio Repository ===========

type audioRepoPG struct{ pool *pgxpool.Pool }

func NewAudioRepoPG(pool *pgxpool.Pool) AudioRepository { return &audioRepoPG{pool: pool} }

func (r *audioRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const audioCols = `id, consultation_id, file_url, file_name, file_size, transcription, duration,
	language, segments, transcription_status, transcription_error, created_at, updated_at`

func (r *audioRepoPG) scanAudio(row pgx.Row) (*Audio, error) {
	var a Audio
	var segments []byte
	err := row.Scan(&a.ID, &a.ConsultationID, &a.FileURL, &a.FileName, &a.FileSize, &a.Transcription,
		&a.Duration, &a.Language, &segments, &a.TranscriptionStatus, &a.TranscriptionError,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, apperr.MapDBError(err)
	}
	if err := db.ScanJSONB(segments, &a.Segments); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *audioRepoPG) Create(ctx context.Context, a *Audio) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultation_audios (id, consultation_id, file_url, file_name, file_size, transcription_status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		a.ID, a.ConsultationID, a.FileURL, a.FileName, a.FileSize, a.TranscriptionStatus,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return apperr.MapDBError(err)
}

func (r *audioRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Audio, error) {
	return r.scanAudio(r.conn(ctx).QueryRow(ctx, `SELECT `+audioCols+` FROM consultation_audios WHERE id = $1`, id))
}

func (r *audioRepoPG) ListByConsultations(ctx context.Context, consultationIDs []uuid.UUID) ([]*Audio, error) {
	if len(consultationIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+audioCols+` FROM consultation_audios
		WHERE consultation_id = ANY($1) ORDER BY created_at DESC`, consultationIDs)
	if err != nil {
		return nil, apperr.MapDBError(err)
	}
	defer rows.Close()
	var items []*Audio
	for rows.Next() {
		a, err := r.scanAudio(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, apperr.MapDBError(rows.Err())
}

func (r *audioRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM consultation_audios WHERE id = $1`, id)
	return apperr.MapDBError(err)
}

func (r *audioRepoPG) Reset(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `
		UPDATE consultation_audios SET transcription_status=$2, transcription=NULL, duration=NULL,
			language=NULL, segments=NULL, transcription_error=NULL, updated_at=NOW()
		WHERE id = $1`, id, jobs.StatusProcessing)
}

func (r *audioRepoPG) Complete(ctx context.Context, id uuid.UUID, t Transcript) error {
	segments, err := db.JSONB(t.Segments)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
		UPDATE consultation_audios SET transcription_status=$2, transcription=$3, duration=$4,
			language=$5, segments=$6, transcription_error=NULL, updated_at=NOW()
		WHERE id = $1`, id, jobs.StatusCompleted, t.Text, t.Duration, t.Language, segments)
}

func (r *audioRepoPG) Fail(ctx context.Context, id uuid.UUID, message string) error {
	return r.exec(ctx, `
		UPDATE consultation_audios SET transcription_status=$2, transcription_error=$3, transcription=NULL,
			duration=NULL, language=NULL, segments=NULL, updated_at=NOW()
		WHERE id = $1`, id, jobs.StatusFailed, message)
}

func (r *audioRepoPG) exec(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperr.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("audio recording not found")
	}
	return nil
}
