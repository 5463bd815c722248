package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const patientCols = `id, full_name, email, phone, cpf, birth_date, gender,
	address, city, state, zip_code, blood_type, allergies, current_medications,
	medical_history, notes, consent_given, consent_date, consent_version,
	total_consultations, created_at, updated_at`

func patientDest(p *Patient) []any {
	return []any{&p.ID, &p.FullName, &p.Email, &p.Phone, &p.CPF, &p.BirthDate, &p.Gender,
		&p.Address, &p.City, &p.State, &p.ZipCode, &p.BloodType, &p.Allergies, &p.CurrentMedications,
		&p.MedicalHistory, &p.Notes, &p.ConsentGiven, &p.ConsentDate, &p.ConsentVersion,
		&p.TotalConsultations, &p.CreatedAt, &p.UpdatedAt}
}

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(patientDest(&p)...); err != nil {
		return nil, apperr.MapDBError(err)
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, full_name, email, phone, cpf, birth_date, gender,
			address, city, state, zip_code, blood_type, allergies, current_medications,
			medical_history, notes, consent_given, consent_date, consent_version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING total_consultations, created_at, updated_at`,
		p.ID, p.FullName, p.Email, p.Phone, p.CPF, p.BirthDate, p.Gender,
		p.Address, p.City, p.State, p.ZipCode, p.BloodType, p.Allergies, p.CurrentMedications,
		p.MedicalHistory, p.Notes, p.ConsentGiven, p.ConsentDate, p.ConsentVersion,
	).Scan(&p.TotalConsultations, &p.CreatedAt, &p.UpdatedAt)
	return apperr.MapDBError(err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET full_name=$2, email=$3, phone=$4, cpf=$5, birth_date=$6, gender=$7,
			address=$8, city=$9, state=$10, zip_code=$11, blood_type=$12, allergies=$13,
			current_medications=$14, medical_history=$15, notes=$16, consent_given=$17,
			consent_date=$18, consent_version=$19, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FullName, p.Email, p.Phone, p.CPF, p.BirthDate, p.Gender,
		p.Address, p.City, p.State, p.ZipCode, p.BloodType, p.Allergies,
		p.CurrentMedications, p.MedicalHistory, p.Notes, p.ConsentGiven,
		p.ConsentDate, p.ConsentVersion,
	).Scan(&p.UpdatedAt)
	return apperr.MapDBError(err)
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return apperr.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func (r *patientRepoPG) IncrementConsultations(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET total_consultations = total_consultations + 1, updated_at=NOW() WHERE id = $1`, id)
	return apperr.MapDBError(err)
}

func (r *patientRepoPG) Search(ctx context.Context, query string, limit, offset int) ([]*ListItem, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if query != "" {
		where += fmt.Sprintf(` AND (full_name ILIKE $%d OR cpf ILIKE $%d OR phone ILIKE $%d OR email ILIKE $%d)`, idx, idx, idx, idx)
		args = append(args, "%"+query+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.MapDBError(err)
	}

	sql := `SELECT ` + patientCols + `,
		(SELECT COUNT(*) FROM consultations c WHERE c.patient_id = patients.id),
		(SELECT COUNT(*) FROM reports rp WHERE rp.patient_id = patients.id),
		(SELECT COUNT(*) FROM exams e WHERE e.patient_id = patients.id)
		FROM patients` + where + fmt.Sprintf(` ORDER BY full_name ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, apperr.MapDBError(err)
	}
	defer rows.Close()
	var items []*ListItem
	for rows.Next() {
		item := &ListItem{Patient: &Patient{}}
		dest := append(patientDest(item.Patient), &item.Count.Consultations, &item.Count.Reports, &item.Count.Exams)
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, apperr.MapDBError(err)
		}
		items = append(items, item)
	}
	return items, total, apperr.MapDBError(rows.Err())
}

func (r *patientRepoPG) RecentConsultations(ctx context.Context, patientID uuid.UUID, n int) ([]ConsultationSummary, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, date, chief_complaint, status FROM consultations
		WHERE patient_id = $1 ORDER BY date DESC LIMIT $2`, patientID, n)
	if err != nil {
		return nil, apperr.MapDBError(err)
	}
	defer rows.Close()
	items := []ConsultationSummary{}
	for rows.Next() {
		var s ConsultationSummary
		if err := rows.Scan(&s.ID, &s.Date, &s.ChiefComplaint, &s.Status); err != nil {
			return nil, apperr.MapDBError(err)
		}
		items = append(items, s)
	}
	return items, apperr.MapDBError(rows.Err())
}

func (r *patientRepoPG) RecentReports(ctx context.Context, patientID uuid.UUID, n int) ([]ReportSummary, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, summary, status, processing_status, created_at FROM reports
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2`, patientID, n)
	if err != nil {
		return nil, apperr.MapDBError(err)
	}
	defer rows.Close()
	items := []ReportSummary{}
	for rows.Next() {
		var s ReportSummary
		if err := rows.Scan(&s.ID, &s.Summary, &s.Status, &s.ProcessingStatus, &s.CreatedAt); err != nil {
			return nil, apperr.MapDBError(err)
		}
		items = append(items, s)
	}
	return items, apperr.MapDBError(rows.Err())
}

func (r *patientRepoPG) Exams(ctx context.Context, patientID uuid.UUID) ([]ExamSummary, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, file_name, file_url, category, exam_type, exam_date, processing_status, created_at
		FROM exams WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, apperr.MapDBError(err)
	}
	defer rows.Close()
	items := []ExamSummary{}
	for rows.Next() {
		var s ExamSummary
		if err := rows.Scan(&s.ID, &s.FileName, &s.FileURL, &s.Category, &s.ExamType,
			&s.ExamDate, &s.ProcessingStatus, &s.CreatedAt); err != nil {
			return nil, apperr.MapDBError(err)
		}
		items = append(items, s)
	}
	return items, apperr.MapDBError(rows.Err())
}
