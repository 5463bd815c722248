package exam

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/jobs"
)

type examRepoPG struct{ pool *pgxpool.Pool }

func NewExamRepoPG(pool *pgxpool.Pool) ExamRepository {
	return &examRepoPG{pool: pool}
}

func (r *examRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const examCols = `e.id, e.patient_id, e.file_name, e.file_url, e.file_type, e.file_size, e.category,
	e.sub_category, e.exam_type, e.exam_date, e.extracted_data, e.key_findings, e.abnormal_values,
	e.recommendations, e.ai_summary, e.ai_model, e.confidence, e.processing_status, e.processing_error,
	e.created_at, e.updated_at, p.full_name`

const examFrom = ` FROM exams e JOIN patients p ON p.id = e.patient_id`

func (r *examRepoPG) scanExam(row pgx.Row) (*Exam, error) {
	var e Exam
	var extracted, findings, abnormal, recs []byte
	ref := &PatientRef{}
	err := row.Scan(&e.ID, &e.PatientID, &e.FileName, &e.FileURL, &e.FileType, &e.FileSize, &e.Category,
		&e.SubCategory, &e.ExamType, &e.ExamDate, &extracted, &findings, &abnormal,
		&recs, &e.AISummary, &e.AIModel, &e.Confidence, &e.ProcessingStatus, &e.ProcessingError,
		&e.CreatedAt, &e.UpdatedAt, &ref.FullName)
	if err != nil {
		return nil, apperr.MapDBError(err)
	}
	for _, col := range []struct {
		raw []byte
		dst any
	}{
		{extracted, &e.ExtractedData},
		{findings, &e.KeyFindings},
		{abnormal, &e.AbnormalValues},
		{recs, &e.Recommendations},
	} {
		if err := db.ScanJSONB(col.raw, col.dst); err != nil {
			return nil, err
		}
	}
	ref.ID = e.PatientID
	e.Patient = ref
	return &e, nil
}

func (r *examRepoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Exam, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.MapDBError(err)
	}
	defer rows.Close()
	items := []*Exam{}
	for rows.Next() {
		e, err := r.scanExam(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, apperr.MapDBError(rows.Err())
}

func (r *examRepoPG) Create(ctx context.Context, e *Exam) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO exams (id, patient_id, file_name, file_url, file_type, file_size, processing_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		e.ID, e.PatientID, e.FileName, e.FileURL, e.FileType, e.FileSize, e.ProcessingStatus,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	return apperr.MapDBError(err)
}

func (r *examRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Exam, error) {
	return r.scanExam(r.conn(ctx).QueryRow(ctx, `SELECT `+examCols+examFrom+` WHERE e.id = $1`, id))
}

func (r *examRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Exam, error) {
	return r.list(ctx, `SELECT `+examCols+examFrom+` WHERE e.patient_id = $1 ORDER BY e.created_at DESC`, patientID)
}

func (r *examRepoPG) Completed(ctx context.Context, patientID uuid.UUID, limit int) ([]*Exam, error) {
	return r.list(ctx, `SELECT `+examCols+examFrom+`
		WHERE e.patient_id = $1 AND e.processing_status = $2
		ORDER BY e.exam_date DESC NULLS LAST, e.created_at DESC
		LIMIT $3`, patientID, jobs.StatusCompleted, limit)
}

func (r *examRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
}

func (r *examRepoPG) Reset(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `
		UPDATE exams SET processing_status=$2, processing_error=NULL, category=NULL, sub_category=NULL,
			exam_type=NULL, exam_date=NULL, extracted_data=NULL, key_findings=NULL, abnormal_values=NULL,
			recommendations=NULL, ai_summary=NULL, ai_model=NULL, confidence=NULL, updated_at=NOW()
		WHERE id = $1`, id, jobs.StatusProcessing)
}

func (r *examRepoPG) Complete(ctx context.Context, id uuid.UUID, a Analysis) error {
	extracted, err := db.JSONB(a.ExtractedData)
	if err != nil {
		return err
	}
	findings, err := db.JSONB(a.KeyFindings)
	if err != nil {
		return err
	}
	abnormal, err := db.JSONB(a.AbnormalValues)
	if err != nil {
		return err
	}
	recs, err := db.JSONB(a.Recommendations)
	if err != nil {
		return err
	}
	var sub *string
	if a.SubCategory != "" {
		sub = &a.SubCategory
	}
	return r.exec(ctx, `
		UPDATE exams SET processing_status=$2, processing_error=NULL, category=$3, sub_category=$4,
			exam_type=$5, exam_date=$6, extracted_data=$7, key_findings=$8, abnormal_values=$9,
			recommendations=$10, ai_summary=$11, ai_model=$12, confidence=$13, updated_at=NOW()
		WHERE id = $1`,
		id, jobs.StatusCompleted, a.Category, sub, a.ExamType, a.ExamDate, extracted, findings, abnormal,
		recs, a.Summary, a.Model, a.Confidence)
}

func (r *examRepoPG) Fail(ctx context.Context, id uuid.UUID, message string) error {
	return r.exec(ctx, `
		UPDATE exams SET processing_status=$2, processing_error=$3, category=NULL, sub_category=NULL,
			exam_type=NULL, exam_date=NULL, extracted_data=NULL, key_findings=NULL, abnormal_values=NULL,
			recommendations=NULL, ai_summary=NULL, ai_model=NULL, confidence=NULL, updated_at=NOW()
		WHERE id = $1`, id, jobs.StatusFailed, message)
}

func (r *examRepoPG) exec(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperr.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("exam not found")
	}
	return nil
}
