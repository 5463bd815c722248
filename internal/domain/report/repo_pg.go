package report

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/jobs"
)

type reportRepoPG struct{ pool *pgxpool.Pool }

func NewReportRepoPG(pool *pgxpool.Pool) ReportRepository {
	return &reportRepoPG{pool: pool}
}

func (r *reportRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const reportCols = `r.id, r.consultation_id, r.patient_id, r.generated_by, r.full_report_content, r.summary,
	r.main_findings, r.recommendations, r.red_blood_cells, r.white_blood_cells, r.platelets, r.plasma,
	r.supplementation, r.phytotherapy, r.nutritional_guidance, r.status, r.ai_generated, r.ai_model,
	r.processing_status, r.processing_error, r.reviewed_at, r.created_at, r.updated_at,
	p.full_name, p.phone, c.date`

const reportFrom = ` FROM reports r
	JOIN patients p ON p.id = r.patient_id
	JOIN consultations c ON c.id = r.consultation_id`

// generatedNull clears every field a generation writes.
const generatedNull = `full_report_content=NULL, summary=NULL, main_findings=NULL, recommendations=NULL,
	red_blood_cells=NULL, white_blood_cells=NULL, platelets=NULL, plasma=NULL, supplementation=NULL,
	phytotherapy=NULL, nutritional_guidance=NULL, ai_model=NULL`

func (r *reportRepoPG) scanReport(row pgx.Row) (*Report, error) {
	var rep Report
	var findings, recs []byte
	p := &PatientRef{}
	c := &ConsultationRef{}
	err := row.Scan(&rep.ID, &rep.ConsultationID, &rep.PatientID, &rep.GeneratedBy, &rep.FullReportContent, &rep.Summary,
		&findings, &recs, &rep.RedBloodCells, &rep.WhiteBloodCells, &rep.Platelets, &rep.Plasma,
		&rep.Supplementation, &rep.Phytotherapy, &rep.NutritionalGuidance, &rep.Status, &rep.AIGenerated, &rep.AIModel,
		&rep.ProcessingStatus, &rep.ProcessingError, &rep.ReviewedAt, &rep.CreatedAt, &rep.UpdatedAt,
		&p.FullName, &p.Phone, &c.Date)
	if err != nil {
		return nil, apperr.MapDBError(err)
	}
	if err := db.ScanJSONB(findings, &rep.MainFindings); err != nil {
		return nil, err
	}
	if err := db.ScanJSONB(recs, &rep.Recommendations); err != nil {
		return nil, err
	}
	p.ID, c.ID = rep.PatientID, rep.ConsultationID
	rep.Patient, rep.Consultation = p, c
	return &rep, nil
}

func (r *reportRepoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Report, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.MapDBError(err)
	}
	defer rows.Close()
	items := []*Report{}
	for rows.Next() {
		rep, err := r.scanReport(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rep)
	}
	return items, apperr.MapDBError(rows.Err())
}

func (r *reportRepoPG) Create(ctx context.Context, rep *Report) error {
	rep.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO reports (id, consultation_id, patient_id, generated_by, status, ai_generated, processing_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		rep.ID, rep.ConsultationID, rep.PatientID, rep.GeneratedBy, rep.Status, rep.AIGenerated, rep.ProcessingStatus,
	).Scan(&rep.CreatedAt, &rep.UpdatedAt)
	return apperr.MapDBError(err)
}

func (r *reportRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	return r.scanReport(r.conn(ctx).QueryRow(ctx, `SELECT `+reportCols+reportFrom+` WHERE r.id = $1`, id))
}

func (r *reportRepoPG) List(ctx context.Context, limit, offset int) ([]*Report, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM reports`).Scan(&total); err != nil {
		return nil, 0, apperr.MapDBError(err)
	}
	items, err := r.list(ctx, `SELECT `+reportCols+reportFrom+` ORDER BY r.created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *reportRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Report, error) {
	return r.list(ctx, `SELECT `+reportCols+reportFrom+` WHERE r.patient_id = $1 ORDER BY r.created_at DESC`, patientID)
}

func (r *reportRepoPG) Update(ctx context.Context, rep *Report) error {
	return r.exec(ctx, `
		UPDATE reports SET red_blood_cells=$2, white_blood_cells=$3, platelets=$4, plasma=$5,
			supplementation=$6, phytotherapy=$7, nutritional_guidance=$8, status=$9, reviewed_at=$10,
			updated_at=NOW()
		WHERE id = $1`,
		rep.ID, rep.RedBloodCells, rep.WhiteBloodCells, rep.Platelets, rep.Plasma,
		rep.Supplementation, rep.Phytotherapy, rep.NutritionalGuidance, rep.Status, rep.ReviewedAt)
}

func (r *reportRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
}

func (r *reportRepoPG) Reset(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `
		UPDATE reports SET processing_status=$2, processing_error=NULL, status=$3, `+generatedNull+`,
			updated_at=NOW()
		WHERE id = $1`, id, jobs.StatusProcessing, StatusDraft)
}

func (r *reportRepoPG) Complete(ctx context.Context, id uuid.UUID, g Generated) error {
	findings, err := db.JSONB(g.MainFindings)
	if err != nil {
		return err
	}
	recs, err := db.JSONB(g.Recommendations)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
		UPDATE reports SET processing_status=$2, processing_error=NULL, status=$3, ai_generated=TRUE,
			full_report_content=$4, summary=$5, main_findings=$6, recommendations=$7,
			red_blood_cells=$8, white_blood_cells=$9, platelets=$10, plasma=$11, supplementation=$12,
			phytotherapy=$13, nutritional_guidance=$14, ai_model=$15, updated_at=NOW()
		WHERE id = $1`,
		id, jobs.StatusCompleted, StatusPendingReview,
		g.Content, g.Summary, findings, recs,
		nullable(g.RedBloodCells), nullable(g.WhiteBloodCells), nullable(g.Platelets), nullable(g.Plasma),
		nullable(g.Supplementation), nullable(g.Phytotherapy), nullable(g.NutritionalGuidance), g.Model)
}

func (r *reportRepoPG) Fail(ctx context.Context, id uuid.UUID, message string) error {
	return r.exec(ctx, `
		UPDATE reports SET processing_status=$2, processing_error=$3, `+generatedNull+`, updated_at=NOW()
		WHERE id = $1`, id, jobs.StatusFailed, message)
}

func (r *reportRepoPG) exec(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return apperr.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("report not found")
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
