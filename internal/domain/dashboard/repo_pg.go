package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

type countRepoPG struct{ pool *pgxpool.Pool }

func NewCountRepoPG(pool *pgxpool.Pool) CountRepository { return &countRepoPG{pool: pool} }

func (r *countRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *countRepoPG) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperr.MapDBError(err)
	}
	return n, nil
}

func (r *countRepoPG) CountPatients(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM patients`)
}

func (r *countRepoPG) CountConsultationsSince(ctx context.Context, since time.Time) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM consultations WHERE date >= $1`, since)
}

func (r *countRepoPG) CountReports(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM reports`)
}

func (r *countRepoPG) CountCompletedExams(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM exams WHERE processing_status = 'COMPLETED'`)
}
