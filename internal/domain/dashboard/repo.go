package dashboard

import (
	"context"
	"time"
)

// CountRepository answers the aggregate counts behind Stats.
type CountRepository interface {
	CountPatients(ctx context.Context) (int, error)
	CountConsultationsSince(ctx context.Context, since time.Time) (int, error)
	CountReports(ctx context.Context) (int, error)
	CountCompletedExams(ctx context.Context) (int, error)
}
