package dashboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinic/clinic/internal/platform/cache"
)

const statsCacheKey = "dashboard:stats"

type Service struct {
	counts CountRepository
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewService builds the dashboard service. A nil cache disables caching.
func NewService(counts CountRepository, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{counts: counts, cache: c, ttl: ttl, logger: logger, now: time.Now}
}

// monthStart is midnight of the first day of t's month in t's location.
func monthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// Stats returns the cached overview when present. Cache errors are logged
// and the counts are read from the database.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	if s.cache != nil && s.ttl > 0 {
		var cached Stats
		ok, err := cache.GetJSON(ctx, s.cache, statsCacheKey, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Msg("dashboard cache read failed")
		} else if ok {
			return &cached, nil
		}
	}

	stats, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.ttl > 0 {
		if err := cache.SetJSON(ctx, s.cache, statsCacheKey, stats, s.ttl); err != nil {
			s.logger.Warn().Err(err).Msg("dashboard cache write failed")
		}
	}
	return stats, nil
}

func (s *Service) compute(ctx context.Context) (*Stats, error) {
	var st Stats
	since := monthStart(s.now())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		st.TotalPatients, err = s.counts.CountPatients(gctx)
		return err
	})
	g.Go(func() (err error) {
		st.ConsultationsThisMonth, err = s.counts.CountConsultationsSince(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		st.ReportsGenerated, err = s.counts.CountReports(gctx)
		return err
	})
	g.Go(func() (err error) {
		st.ExamsAnalyzed, err = s.counts.CountCompletedExams(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &st, nil
}
