package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type PoolStats struct {
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
	WaitCount     int64  `json:"empty_acquire_count"`
	AcquireTime   string `json:"acquire_duration"`
}

func poolStats(pool *pgxpool.Pool) PoolStats {
	stat := pool.Stat()
	return PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		WaitCount:     stat.EmptyAcquireCount(),
		AcquireTime:   stat.AcquireDuration().String(),
	}
}

// JobCounter reports background jobs still holding or about to take a
// connection.
type JobCounter interface {
	InFlight() int
}

type Health struct {
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	Pool         PoolStats `json:"pool"`
	JobsInFlight int       `json:"jobs_in_flight"`
}

// HealthHandler serves GET /health/db: a ping, the pool counters and the
// number of running background jobs.
func HealthHandler(pool *pgxpool.Pool, jobs JobCounter) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		h := health(pool.Ping(ctx), poolStats(pool), jobs)
		code := http.StatusOK
		if h.Error != "" {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, h)
	}
}

func health(pingErr error, stats PoolStats, jobs JobCounter) Health {
	h := Health{Status: "healthy", Pool: stats}
	if jobs != nil {
		h.JobsInFlight = jobs.InFlight()
	}
	if pingErr != nil {
		h.Status, h.Error = "unhealthy", pingErr.Error()
	}
	return h
}
