package db

import (
	"errors"
	"testing"
)

type fixedJobs int

func (f fixedJobs) InFlight() int { return int(f) }

func TestHealth_Healthy(t *testing.T) {
	h := health(nil, PoolStats{TotalConns: 3, MaxConns: 20}, fixedJobs(2))

	if h.Status != "healthy" || h.Error != "" {
		t.Errorf("expected healthy without error, got %+v", h)
	}
	if h.JobsInFlight != 2 {
		t.Errorf("expected 2 jobs in flight, got %d", h.JobsInFlight)
	}
	if h.Pool.MaxConns != 20 {
		t.Errorf("expected pool stats to be carried, got %+v", h.Pool)
	}
}

func TestHealth_PingFailure(t *testing.T) {
	h := health(errors.New("connection refused"), PoolStats{}, nil)

	if h.Status != "unhealthy" {
		t.Errorf("expected unhealthy, got %s", h.Status)
	}
	if h.Error != "connection refused" {
		t.Errorf("unexpected error text %q", h.Error)
	}
	if h.JobsInFlight != 0 {
		t.Errorf("expected no job count without a counter, got %d", h.JobsInFlight)
	}
}
