package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

func TestUploadLimit_UsesLargerFileLimit(t *testing.T) {
	cfg := &config.Config{MaxExamFileSize: 50 << 20, MaxAudioFileSize: 100 << 20}
	if got, want := uploadLimit(cfg), "105906176"; got != want {
		t.Errorf("uploadLimit() = %s, want %s", got, want)
	}
	cfg.MaxExamFileSize = 200 << 20
	if got, want := uploadLimit(cfg), "210763776"; got != want {
		t.Errorf("uploadLimit() = %s, want %s", got, want)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := db.NewMigrator(nil, migrationsFS("")).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 embedded migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration[%d]: expected version %d, got %d", i, i+1, m.Version)
		}
	}
}

func TestJWTConfig_SkipsGoogleCallback(t *testing.T) {
	cfg := jwtConfig(&config.Config{AuthSigningKey: "secret"})
	if string(cfg.SigningKey) != "secret" {
		t.Errorf("unexpected signing key %q", cfg.SigningKey)
	}

	e := echo.New()
	c := e.NewContext(httptestRequest("/api/calendar/google/callback"), nil)
	if !cfg.Skipper(c) {
		t.Error("expected the google callback to bypass auth")
	}
	c = e.NewContext(httptestRequest("/api/patients"), nil)
	if cfg.Skipper(c) {
		t.Error("expected /api/patients to require auth")
	}
}

// -- Seed --

type fakeUsers struct {
	users []*staff.User
}

func (f *fakeUsers) Default(context.Context) (*staff.User, error) {
	if len(f.users) == 0 {
		return nil, apperr.Validation("no user registered in the system")
	}
	return f.users[0], nil
}

func (f *fakeUsers) CreateUser(_ context.Context, u *staff.User) error {
	u.ID = uuid.New()
	f.users = append(f.users, u)
	return nil
}

type fakePatients struct {
	created []*patient.Patient
}

func (f *fakePatients) SearchPatients(context.Context, string, int, int) ([]*patient.ListItem, int, error) {
	return nil, len(f.created), nil
}

func (f *fakePatients) CreatePatient(_ context.Context, p *patient.Patient) error {
	if p.FullName == "" || p.Phone == "" {
		return apperr.Required("full_name")
	}
	f.created = append(f.created, p)
	return nil
}

func TestSeed_Idempotent(t *testing.T) {
	users := &fakeUsers{}
	patients := &fakePatients{}

	admin, err := seed(context.Background(), users, patients, "admin@clinica.local")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if admin == nil || admin.Email != "admin@clinica.local" {
		t.Fatalf("expected the seeded admin back, got %+v", admin)
	}
	if len(users.users) != 1 || users.users[0].Role != staff.RoleAdmin {
		t.Fatalf("expected one admin, got %+v", users.users)
	}
	if len(patients.created) != len(demoPatients(time.Now())) {
		t.Fatalf("expected demo patients, got %d", len(patients.created))
	}

	again, err := seed(context.Background(), users, patients, "admin@clinica.local")
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if len(users.users) != 1 || len(patients.created) != len(demoPatients(time.Now())) {
		t.Error("expected the second seed to insert nothing")
	}
	if again.ID != admin.ID {
		t.Errorf("expected the existing admin %s, got %s", admin.ID, again.ID)
	}
}

func TestUserToken_CarriesLowercaseRole(t *testing.T) {
	cfg := auth.JWTConfig{Issuer: "clinic", SigningKey: []byte("secret")}
	u := &staff.User{ID: uuid.New(), Name: "Administrador", Role: staff.RoleAdmin}

	token, err := userToken(cfg, u, time.Hour)
	if err != nil {
		t.Fatalf("userToken: %v", err)
	}

	e := echo.New()
	req := httptestRequest("/api/users")
	req.Header.Set("Authorization", "Bearer "+token)
	c := e.NewContext(req, httptest.NewRecorder())

	var roles []string
	var subject string
	err = auth.JWTMiddleware(cfg)(func(c echo.Context) error {
		subject = auth.UserIDFromContext(c.Request().Context())
		roles = auth.RolesFromContext(c.Request().Context())
		return nil
	})(c)
	if err != nil {
		t.Fatalf("token rejected: %v", err)
	}
	if subject != u.ID.String() {
		t.Errorf("expected subject %s, got %s", u.ID, subject)
	}
	if len(roles) != 1 || roles[0] != auth.RoleAdmin {
		t.Errorf("expected [%s], got %v", auth.RoleAdmin, roles)
	}
}

func TestDemoPatients_Valid(t *testing.T) {
	for _, p := range demoPatients(time.Now()) {
		if p.FullName == "" || p.Phone == "" {
			t.Errorf("demo patient missing required fields: %+v", p)
		}
		if p.ConsentGiven && p.ConsentDate == nil {
			t.Errorf("%s: consent without a date", p.FullName)
		}
	}
}

func httptestRequest(path string) *http.Request {
	return httptest.NewRequest(http.MethodGet, path, nil)
}
