package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/filestore"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert development data (an admin user and demo patients)",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("admin-email")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to seed a production database")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			files, err := filestore.NewLocal(cfg.UploadsDir)
			if err != nil {
				return err
			}
			tx := db.NewTxRunner(pool)
			users := staff.NewService(staff.NewUserRepoPG(pool))
			patients := patient.NewService(patient.NewPatientRepoPG(pool), tx, files, zerolog.Nop())

			var admin *staff.User
			err = tx.InTx(ctx, func(ctx context.Context) error {
				admin, err = seed(ctx, users, patients, email)
				return err
			})
			if err != nil || cfg.AuthSigningKey == "" {
				return err
			}

			ttl, _ := cmd.Flags().GetDuration("token-ttl")
			token, err := userToken(jwtConfig(cfg), admin, ttl)
			if err != nil {
				return err
			}
			fmt.Printf("Bearer token for %s (valid %s):\n%s\n", admin.Email, ttl, token)
			return nil
		},
	}
	cmd.Flags().String("admin-email", "admin@clinica.local", "Email of the seeded admin user")
	cmd.Flags().Duration("token-ttl", 24*time.Hour, "Lifetime of the printed admin token")
	return cmd
}

type userSeeder interface {
	Default(ctx context.Context) (*staff.User, error)
	CreateUser(ctx context.Context, u *staff.User) error
}

type patientSeeder interface {
	SearchPatients(ctx context.Context, query string, limit, offset int) ([]*patient.ListItem, int, error)
	CreatePatient(ctx context.Context, p *patient.Patient) error
}

// seed is idempotent: the admin is created only when no user exists and
// the demo patients only when the patient table is empty. It returns the
// default user.
func seed(ctx context.Context, users userSeeder, patients patientSeeder, adminEmail string) (*staff.User, error) {
	admin, err := users.Default(ctx)
	switch {
	case apperr.Is(err, apperr.CodeValidation):
		admin = &staff.User{Name: "Administrador", Email: adminEmail, Role: staff.RoleAdmin}
		if err := users.CreateUser(ctx, admin); err != nil {
			return nil, fmt.Errorf("seed admin: %w", err)
		}
		fmt.Printf("Created admin user %s (%s)\n", admin.Email, admin.ID)
	case err != nil:
		return nil, err
	default:
		fmt.Println("Users already present, skipping admin.")
	}

	_, total, err := patients.SearchPatients(ctx, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		fmt.Println("Patients already present, skipping demo patients.")
		return admin, nil
	}
	demo := demoPatients(time.Now())
	for _, p := range demo {
		if err := patients.CreatePatient(ctx, p); err != nil {
			return nil, fmt.Errorf("seed patient %s: %w", p.FullName, err)
		}
	}
	fmt.Printf("Created %d demo patients.\n", len(demo))
	return admin, nil
}

// userToken signs a bearer token for u carrying its role in the API's
// lowercase form.
func userToken(cfg auth.JWTConfig, u *staff.User, ttl time.Duration) (string, error) {
	return auth.IssueToken(cfg, u.ID.String(), u.Name, []string{strings.ToLower(string(u.Role))}, ttl)
}

func strPtr(s string) *string { return &s }

func demoPatients(now time.Time) []*patient.Patient {
	return []*patient.Patient{
		{
			FullName:       "Maria Souza",
			Email:          strPtr("maria.souza@example.com"),
			Phone:          "(11) 98888-1111",
			BirthDate:      patient.NewDate(1985, time.April, 12),
			Gender:         strPtr("F"),
			City:           strPtr("São Paulo"),
			State:          strPtr("SP"),
			BloodType:      strPtr("O+"),
			Allergies:      strPtr("Dipirona"),
			ConsentGiven:   true,
			ConsentDate:    &now,
			ConsentVersion: strPtr("1.0"),
		},
		{
			FullName:           "João Pereira",
			Phone:              "(21) 97777-2222",
			BirthDate:          patient.NewDate(1972, time.November, 3),
			Gender:             strPtr("M"),
			City:               strPtr("Rio de Janeiro"),
			State:              strPtr("RJ"),
			BloodType:          strPtr("A-"),
			CurrentMedications: strPtr("Losartana 50mg"),
		},
		{
			FullName: "Ana Lima",
			Email:    strPtr("ana.lima@example.com"),
			Phone:    "(31) 96666-3333",
			City:     strPtr("Belo Horizonte"),
			State:    strPtr("MG"),
		},
	}
}
