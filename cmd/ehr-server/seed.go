package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"

	"github.com/mdhs/ehr/internal/domain/clinical"
	"github.com/mdhs/ehr/internal/domain/encounter"
	"github.com/mdhs/ehr/internal/domain/identity"
	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/validate"
)

type seedOptions struct {
	Patients int
	Password string
	Seed     int64
}

func seedCmd() *cobra.Command {
	opts := seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo accounts and patients",
		Long: "Creates a demo doctor and admin (skipped when they already exist) and a\n" +
			"number of fake patients, each with one visit and a blood pressure reading.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			a, err := newApp(cfg, pool, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.seed(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d patient(s).\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Patients, "patients", 10, "Number of patients to create")
	cmd.Flags().StringVar(&opts.Password, "password", "Demo1234", "Password of the demo accounts")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "Random seed, 0 picks one")
	return cmd
}

func demoAccount(username, role, password string) identity.RegisterRequest {
	return identity.RegisterRequest{
		Username:        username,
		Email:           username + "@mdhs.local",
		Password:        password,
		ConfirmPassword: password,
		FirstName:       gofakeit.FirstName(),
		LastName:        gofakeit.LastName(),
		Gender:          gofakeit.RandomString([]string{"male", "female"}),
		ContactNumber:   gofakeit.Phone(),
		IDCardNumber:    fmt.Sprintf("%011d", gofakeit.Number(1, 99999999)),
		HomeAddress:     gofakeit.Street(),
		LicenseNumber:   fmt.Sprintf("%s-%06d", role, gofakeit.Number(1, 999999)),
	}
}

// ensureAccount creates the account unless the username is taken, in which
// case the existing user is returned.
func (a *app) ensureAccount(ctx context.Context, req identity.RegisterRequest, role string) (*identity.User, error) {
	if err := validate.New().Validate(req); err != nil {
		return nil, fmt.Errorf("demo %s account: %w", role, err)
	}
	u, err := a.accounts.CreateUser(ctx, req, role)
	if errors.Is(err, apperr.ErrConflict) {
		return a.users.GetByUsername(ctx, req.Username)
	}
	if err != nil {
		return nil, fmt.Errorf("create demo %s: %w", role, err)
	}
	a.logger.Info().Str("username", u.Username).Str("user_id", u.UserID).Str("role", role).Msg("demo account created")
	return u, nil
}

func (a *app) seed(ctx context.Context, opts seedOptions) (int, error) {
	gofakeit.Seed(opts.Seed)

	doc, err := a.ensureAccount(ctx, demoAccount("demo.doctor", auth.RoleDoctor, opts.Password), auth.RoleDoctor)
	if err != nil {
		return 0, err
	}
	if _, err := a.ensureAccount(ctx, demoAccount("demo.admin", auth.RoleAdmin, opts.Password), auth.RoleAdmin); err != nil {
		return 0, err
	}
	doctor := auth.Actor{UserID: doc.ID, Role: auth.RoleDoctor}

	for i := 0; i < opts.Patients; i++ {
		p, err := a.patients.Create(ctx, doctor, identity.PatientInput{
			FirstName:     gofakeit.FirstName(),
			LastName:      gofakeit.LastName(),
			Gender:        gofakeit.RandomString([]string{"male", "female", "other"}),
			ContactNumber: gofakeit.Phone(),
			HomeAddress:   gofakeit.Street() + ", " + gofakeit.City(),
		})
		if err != nil {
			return i, fmt.Errorf("create patient: %w", err)
		}

		visitDate := time.Now().UTC().AddDate(0, 0, -gofakeit.Number(0, 365))
		v, err := a.visits.Create(ctx, doctor, p.ID, encounter.VisitInput{
			VisitDate:  visitDate,
			ReasonCode: gofakeit.RandomString([]string{"R51", "R05", "I10", "E11.9", "J06.9"}),
			Status:     "completed",
		})
		if err != nil {
			return i, fmt.Errorf("create visit: %w", err)
		}

		_, err = a.clinical.CreateVitals(ctx, doctor, v.ID, &clinical.Vitals{
			Status:       "final",
			Type:         "blood-pressure",
			Value:        fmt.Sprintf("%d/%d", gofakeit.Number(100, 150), gofakeit.Number(60, 95)),
			Unit:         "mmHg",
			DateRecorded: visitDate,
		})
		if err != nil {
			return i, fmt.Errorf("create vitals: %w", err)
		}
		a.logger.Debug().Str("patient_id", p.PatientID).Msg("demo patient created")
	}
	return opts.Patients, nil
}
