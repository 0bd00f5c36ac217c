package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/carepath-api/internal/models"
	"github.com/noah-isme/carepath-api/internal/service"
	"github.com/noah-isme/carepath-api/pkg/database"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
	"github.com/noah-isme/carepath-api/pkg/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr := bootstrap()
			defer logr.Sync() //nolint:errcheck

			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			ctx, cancel := commandContext(5 * time.Minute)
			defer cancel()

			count, err := database.NewMigrator(db).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr := bootstrap()
			defer logr.Sync() //nolint:errcheck

			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			ctx, cancel := commandContext(time.Minute)
			defer cancel()

			statuses, err := database.NewMigrator(db).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-8s %-40s %-8s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-8d %-40s %-8s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a single lifecycle sweep and exit",
	}

	for _, sweep := range []struct{ use, kind, short string }{
		{"overdue", service.SweepOverdue, "Flag prescriptions past their next due date"},
		{"missed", service.SweepMissed, "Mark past unfinalized sessions as missed"},
	} {
		sweep := sweep
		cmd.AddCommand(&cobra.Command{
			Use:   sweep.use,
			Short: sweep.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logr := bootstrap()
				defer logr.Sync() //nolint:errcheck

				a, err := newApp(cfg, logr)
				if err != nil {
					return err
				}
				defer a.Close()

				ctx, cancel := commandContext(5 * time.Minute)
				defer cancel()

				updated, err := a.sweeps.Run(ctx, sweep.kind)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d record(s) updated\n", sweep.kind, updated)
				return nil
			},
		})
	}

	return cmd
}

func seedCmd() *cobra.Command {
	var (
		email    string
		name     string
		password string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the initial user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr := bootstrap()
			defer logr.Sync() //nolint:errcheck

			a, err := newApp(cfg, logr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := commandContext(time.Minute)
			defer cancel()

			user, err := a.users.Register(ctx, service.RegisterUserRequest{
				Email:    email,
				Name:     name,
				Password: password,
				Role:     models.UserRole(role),
			})
			if errors.Is(err, appErrors.ErrConflict) {
				logr.Info("seed user already exists", zap.String("email", email))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s user %s (%s)\n", user.Role, user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "admin@carepath.local", "Account email")
	cmd.Flags().StringVar(&name, "name", "Administrator", "Display name")
	cmd.Flags().StringVar(&password, "password", "", "Account password (min 6 characters)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "admin, staff or guest")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func exportCmd() *cobra.Command {
	var (
		format    string
		startDate string
		endDate   string
		prune     bool
	)

	cmd := &cobra.Command{
		Use:       "export <patients|programs|sessions|prescriptions>",
		Short:     "Render a dataset export into EXPORT_DIR",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{service.ExportPatients, service.ExportPrograms, service.ExportSessions, service.ExportPrescriptions},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr := bootstrap()
			defer logr.Sync() //nolint:errcheck

			store, err := storage.NewLocalStorage(cfg.Exports.Dir)
			if err != nil {
				return err
			}

			a, err := newApp(cfg, logr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := commandContext(5 * time.Minute)
			defer cancel()

			file, err := a.exports.Export(ctx, service.ExportRequest{
				Dataset:   strings.ToLower(args[0]),
				Format:    format,
				StartDate: startDate,
				EndDate:   endDate,
			})
			if err != nil {
				return err
			}

			path, err := store.Save(file.Filename, file.Data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d row(s) to %s\n", file.Rows, path)

			if prune {
				removed, err := store.Prune(cfg.Exports.Retention)
				if err != nil {
					return err
				}
				if len(removed) > 0 {
					logr.Info("pruned old exports", zap.Strings("files", removed))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "csv", "csv or pdf")
	cmd.Flags().StringVar(&startDate, "start-date", "", "First day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "Last day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&prune, "prune", false, "Remove exports older than EXPORT_RETENTION")

	return cmd
}
