package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/booking/internal/config"
	"github.com/clinic/booking/internal/domain/booking"
	"github.com/clinic/booking/internal/platform/db"
	"github.com/clinic/booking/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "booking-server",
		Short: "Clinic appointment booking API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(slotsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string, w io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(schema string, fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.StoreDriver != config.StoreDriverPostgres {
			return fmt.Errorf("migrations need STORE_DRIVER=%s, got %s", config.StoreDriverPostgres, cfg.StoreDriver)
		}

		ctx := context.Background()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()

		return fn(ctx, db.NewMigrator(pool, migrations.FS).WithSchema(schema))
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			target, _ := cmd.Flags().GetInt("target")
			return withMigrator(schema, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.UpTo(ctx, target)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().Int("target", 0, "Stop after this version (0 applies everything)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			return withMigrator(schema, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd.OutOrStdout(), schema, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// slotsCmd prints a doctor's slot grid for one day, the same view the
// booking form renders.
func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show a doctor's slots for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorStr, _ := cmd.Flags().GetString("doctor")
			dateStr, _ := cmd.Flags().GetString("date")

			doctorID, err := uuid.Parse(doctorStr)
			if err != nil {
				return fmt.Errorf("--doctor must be a UUID: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			clock := booking.SystemClock{Location: loc}

			date := clock.Now()
			if dateStr != "" {
				if date, err = time.ParseInLocation(booking.DateLayout, dateStr, loc); err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
			}

			ctx := context.Background()
			store, pool, err := openStore(ctx, cfg, zerolog.Nop())
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			engine := booking.NewEngine(store, booking.DefaultRules())
			slots, err := engine.QuerySlots(ctx, doctorID, date, clock.Now())
			if err != nil {
				return err
			}
			printSlots(cmd.OutOrStdout(), doctorID, date, slots)
			return nil
		},
	}
	cmd.Flags().String("doctor", "", "Doctor ID")
	cmd.Flags().String("date", "", "Date as YYYY-MM-DD (default today in CLINIC_TIMEZONE)")
	_ = cmd.MarkFlagRequired("doctor")
	return cmd
}

func printSlots(w io.Writer, doctorID uuid.UUID, date time.Time, slots []booking.SlotStatus) {
	fmt.Fprintf(w, "Slots for doctor %s on %s\n", doctorID, date.Format(booking.DateLayout))
	free := 0
	for _, s := range slots {
		state := "free"
		if !s.Available {
			state = strings.ReplaceAll(s.Reason, "_", " ")
		} else {
			free++
		}
		fmt.Fprintf(w, "  %s  %s\n", s.Time, state)
	}
	fmt.Fprintf(w, "%d of %d slots free\n", free, len(slots))
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"), os.Stdout)

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise server")
	}
	defer app.Close()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().
			Str("addr", addr).
			Str("store", cfg.StoreDriver).
			Str("timezone", cfg.ClinicTimezone).
			Msg("starting server")
		if err := app.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.echo.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
