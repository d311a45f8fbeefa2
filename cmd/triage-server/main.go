package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/triage/internal/config"
	"github.com/ehr/triage/internal/domain/triage"
	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/internal/platform/db"
	"github.com/ehr/triage/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "triage-server",
		Short: "Emergency department triage API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the triage API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func withMigrator(fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrations")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, migrations.FS))
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recently applied migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				reverted, err := m.Down(ctx)
				if err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				if reverted == nil {
					fmt.Println("Nothing to roll back.")
					return nil
				}
				fmt.Printf("Rolled back %03d_%s.\n", reverted.Version, reverted.Name)
				return nil
			})
		},
	})

	return cmd
}

// evaluateCmd prints the priority for a set of vitals without touching any
// store. Useful for checking thresholds at the bedside terminal.
func evaluateCmd() *cobra.Command {
	var (
		heartRate   int
		temperature float64
		spo2        int
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Compute a triage priority from vitals",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := evaluate(triage.NewEngine(triage.DefaultTiers()...), heartRate, temperature, spo2)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().IntVar(&heartRate, "heart-rate", 0, "Heart rate in bpm")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Body temperature in °C")
	cmd.Flags().IntVar(&spo2, "spo2", 0, "Oxygen saturation in percent")
	cmd.MarkFlagRequired("heart-rate")
	cmd.MarkFlagRequired("temperature")
	cmd.MarkFlagRequired("spo2")
	return cmd
}

type evaluation struct {
	Priority       triage.Priority        `json:"priority"`
	Level          string                 `json:"level"`
	MaxWaitMinutes int                    `json:"max_wait_minutes"`
	DecidedBy      *triage.TriggeredRule  `json:"decided_by,omitempty"`
	TriggeredRules []triage.TriggeredRule `json:"triggered_rules"`
}

func evaluate(engine *triage.Engine, heartRate int, temperature float64, spo2 int) (*evaluation, error) {
	v := &triage.Vitals{HeartRate: &heartRate, Temperature: &temperature, OxygenSaturation: &spo2}
	if !engine.IsValidForTriage(v) {
		return nil, fmt.Errorf("vitals outside physiological limits")
	}
	a, err := engine.Assess(v)
	if err != nil {
		return nil, err
	}
	rules, err := engine.TriggeredRules(v)
	if err != nil {
		return nil, err
	}
	return &evaluation{
		Priority:       a.Priority,
		Level:          a.Priority.String(),
		MaxWaitMinutes: a.Priority.MaxWaitMinutes(),
		DecidedBy:      a.DecidedBy,
		TriggeredRules: rules,
	}, nil
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		roles   string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed staff token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(jwtConfig(cfg), subject, splitRoles(roles), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Staff user id")
	cmd.Flags().StringVar(&roles, "roles", "nurse", "Comma separated roles (admin, physician, nurse)")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("subject")
	return cmd
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
}

func splitRoles(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
