package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// purgeLockKey serializes concurrent purge runs.
const purgeLockKey int64 = 7_242_001

type purgeStep struct {
	Name  string
	Query string
	// Aged steps take the retention cutoff as $1.
	Aged bool
}

// purgeSteps run in order; allocations go before the incidents they
// reference.
var purgeSteps = []purgeStep{
	{"expired sessions", `DELETE FROM ecowatch.sessions WHERE expires_at < now()`, false},
	{"read notifications", `DELETE FROM ecowatch.notifications WHERE "read" AND created_at < $1`, true},
	{"expired alerts", `DELETE FROM ecowatch.alerts WHERE expires_at IS NOT NULL AND expires_at < $1`, true},
	{"settled allocations", `DELETE FROM ecowatch.resource_allocations a
		USING ecowatch.incidents i
		WHERE a.incident_id = i.id AND a.status <> 'allocated'
		  AND i.status = 'resolved' AND i.resolved_at < $1`, true},
	{"resolved incidents", `DELETE FROM ecowatch.incidents i
		WHERE i.status = 'resolved' AND i.resolved_at < $1
		  AND NOT EXISTS (SELECT 1 FROM ecowatch.resource_allocations a WHERE a.incident_id = i.id)`, true},
	{"analytics snapshots", `DELETE FROM ecowatch.analytics WHERE created_at < $1`, true},
}

var (
	purgeOlderThan time.Duration
	purgeConfirm   bool
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete stale rows from the Postgres store",
	Long: `Removes data past its retention window:

  expired sessions, read notifications, expired alerts, resolved incidents
  and their settled allocations, and analytics snapshots.

Incidents that still hold an active allocation are kept. Image files in
the media store are not touched. Without --confirm the deletes are rolled
back and only the counts are printed.`,
	Example: `  admin purge --older-than 2160h
  admin purge --older-than 2160h --confirm`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if purgeOlderThan <= 0 {
			return errors.New("--older-than must be positive")
		}
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}

		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping db: %w", err)
		}

		cutoff := time.Now().Add(-purgeOlderThan)
		return purge(ctx, db, cutoff, purgeConfirm, cmd.OutOrStdout())
	},
}

func init() {
	purgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 90*24*time.Hour, "retention window")
	purgeCmd.Flags().BoolVar(&purgeConfirm, "confirm", false, "commit the deletes")
}

func purge(ctx context.Context, db *sql.DB, cutoff time.Time, commit bool, out io.Writer) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, purgeLockKey); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	var total int64
	for _, step := range purgeSteps {
		var args []any
		if step.Aged {
			args = append(args, cutoff)
		}
		res, err := tx.ExecContext(ctx, step.Query, args...)
		if err != nil {
			return fmt.Errorf("purge %s: %w", step.Name, err)
		}
		n, _ := res.RowsAffected()
		total += n
		fmt.Fprintf(out, "%-20s %d\n", step.Name, n)
	}

	if !commit {
		fmt.Fprintf(out, "dry run: %d rows would be deleted (pass --confirm)\n", total)
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	tx = nil
	fmt.Fprintf(out, "deleted %d rows older than %s\n", total, cutoff.Format(time.RFC3339))
	return nil
}
