package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/analyzer/internal/core/config"
	"github.com/vietddude/analyzer/internal/infra/storage/postgres"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recently closed analysis sessions",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "maximum sessions to list")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("status requires a configured database")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.QueryContext(ctx, `
		SELECT request_id, state, last_kind, attempt_count, closed_at_ms
		FROM request_sessions ORDER BY closed_at_ms DESC LIMIT $1`, statusLimit)
	if err != nil {
		slog.Error("Failed to query sessions", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "REQUEST\tSTATE\tKIND\tATTEMPTS\tCLOSED")

	for rows.Next() {
		var requestID, state, kind string
		var attempts int
		var closedMs int64
		if err := rows.Scan(&requestID, &state, &kind, &attempts, &closedMs); err != nil {
			continue
		}
		closed := time.UnixMilli(closedMs).Format(time.RFC3339)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", requestID, state, kind, attempts, closed)
	}
	_ = w.Flush()
}
