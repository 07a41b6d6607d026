package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cursor and queue of every configured job",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := newKeeper(ctx)
	defer app.Close()

	sums, err := app.Status(ctx)
	if err != nil {
		slog.Error("Failed to read job state", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "JOB\tCURSOR\tQUEUE\tOLDEST")

	for _, s := range sums {
		cursor := "-"
		if s.HasCursor {
			cursor = fmt.Sprintf("%d", s.Cursor)
		}
		oldest := "-"
		if s.OldestCreatedAt > 0 {
			oldest = time.Unix(s.OldestCreatedAt, 0).UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Job, cursor, s.QueueSize, oldest)
	}
	_ = w.Flush()
}
