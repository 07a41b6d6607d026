package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var onceCmd = &cobra.Command{
	Use:   "once [job...]",
	Short: "Run one invocation of the given jobs (all when omitted) and print the results",
	Run:   runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := newKeeper(ctx)
	defer app.Close()

	names := args
	if len(names) == 0 {
		names = app.Jobs()
	}

	reports, err := app.RunAll(ctx, names)
	if err != nil {
		slog.Error("Failed to run jobs", "error", err)
		os.Exit(1)
	}

	out := make(map[string]any, len(reports))
	for _, rep := range reports {
		out[rep.Job] = rep.Result
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		slog.Error("Failed to write results", "error", err)
		os.Exit(1)
	}
}
