package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [job] [position]",
	Short: "Reset the cursor of a job to a given block or round",
	Args:  cobra.ExactArgs(2),
	Run:   runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	job := args[0]
	position, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Printf("Invalid position: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	app := newKeeper(ctx)
	defer app.Close()

	if err := app.ResetCursor(ctx, job, position); err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor for %s to %d\n", job, position)
}
