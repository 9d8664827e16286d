// internal/cli/history.go
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantumagi/agi-sdk-go/internal/observability"
	"github.com/quantumagi/agi-sdk-go/internal/store"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs, or show the steps of one run.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			history, err := store.Open(cmd.Context(), cfg.Store.Path, observability.GetLogger())
			if err != nil {
				return err
			}
			defer history.Close()

			if len(args) == 1 {
				return printSteps(cmd, history, args[0])
			}
			return printRuns(cmd, history, limit)
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	return historyCmd
}

func printRuns(cmd *cobra.Command, history *store.Store, limit int) error {
	runs, err := history.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}
	for _, r := range runs {
		duration := ""
		if r.FinishedAt != nil {
			duration = fmt.Sprintf(" in %s", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
		}
		fmt.Printf("%s  %-8s  %3d steps%s  %s\n", r.ID, r.Status, r.StepsTaken, duration, r.Task)
	}
	return nil
}

func printSteps(cmd *cobra.Command, history *store.Store, runID string) error {
	steps, err := history.RunSteps(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		fmt.Printf("No steps recorded for run %s.\n", runID)
		return nil
	}
	for _, st := range steps {
		fmt.Printf("%3d  %-12s  %s\n", st.StepNumber, st.ActionType, st.ActionJSON)
	}
	return nil
}
