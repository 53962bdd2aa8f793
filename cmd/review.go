package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ta-tracker/internal/export"
	"github.com/sells-group/ta-tracker/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect and resolve the human review queue",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending review items",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		agents, err := loadAgents()
		if err != nil {
			return err
		}
		items, err := review.NewQueue(st, agents).ListPending(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No pending review items.")
			return nil
		}

		fmt.Printf("%-12s %-8s %-10s %s\n", "CIK", "PERIOD", "GROUPS", "TOP CANDIDATE")
		for _, item := range items {
			top := "-"
			if len(item.Groups) > 0 {
				top = fmt.Sprintf("%s (%.2f)", item.Groups[0].AgentID, item.Groups[0].Confidence)
			}
			fmt.Printf("%-12s %-8s %-10d %s\n", item.CIK, item.Period, len(item.Groups), top)
		}
		return nil
	},
}

var reviewResolveCmd = &cobra.Command{
	Use:   "resolve <cik> <period> <agent-id>",
	Short: "Record a human decision for a pending item",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		agents, err := loadAgents()
		if err != nil {
			return err
		}
		snap, err := review.NewQueue(st, agents).Resolve(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Resolved %s/%s -> %s\n", snap.CIK, snap.Period, snap.AgentID)
		return nil
	},
}

var reviewExportOut string

var reviewExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write pending review items to an XLSX worksheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if reviewExportOut == "" {
			return eris.New("--out is required")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		agents, err := loadAgents()
		if err != nil {
			return err
		}
		items, err := review.NewQueue(st, agents).ListPending(ctx)
		if err != nil {
			return err
		}
		if err := export.WriteReviewXLSX(reviewExportOut, items); err != nil {
			return err
		}
		fmt.Printf("Wrote %d pending items to %s\n", len(items), reviewExportOut)
		return nil
	},
}

func init() {
	reviewExportCmd.Flags().StringVar(&reviewExportOut, "out", "", "output .xlsx path")
	reviewCmd.AddCommand(reviewListCmd, reviewResolveCmd, reviewExportCmd)
	rootCmd.AddCommand(reviewCmd)
}
