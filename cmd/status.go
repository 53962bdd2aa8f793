package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/ta-tracker/internal/model"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs and queue depth",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, statusLimit)
		if err != nil {
			return err
		}
		pending, err := st.ListReviewItems(ctx, model.ReviewPending)
		if err != nil {
			return err
		}

		fmt.Printf("Pending review items: %d\n\n", len(pending))
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		fmt.Printf("%-38s %-10s %-22s %s\n", "RUN", "STATUS", "STARTED", "SUMMARY")
		for _, run := range runs {
			summary := "-"
			if run.Summary != nil {
				summary = fmt.Sprintf("filings=%d committed=%d review=%d conflicts=%d",
					run.Summary.FilingsProcessed, run.Summary.Committed,
					run.Summary.ReviewQueued, run.Summary.Conflicts)
			}
			if run.Status == model.RunFailed && run.Error != "" {
				summary = run.Error
			}
			fmt.Printf("%-38s %-10s %-22s %s\n",
				run.ID, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"), summary)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of runs to show")
	rootCmd.AddCommand(statusCmd)
}
