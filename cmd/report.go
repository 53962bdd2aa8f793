package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/ta-tracker/internal/report"
	"github.com/sells-group/ta-tracker/internal/timeseries"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summaries over the committed time series",
}

var reportShareCmd = &cobra.Command{
	Use:   "share",
	Short: "Per-period brand market share",
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
		rows, err := report.MarketShare(ctx, st, agents)
		if err != nil {
			return err
		}

		fmt.Printf("%-8s %-24s %8s %8s\n", "PERIOD", "BRAND", "ISSUERS", "SHARE")
		for _, r := range rows {
			fmt.Printf("%-8s %-24s %8d %7.1f%%\n", r.Period, r.Brand, r.Issuers, r.Share*100)
		}
		return nil
	},
}

var reportActivityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Per-agent issuer counts and transition wins/losses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		transitions, err := timeseries.NewMerger(st).AllTransitions(ctx)
		if err != nil {
			return err
		}
		rows, err := report.Activity(ctx, st, transitions)
		if err != nil {
			return err
		}

		fmt.Printf("%-24s %8s %10s %6s %6s\n", "AGENT", "ISSUERS", "SNAPSHOTS", "GAINS", "LOSSES")
		for _, r := range rows {
			fmt.Printf("%-24s %8d %10d %6d %6d\n", r.AgentID, r.Issuers, r.Snapshots, r.Gains, r.Losses)
		}
		return nil
	},
}

func init() {
	reportCmd.AddCommand(reportShareCmd, reportActivityCmd)
	rootCmd.AddCommand(reportCmd)
}
