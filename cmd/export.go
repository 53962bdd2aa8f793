package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ta-tracker/internal/export"
	"github.com/sells-group/ta-tracker/internal/store"
	"github.com/sells-group/ta-tracker/internal/timeseries"
)

// maxChangeExport caps a change-log export; the store treats the limit as a
// hard LIMIT clause, so zero would fall back to its small default.
const maxChangeExport = 1_000_000

var (
	exportOut string
	exportCIK string
)

var exportCmd = &cobra.Command{
	Use:       "export {snapshots|transitions|changes}",
	Short:     "Write the dataset to CSV",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"snapshots", "transitions", "changes"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", exportOut)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		switch args[0] {
		case "snapshots":
			snaps, err := st.ListSnapshots(ctx, store.SnapshotFilter{CIK: exportCIK})
			if err != nil {
				return err
			}
			return export.WriteSnapshotsCSV(out, snaps)
		case "transitions":
			merger := timeseries.NewMerger(st)
			if exportCIK != "" {
				transitions, err := merger.Transitions(ctx, exportCIK)
				if err != nil {
					return err
				}
				return export.WriteTransitionsCSV(out, transitions)
			}
			transitions, err := merger.AllTransitions(ctx)
			if err != nil {
				return err
			}
			return export.WriteTransitionsCSV(out, transitions)
		case "changes":
			entries, err := st.ListChanges(ctx, maxChangeExport)
			if err != nil {
				return err
			}
			return export.WriteChangesCSV(out, entries)
		default:
			return fmt.Errorf("unknown dataset %q", args[0])
		}
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output .csv path (default stdout)")
	exportCmd.Flags().StringVar(&exportCIK, "cik", "", "restrict to one issuer")
	rootCmd.AddCommand(exportCmd)
}
