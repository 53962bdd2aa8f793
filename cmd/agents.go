package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/ta-tracker/internal/canonical"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect the canonical agent reference table",
}

// agentsValidateCmd loads the table and builds a canonicalizer from it, which
// surfaces duplicate ids, empty names and aliases that normalize to the same
// string under different agents.
var agentsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the reference table",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadAgents()
		if err != nil {
			return err
		}
		if _, err := canonical.New(table, resolvePolicy().AcceptanceThreshold); err != nil {
			return err
		}
		fmt.Printf("OK: %d agents in %s\n", table.Len(), cfg.Agents.Path)
		return nil
	},
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List canonical agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadAgents()
		if err != nil {
			return err
		}
		fmt.Printf("%-24s %-32s %s\n", "ID", "NAME", "ALIASES")
		for _, a := range table.Agents() {
			fmt.Printf("%-24s %-32s %s\n", a.ID, a.Name, strings.Join(a.Aliases, "; "))
		}
		return nil
	},
}

func init() {
	agentsCmd.AddCommand(agentsValidateCmd, agentsListCmd)
	rootCmd.AddCommand(agentsCmd)
}
