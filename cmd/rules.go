// Package cmd provides command-line commands for HostSentry.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hostsentry/core"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

var outputJSON bool

// NewRulesCmd builds the `rules` command tree for validating and inspecting
// rule files without starting the service.
func NewRulesCmd() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate detection rule files",
	}
	rulesCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")

	rulesCmd.AddCommand(newRulesValidateCmd())
	rulesCmd.AddCommand(newRulesListCmd())
	return rulesCmd
}

func newRulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a rule file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := core.LoadRules(args[0])
			if err != nil {
				errorColor.Fprintf(os.Stderr, "✗ %s is invalid\n", args[0])
				return err
			}
			successColor.Printf("✓ %s is valid (%d rules)\n", args[0], len(rules))
			return nil
		},
	}
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <file>",
		Short: "List the rules in a rule file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := core.LoadRules(args[0])
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rules)
			}

			headerColor.Printf("%-28s %-10s %-8s %-22s %s\n",
				"ID", "SEVERITY", "WEIGHT", "SOURCE", "DESCRIPTION")
			for _, r := range rules {
				fmt.Printf("%-28s %-10s %-8.1f %-22s %s\n",
					r.ID, r.Severity, r.Weight, r.Source, r.Description)
			}
			fmt.Printf("\n%d rules\n", len(rules))
			return nil
		},
	}
}
