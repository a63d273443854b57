package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/callwatch/internal/policy"
	"github.com/ppiankov/callwatch/internal/policydiff"
	"github.com/ppiankov/callwatch/internal/sim"
)

var (
	rulesDiffJSON bool
	simJSON       bool
)

func init() {
	rulesDiffCmd.Flags().BoolVar(&rulesDiffJSON, "json", false, "Output JSON")
	rulesSimulateCmd.Flags().BoolVar(&simJSON, "json", false, "Output JSON")
	rulesCmd.AddCommand(rulesDiffCmd)
	rulesCmd.AddCommand(rulesSimulateCmd)
	rootCmd.AddCommand(rulesCmd)
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Work with policy rule files",
}

var rulesDiffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Show what changes between two rule files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldRules, err := policy.LoadRules(args[0])
		if err != nil {
			return err
		}
		newRules, err := policy.LoadRules(args[1])
		if err != nil {
			return err
		}

		r := policydiff.Diff(oldRules, newRules)
		r.OldPath, r.NewPath = args[0], args[1]

		if rulesDiffJSON {
			out, err := policydiff.FormatJSON(r)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), policydiff.FormatText(r))
		return nil
	},
}

var rulesSimulateCmd = &cobra.Command{
	Use:   "simulate <audit.jsonl> <rules.yaml>",
	Short: "Replay recorded decisions against a rule file",
	Long: "Reads a collector decision log and reports which recorded calls the given\n" +
		"rules would decide differently. Rate limits are not replayed.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := policy.LoadRules(args[1])
		if err != nil {
			return err
		}
		r, err := sim.Simulate(args[0], rules)
		if err != nil {
			return err
		}
		r.RulesPath = args[1]

		if simJSON {
			out, err := sim.FormatJSON(r)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), sim.FormatText(r))
		return nil
	},
}
