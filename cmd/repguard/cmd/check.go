package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/repguard/diag"
)

var checkApply bool

var checkCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "Diagnose a cache storage path and optionally repair it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]

		engine := diag.NewEngine(diag.EngineConfig{Logger: newLogger()})
		diagnostics, err := engine.Diagnose(cmd.Context(), target, diag.TriggerCLI, "repguard-cli")
		if err != nil {
			return err
		}
		if len(diagnostics) == 0 {
			fmt.Printf("%s: ok\n", target)
			return nil
		}

		applied := 0
		for _, d := range diagnostics {
			fmt.Printf("[%s] %s: %s\n", d.Severity, d.Category, d.Message)
			for _, s := range engine.ProposeSolutions(d) {
				fmt.Printf("  - %s (confidence %.2f)\n", s.Description, s.Confidence)
				if !checkApply || !s.CanAutoApply || !s.Action.SafeToApply {
					continue
				}
				if err := engine.Apply(cmd.Context(), s); err != nil {
					return fmt.Errorf("apply %s: %w", s.Action.Type, err)
				}
				fmt.Printf("    applied %s\n", s.Action.Type)
				applied++
			}
		}

		if applied > 0 {
			remaining, err := engine.Diagnose(cmd.Context(), target, diag.TriggerCLI, "repguard-cli")
			if err != nil {
				return err
			}
			if len(remaining) == 0 {
				fmt.Printf("%s: repaired\n", target)
				return nil
			}
			diagnostics = remaining
		}
		return fmt.Errorf("%d unresolved diagnostic(s) for %s", len(diagnostics), target)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkApply, "apply", false, "auto-apply safe solutions")
	rootCmd.AddCommand(checkCmd)
}
