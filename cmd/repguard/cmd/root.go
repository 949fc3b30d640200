package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/repguard/observe"
)

var (
	policiesPath string
	entitiesPath string
	auditPath    string
	debug        bool
)

var rootCmd = &cobra.Command{
	Use:   "repguard",
	Short: "Reputation-aware cache and action gate",
	Long: `repguard evaluates entity behavioral state against block policies,
diagnoses and repairs cache storage problems, and inspects the
append-only audit log of gate decisions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Errors are printed as a single line; the process
// exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "repguard:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policiesPath, "policies", "", "path to the JSON policy file")
	rootCmd.PersistentFlags().StringVar(&entitiesPath, "entities", "", "path to the JSON entity state snapshot")
	rootCmd.PersistentFlags().StringVar(&auditPath, "audit", "", "path to the NDJSON audit log")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func newLogger() observe.Logger {
	if debug {
		return observe.NewLogger("debug")
	}
	return observe.NewLogger("warn")
}
