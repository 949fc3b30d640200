package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var policyCmd = &cobra.Command{
	Use:   "policy <action_type>",
	Short: "Show the registered policy for an action type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policies, err := loadPolicies()
		if err != nil {
			return err
		}
		p, ok := policies.Lookup(args[0])
		if !ok {
			return fmt.Errorf("no policy registered for action type %q", args[0])
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
}
