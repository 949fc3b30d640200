package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <entity>",
	Short: "Evaluate an entity against every registered policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityID := args[0]

		entities, err := loadEntities()
		if err != nil {
			return err
		}
		b, cleanup, err := newBlocker(nil)
		if err != nil {
			return err
		}
		defer cleanup()

		state, err := entities.GetEntityState(cmd.Context(), entityID)
		if err != nil {
			return err
		}

		actions := b.Policies().ActionTypes()
		sort.Strings(actions)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		blocked := false
		for _, action := range actions {
			ev := b.Evaluate(cmd.Context(), state, action)
			if ev.Blocked {
				blocked = true
			}
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		if blocked {
			return fmt.Errorf("entity %s is blocked for at least one action type", entityID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
