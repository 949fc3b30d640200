package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var unblockCmd = &cobra.Command{
	Use:   "unblock <entity> <action_type>",
	Short: "Show an entity's progress toward the unblock criteria",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityID, actionType := args[0], args[1]

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

		ev := b.Evaluate(cmd.Context(), state, actionType)
		if !ev.Blocked {
			fmt.Printf("entity %s is not blocked for %s\n", entityID, actionType)
			return nil
		}

		criteria := make([]string, 0, len(ev.UnblockProgress))
		for c := range ev.UnblockProgress {
			criteria = append(criteria, c)
		}
		sort.Strings(criteria)

		out := struct {
			EntityID   string             `json:"entity_id"`
			ActionType string             `json:"action_type"`
			Blocked    bool               `json:"is_blocked"`
			Progress   map[string]float64 `json:"unblock_progress"`
			Incomplete []string           `json:"incomplete_criteria"`
		}{
			EntityID:   entityID,
			ActionType: actionType,
			Blocked:    true,
			Progress:   ev.UnblockProgress,
		}
		for _, c := range criteria {
			if ev.UnblockProgress[c] < 1 {
				out.Incomplete = append(out.Incomplete, c)
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(unblockCmd)
}
