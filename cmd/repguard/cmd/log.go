package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/repguard/gate"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log <entity>",
	Short: "Show audit log entries for an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityID := args[0]
		if auditPath == "" {
			return fmt.Errorf("--audit is required")
		}

		f, err := os.Open(auditPath)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer f.Close()

		var entries []gate.Evaluation
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		line := 0
		for sc.Scan() {
			line++
			var ev gate.Evaluation
			if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
				return fmt.Errorf("audit log line %d: %w", line, err)
			}
			if ev.EntityID != entityID {
				continue
			}
			if !ev.VerifyIntegrity() {
				return fmt.Errorf("audit log line %d: integrity hash mismatch for evaluation %s", line, ev.EvaluationID)
			}
			entries = append(entries, ev)
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read audit log: %w", err)
		}

		if logLimit > 0 && len(entries) > logLimit {
			entries = entries[len(entries)-logLimit:]
		}
		enc := json.NewEncoder(os.Stdout)
		for _, ev := range entries {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	logCmd.Flags().IntVar(&logLimit, "limit", 0, "show only the N most recent entries")
	rootCmd.AddCommand(logCmd)
}
