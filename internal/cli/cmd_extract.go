package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tasksync/internal/extract"
	"github.com/randalmurphal/tasksync/internal/plugin"
)

func newExtractCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "extract <task-id> <transcript.json>",
		Short: "Fill a task's output fields from an agent transcript",
		Long: `Extract scans an agent transcript (a JSON array of messages) for a
fenced JSON object carrying output-field values, recovering what it can
from truncated output, and fills the task's unfilled fields. File-typed
fields default to the paths written by the transcript's tool calls.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			task, err := a.store.GetTask(ctx, args[0])
			if err != nil {
				return err
			}
			if task == nil {
				return fmt.Errorf("no task with id %s", args[0])
			}
			if len(task.OutputFields) == 0 {
				return fmt.Errorf("task %s has no output fields", task.ID)
			}

			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}
			var messages []extract.Message
			if err := json.Unmarshal(data, &messages); err != nil {
				return fmt.Errorf("parse transcript: %w", err)
			}

			fields := extract.Apply(messages, task.OutputFields)
			for _, f := range fields {
				fmt.Printf("%-20s = %v\n", f.Name, f.Value)
			}
			if dryRun {
				return nil
			}
			return a.store.UpdateTask(ctx, task.ID, plugin.TaskUpdate{OutputFields: &fields})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show extracted values without saving")
	return cmd
}
