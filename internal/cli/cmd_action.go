package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newActionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "action <task-id> <action-id> [input]",
		Short: "Execute a remote action on a task's linked record",
		Long: `Runs one of the actions the task's source declares (see "sources
actions"). On success, any local field changes the action implies (for
example closing a ticket completes the local task) are applied.`,
		Args: cobra.RangeArgs(2, 3),
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
			src, err := a.store.GetTaskSource(ctx, task.SourceID)
			if err != nil {
				return err
			}
			p, err := newPlugin(src)
			if err != nil {
				return err
			}

			input := ""
			if len(args) == 3 {
				input = args[2]
			}

			result, err := p.ExecuteAction(ctx, args[1], task, input, src.Config, a.env)
			if err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("action failed: %s", result.Error)
			}

			if result.TaskUpdate != nil {
				if err := a.store.UpdateTask(ctx, task.ID, *result.TaskUpdate); err != nil {
					return fmt.Errorf("action succeeded but local update failed: %w", err)
				}
			}

			var applied []string
			if result.TaskUpdate != nil && result.TaskUpdate.Status != nil {
				applied = append(applied, "status="+string(*result.TaskUpdate.Status))
			}
			if result.TaskUpdate != nil && result.TaskUpdate.Resolution != nil {
				applied = append(applied, "resolution="+*result.TaskUpdate.Resolution)
			}
			if len(applied) > 0 {
				fmt.Printf("done (%s)\n", strings.Join(applied, ", "))
			} else {
				fmt.Println("done")
			}
			return nil
		},
	}
}
