package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tasksync/internal/plugin"
)

func newUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users <source-id>",
		Short: "List a source's user directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			src, err := a.store.GetTaskSource(ctx, args[0])
			if err != nil {
				return err
			}
			p, err := newPlugin(src)
			if err != nil {
				return err
			}

			dir, ok := p.(plugin.UserDirectory)
			if !ok {
				return fmt.Errorf("source %s (%s): user directory: %w", src.ID, src.Plugin, plugin.ErrCapabilityUnsupported)
			}
			users, err := dir.GetUsers(ctx, src.Config, a.env)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(users)
			}

			for _, u := range users {
				fmt.Printf("%-30s %-25s %s\n", u.ID, u.Name, u.Email)
			}
			return nil
		},
	}
}

func newReassignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reassign <task-id> <assignee>",
		Short: "Reassign a task's linked record remotely",
		Long: `Changes the assignee on the remote record. The assignee identifier is
source-specific: a login for GitHub, a username for GitLab, an account id
for Jira, an owner id for HubSpot (see "users").`,
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
			src, err := a.store.GetTaskSource(ctx, task.SourceID)
			if err != nil {
				return err
			}
			p, err := newPlugin(src)
			if err != nil {
				return err
			}

			re, ok := p.(plugin.Reassigner)
			if !ok {
				return fmt.Errorf("source %s (%s): reassignment: %w", src.ID, src.Plugin, plugin.ErrCapabilityUnsupported)
			}
			if err := re.ReassignTask(ctx, task, args[1], src.Config, a.env); err != nil {
				return err
			}

			assignee := args[1]
			return a.store.UpdateTask(ctx, task.ID, plugin.TaskUpdate{Assignee: &assignee})
		},
	}
}
