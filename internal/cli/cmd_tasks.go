package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tasksync/internal/plugin"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and edit imported tasks",
	}
	cmd.AddCommand(newTasksListCmd())
	cmd.AddCommand(newTasksShowCmd())
	cmd.AddCommand(newTasksEditCmd())
	return cmd
}

func newTasksListCmd() *cobra.Command {
	var sourceID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			tasks, err := a.store.ListTasks(ctx, sourceID)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(tasks)
			}

			fmt.Printf("%-36s %-12s %-10s %-12s %s\n", "ID", "EXTERNAL", "PRIORITY", "STATUS", "TITLE")
			for _, t := range tasks {
				fmt.Printf("%-36s %-12s %-10s %-12s %s\n",
					t.ID, t.ExternalID, t.Priority, t.Status, t.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "filter by source id")
	return cmd
}

func newTasksEditCmd() *cobra.Command {
	var (
		title       string
		description string
		due         string
		priority    string
		labels      []string
	)
	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Edit local task fields and push the changes to the source",
		Long: `Updates the given fields locally, then exports the changed ones to the
task's remote record. Export is best-effort: a remote failure leaves the
local edit in place and is only logged.`,
		Args: cobra.ExactArgs(1),
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

			update := plugin.TaskUpdate{}
			var changed []string
			if cmd.Flags().Changed("title") {
				update.Title = &title
				changed = append(changed, "title")
			}
			if cmd.Flags().Changed("description") {
				update.Description = &description
				changed = append(changed, "description")
			}
			if cmd.Flags().Changed("due") {
				update.DueDate = &due
				changed = append(changed, "due_date")
			}
			if cmd.Flags().Changed("priority") {
				p := plugin.Priority(priority)
				switch p {
				case plugin.PriorityCritical, plugin.PriorityHigh, plugin.PriorityMedium, plugin.PriorityLow:
				default:
					return fmt.Errorf("unknown priority %q", priority)
				}
				update.Priority = &p
				changed = append(changed, "priority")
			}
			if cmd.Flags().Changed("labels") {
				update.Labels = &labels
				changed = append(changed, "labels")
			}
			if len(changed) == 0 {
				return fmt.Errorf("nothing to edit: pass at least one field flag")
			}

			if err := a.store.UpdateTask(ctx, task.ID, update); err != nil {
				return err
			}
			task, err = a.store.GetTask(ctx, task.ID)
			if err != nil {
				return err
			}

			src, err := a.store.GetTaskSource(ctx, task.SourceID)
			if err != nil {
				return err
			}
			p, err := newPlugin(src)
			if err != nil {
				return err
			}
			p.ExportUpdate(ctx, task, changed, src.Config, a.env)

			fmt.Printf("updated %s (%s)\n", task.ID, strings.Join(changed, ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&due, "due", "", "new due date (YYYY-MM-DD, empty clears)")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority (critical|high|medium|low)")
	cmd.Flags().StringSliceVar(&labels, "labels", nil, "replacement label list")
	return cmd
}

func newTasksShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			t, err := a.store.GetTask(ctx, args[0])
			if err != nil {
				return err
			}
			if t == nil {
				return fmt.Errorf("no task with id %s", args[0])
			}
			if jsonOut {
				return printJSON(t)
			}

			fmt.Printf("Title:      %s\n", t.Title)
			fmt.Printf("Source:     %s (%s)\n", t.Source, t.SourceID)
			fmt.Printf("External:   %s\n", t.ExternalID)
			fmt.Printf("Type:       %s\n", t.Type)
			fmt.Printf("Priority:   %s\n", t.Priority)
			fmt.Printf("Status:     %s\n", t.Status)
			if t.Assignee != "" {
				fmt.Printf("Assignee:   %s\n", t.Assignee)
			}
			if t.DueDate != "" {
				fmt.Printf("Due:        %s\n", t.DueDate)
			}
			if len(t.Labels) > 0 {
				fmt.Printf("Labels:     %v\n", t.Labels)
			}
			if t.Resolution != "" {
				fmt.Printf("Resolution: %s\n", t.Resolution)
			}
			for _, f := range t.OutputFields {
				marker := " "
				if f.Required {
					marker = "*"
				}
				fmt.Printf("Output%s    %s (%s) = %v\n", marker, f.Name, f.Type, f.Value)
			}
			if t.Description != "" {
				fmt.Printf("\n%s\n", t.Description)
			}
			return nil
		},
	}
}
