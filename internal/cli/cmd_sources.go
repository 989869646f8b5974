package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tasksync/internal/plugin"
)

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage configured task sources",
	}
	cmd.AddCommand(newSourcesListCmd())
	cmd.AddCommand(newSourcesValidateCmd())
	cmd.AddCommand(newSourcesOptionsCmd())
	cmd.AddCommand(newSourcesActionsCmd())
	return cmd
}

func newSourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			sources, err := a.store.ListTaskSources(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(sources)
			}

			fmt.Printf("%-20s %-10s %-25s %s\n", "ID", "PLUGIN", "NAME", "LAST SYNCED")
			for _, src := range sources {
				last := "never"
				if src.LastSyncedAt != nil {
					last = src.LastSyncedAt.Local().Format(time.RFC3339)
				}
				fmt.Printf("%-20s %-10s %-25s %s\n", src.ID, src.Plugin, src.Name, last)
			}
			return nil
		},
	}
}

func newSourcesValidateCmd() *cobra.Command {
	var online bool
	cmd := &cobra.Command{
		Use:   "validate [source-id...]",
		Short: "Validate source configurations",
		Long: `Checks each source's configuration against its plugin's schema. With
--online, sources whose plugin can verify credentials additionally make a
live auth check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			sources, err := a.store.ListTaskSources(ctx)
			if err != nil {
				return err
			}

			wanted := map[string]bool{}
			for _, id := range args {
				wanted[id] = true
			}

			bad := 0
			for _, src := range sources {
				if len(wanted) > 0 && !wanted[src.ID] {
					continue
				}
				p, err := newPlugin(src)
				if err == nil {
					err = p.ValidateConfig(src.Config)
				}
				if err == nil && online {
					if checker, ok := p.(plugin.AuthChecker); ok {
						err = checker.CheckAuth(ctx, src.Config, a.env)
					}
				}
				if err != nil {
					bad++
					fmt.Printf("%-20s INVALID: %v\n", src.ID, err)
					continue
				}
				fmt.Printf("%-20s ok\n", src.ID)
			}
			if bad > 0 {
				return fmt.Errorf("%d invalid source(s)", bad)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "also verify credentials with a live call where supported")
	return cmd
}

func newSourcesOptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "options <source-id> <resolver>",
		Short: "Resolve a dynamic config field's live options",
		Args:  cobra.ExactArgs(2),
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

			options := p.ResolveOptions(ctx, args[1], src.Config, a.env)
			if jsonOut {
				return printJSON(options)
			}
			for _, o := range options {
				fmt.Printf("%-30s %s\n", o.Value, o.Label)
			}
			if len(options) == 0 {
				fmt.Println("(no options)")
			}
			return nil
		},
	}
}

func newSourcesActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions <source-id>",
		Short: "List the remote actions a source exposes",
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

			actions := p.Actions(src.Config)
			if jsonOut {
				return printJSON(actions)
			}
			for _, act := range actions {
				input := ""
				if act.RequiresInput {
					input = " (requires input)"
				}
				fmt.Printf("%-15s %s%s\n", act.ID, act.Label, input)
			}

			// Optional capabilities are discovered, not declared.
			if _, ok := p.(plugin.UserDirectory); ok {
				fmt.Println("supports: user directory")
			}
			if _, ok := p.(plugin.Reassigner); ok {
				fmt.Println("supports: reassignment")
			}
			if _, ok := p.(plugin.AuthChecker); ok {
				fmt.Println("supports: auth check")
			}
			return nil
		},
	}
}
