package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/tasksync/internal/config"
	"github.com/randalmurphal/tasksync/internal/plugin"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the tasksync configuration file",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigSchemaCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = filepath.Join(".tasksync", "config.yaml")
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}

			starter := config.Config{
				Store: config.StoreConfig{Dialect: "sqlite", Dir: ".tasksync"},
				Sources: []config.SourceConfig{{
					ID:     "my-github",
					Name:   "My Repository",
					Plugin: string(plugin.KindGitHub),
					Config: map[string]string{
						"token": "ghp_...",
						"owner": "me",
						"repo":  "project",
					},
				}},
			}
			data, err := yaml.Marshal(&starter)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <plugin>",
		Short: "Show a plugin's config fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := plugin.New(plugin.Kind(args[0]))
			if err != nil {
				return err
			}

			schema := p.ConfigSchema()
			if jsonOut {
				return printJSON(schema)
			}
			for _, f := range schema {
				required := ""
				if f.Required {
					required = " (required)"
				}
				dep := ""
				if f.DependsOn != "" {
					dep = fmt.Sprintf(" [when %s=%s]", f.DependsOn, f.DependsValue)
				}
				fmt.Printf("%-12s %-15s %s%s%s\n", f.Key, f.Type, f.Label, required, dep)
			}
			return nil
		},
	}
}
