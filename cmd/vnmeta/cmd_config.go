package main

import (
	"fmt"

	"github.com/ryanm101/vnmeta/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the active configuration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if a.out.JSON {
				a.out.Result(a.cfg)
				return nil
			}

			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			a.out.Result("# Active Configuration\n" + string(data))
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := ".vnmeta.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteExample(path); err != nil {
				return err
			}

			if a.out.JSON {
				a.out.Result(map[string]string{"path": path, "status": "created"})
			} else {
				a.out.Info("Created %s\n", path)
			}
			return nil
		},
	}

	cmd.AddCommand(show, initCmd)
	return cmd
}
