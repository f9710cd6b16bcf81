package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect past runs",
	}
	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:          "list",
		Short:        "List runs, newest first",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			catalog, closeFn, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			summaries, err := catalog.List(context.Background(), status, limit)
			if err != nil {
				return err
			}
			printRunList(summaries)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by terminal status")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "show <run-id>",
		Short:        "Show the phase history of one run",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stores := buildStores(cfg)
			state, err := stores.RunStates.Load(context.Background(), args[0])
			if err != nil {
				return err
			}
			if state == nil {
				return fmt.Errorf("run %s is unknown", args[0])
			}
			printRunState(state)
			printRunHistory(state)
			return nil
		},
	}
}
