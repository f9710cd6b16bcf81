package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "run",
		Short:        "Execute the localization pipeline as a new run",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stores := buildStores(cfg)
			orch, err := buildOrchestrator(cfg, stores)
			if err != nil {
				return err
			}

			state, err := orch.Run(cmd.Context())
			if err != nil {
				return err
			}
			if err := syncCatalog(cmd.Context(), cfg, state); err != nil {
				log.Warn().Err(err).Msg("run catalog update failed")
			}
			printRunState(state)
			return runOutcome(state)
		},
	}
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "resume <run-id>",
		Short:        "Resume a run, redoing only stale or missing work",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stores := buildStores(cfg)
			orch, err := buildOrchestrator(cfg, stores)
			if err != nil {
				return err
			}

			state, err := orch.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := syncCatalog(cmd.Context(), cfg, state); err != nil {
				log.Warn().Err(err).Msg("run catalog update failed")
			}
			printRunState(state)
			return runOutcome(state)
		},
	}
}
