package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "init",
		Short:        "Initialize a rentl workspace",
		Long:         "Initialize a rentl workspace by creating the .rentl directory and installing a default config.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := os.Getwd()
			if err != nil {
				return err
			}

			rentlDir := filepath.Join(root, ".rentl")
			log.Info().Str("dir", rentlDir).Msg("creating rentl directory")
			for _, dir := range []string{"logs", "profiles"} {
				if err := os.MkdirAll(filepath.Join(rentlDir, dir), 0o755); err != nil {
					return fmt.Errorf("create %s dir: %w", dir, err)
				}
			}

			configPath := filepath.Join(rentlDir, "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				log.Info().Msg("config.yaml already exists, skipping")
			} else {
				log.Info().Str("path", configPath).Msg("installing default config")
				defaultConfig := map[string]any{
					"phases": map[string]any{
						"enabled": []string{"ingest", "context", "pretranslation", "translate", "qa", "edit", "export"},
						"parameters": map[string]any{
							"ingest": map[string]any{"input_path": "script.jsonl"},
							"export": map[string]any{"output_format": "jsonl"},
						},
					},
					"languages": map[string]any{
						"source":  "en",
						"targets": []string{"fr"},
					},
					"agents": map[string]any{
						"context":        map[string]any{"provider": "openai", "model": "gpt-5.2"},
						"pretranslation": map[string]any{"provider": "openai", "model": "gpt-5.2"},
						"translate":      map[string]any{"provider": "openai", "model": "gpt-5.2"},
						"qa":             map[string]any{"provider": "openai", "model": "gpt-5.1-mini"},
						"edit":           map[string]any{"provider": "openai", "model": "gpt-5.2"},
					},
					"storage": map[string]any{
						"workspace_dir": ".",
					},
					"untranslated_policy": "warn",
				}
				data, err := yaml.Marshal(defaultConfig)
				if err != nil {
					return fmt.Errorf("marshal default config: %w", err)
				}
				if err := os.WriteFile(configPath, data, 0o644); err != nil {
					return fmt.Errorf("write default config: %w", err)
				}
			}

			fmt.Println("rentl workspace initialized")
			fmt.Println(dimStyle.Render("set OPENAI_API_KEY (or api_key_env per agent), then run rentl validate-connection"))
			return nil
		},
	}
}
