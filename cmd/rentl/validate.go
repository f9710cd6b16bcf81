package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rentl/internal/config"
	"rentl/internal/errs"
	"rentl/internal/llm"
	"rentl/internal/model"
)

var probeSchema = llm.MustCompileSchema("connection.probe.v1", `{
	"type": "object",
	"required": ["ok"],
	"additionalProperties": false,
	"properties": {
		"ok": {"type": "boolean"}
	}
}`)

func validateConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "validate-connection",
		Short:        "Verify every configured LLM provider with one small structured call",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			profiles, err := loadProfiles(cfg)
			if err != nil {
				return err
			}
			runtimes := make(runtimeCache)

			type probe struct {
				phase model.Phase
				agent config.AgentConfig
			}
			seen := map[string]bool{}
			var probes []probe
			for _, p := range cfg.EnabledPhases() {
				if p == model.PhaseIngest || p == model.PhaseExport {
					continue
				}
				agent := cfg.Agent(p)
				if agent.Provider == "" {
					continue
				}
				key := agent.Provider + "|" + agent.BaseURL + "|" + agent.APIKeyEnv + "|" + agent.Model
				if seen[key] {
					continue
				}
				seen[key] = true
				probes = append(probes, probe{phase: p, agent: agent})
			}
			if len(probes) == 0 {
				fmt.Println(dimStyle.Render("no LLM providers configured"))
				return nil
			}

			var failed int
			for _, pr := range probes {
				rt, err := runtimes.forAgent(pr.agent)
				if err != nil {
					failed++
					fmt.Printf("%s %s: %v\n", statusStyles[model.PhaseFailed].Render("fail"), pr.agent.Provider, err)
					continue
				}
				modelName := pr.agent.Model
				if modelName == "" {
					modelName = profiles[pr.phase].ModelHints[pr.agent.Provider]
				}
				raw, err := rt.RunPrompt(cmd.Context(), llm.Prompt{
					System: "You are a connectivity probe. Respond with JSON only.",
					User:   `Reply with {"ok": true}.`,
				}, probeSchema, llm.Settings{
					Model:           modelName,
					MaxOutputTokens: 64,
					Timeout:         time.Duration(pr.agent.RequestTimeoutS) * time.Second,
					Retries:         1,
				})
				if err != nil {
					failed++
					fmt.Printf("%s %s (%s): %v\n", statusStyles[model.PhaseFailed].Render("fail"), pr.agent.Provider, pr.phase, err)
					continue
				}
				var reply struct {
					OK bool `json:"ok"`
				}
				if err := json.Unmarshal(raw, &reply); err != nil || !reply.OK {
					failed++
					fmt.Printf("%s %s (%s): unexpected reply %s\n", statusStyles[model.PhaseFailed].Render("fail"), pr.agent.Provider, pr.phase, raw)
					continue
				}
				fmt.Printf("%s %s (%s, model %s)\n", statusStyles[model.PhaseCompleted].Render("ok"), pr.agent.Provider, pr.phase, modelName)
			}
			if failed > 0 {
				return errs.Newf(errs.CodeConnection, "%d provider check(s) failed", failed).
					WithNext("check api_key_env variables and base_url settings in the config")
			}
			return nil
		},
	}
}
