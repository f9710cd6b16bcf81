package phase

import (
	"rentl/internal/llm"
	"rentl/internal/model"
	"rentl/internal/profile"
	"rentl/internal/prompt"
)

// Output schemas for the LLM-backed phases. Identifiers are versioned
// so profiles break loudly on incompatible changes.
var (
	SchemaContextSummaries = llm.MustCompileSchema("context.summaries.v1", `{
		"type": "object",
		"required": ["scenes"],
		"properties": {
			"scenes": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["scene_id", "summary"],
					"properties": {
						"scene_id": {"type": "string"},
						"summary": {"type": "string"},
						"characters": {"type": "array", "items": {"type": "string"}}
					}
				}
			}
		}
	}`)

	SchemaPretranslateAnnotations = llm.MustCompileSchema("pretranslate.annotations.v1", `{
		"type": "object",
		"required": ["lines"],
		"properties": {
			"lines": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["line_id", "annotations"],
					"properties": {
						"line_id": {"type": "string"},
						"annotations": {
							"type": "array",
							"items": {
								"type": "object",
								"required": ["category", "explanation"],
								"properties": {
									"category": {"type": "string", "enum": ["idiom", "cultural", "wordplay", "tone", "other"]},
									"explanation": {"type": "string"},
									"hint": {"type": "string"}
								}
							}
						}
					}
				}
			}
		}
	}`)

	SchemaTranslateLines = llm.MustCompileSchema("translate.lines.v1", `{
		"type": "object",
		"required": ["lines"],
		"properties": {
			"lines": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["line_id", "text"],
					"properties": {
						"line_id": {"type": "string"},
						"text": {"type": "string"}
					}
				}
			}
		}
	}`)

	SchemaQaIssues = llm.MustCompileSchema("qa.issues.v1", `{
		"type": "object",
		"required": ["lines"],
		"properties": {
			"lines": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["line_id", "issues"],
					"properties": {
						"line_id": {"type": "string"},
						"issues": {
							"type": "array",
							"items": {
								"type": "object",
								"required": ["category", "severity", "message"],
								"properties": {
									"category": {"type": "string", "enum": ["formatting", "style", "consistency", "accuracy", "omission"]},
									"severity": {"type": "string", "enum": ["minor", "major", "critical"]},
									"message": {"type": "string"},
									"suggestion": {"type": "string"}
								}
							}
						}
					}
				}
			}
		}
	}`)

	SchemaEditLines = llm.MustCompileSchema("edit.lines.v1", `{
		"type": "object",
		"required": ["lines"],
		"properties": {
			"lines": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["line_id", "text"],
					"properties": {
						"line_id": {"type": "string"},
						"text": {"type": "string"}
					}
				}
			}
		}
	}`)
)

// DefaultSchemaRegistry registers every built-in output schema.
func DefaultSchemaRegistry() *profile.SchemaRegistry {
	return profile.NewSchemaRegistry(
		SchemaContextSummaries,
		SchemaPretranslateAnnotations,
		SchemaTranslateLines,
		SchemaQaIssues,
		SchemaEditLines,
	)
}

// DefaultProfiles returns the built-in agent profiles used when no
// profile directory overrides them.
func DefaultProfiles() map[model.Phase]profile.Resolved {
	root := "You are a senior game localization specialist working on a dialogue script."
	return map[model.Phase]profile.Resolved{
		model.PhaseContext: {
			Profile: profile.Profile{
				Name:  "scene-summarizer",
				Phase: string(model.PhaseContext),
				PromptLayers: prompt.Layers{
					Root:  root,
					Phase: "Summarize each scene in two or three sentences and list the characters who speak. The script is in {{.SourceLanguage}}.",
				},
				OutputSchema: SchemaContextSummaries.ID,
			},
			Schema: SchemaContextSummaries,
		},
		model.PhasePretranslate: {
			Profile: profile.Profile{
				Name:  "annotator",
				Phase: string(model.PhasePretranslate),
				PromptLayers: prompt.Layers{
					Root:  root,
					Phase: "For each {{.SourceLanguage}} line, note idioms, cultural references, wordplay, or tone shifts a translator must handle. Return an empty annotations list for plain lines.",
				},
				OutputSchema: SchemaPretranslateAnnotations.ID,
			},
			Schema: SchemaPretranslateAnnotations,
		},
		model.PhaseTranslate: {
			Profile: profile.Profile{
				Name:  "translator",
				Phase: string(model.PhaseTranslate),
				PromptLayers: prompt.Layers{
					Root:  root,
					Phase: "Translate each line from {{.SourceLanguage}} into {{.TargetLanguage}}. Preserve placeholders and markup exactly. Keep speaker voice consistent with the scene summaries and annotations provided.{{if .StyleGuide}} Follow this style guide: {{.StyleGuide}}{{end}}",
				},
				OutputSchema: SchemaTranslateLines.ID,
			},
			Schema: SchemaTranslateLines,
		},
		model.PhaseQa: {
			Profile: profile.Profile{
				Name:  "reviewer",
				Phase: string(model.PhaseQa),
				PromptLayers: prompt.Layers{
					Root:  root,
					Phase: "Review each {{.TargetLanguage}} translation against its {{.SourceLanguage}} source. Report accuracy, omission, consistency, style, and formatting problems. Return an empty issues list for clean lines.",
				},
				OutputSchema: SchemaQaIssues.ID,
			},
			Schema: SchemaQaIssues,
		},
		model.PhaseEdit: {
			Profile: profile.Profile{
				Name:  "editor",
				Phase: string(model.PhaseEdit),
				PromptLayers: prompt.Layers{
					Root:  root,
					Phase: "Revise each {{.TargetLanguage}} line to resolve the review issues attached to it. Change only what the issues require.{{if .StyleGuide}} Follow this style guide: {{.StyleGuide}}{{end}}",
				},
				OutputSchema: SchemaEditLines.ID,
			},
			Schema: SchemaEditLines,
		},
	}
}
