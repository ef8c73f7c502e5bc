// Package config loads the per-environment configuration: JSONC files from
// the environment directory, a .env file, and environment-variable
// overrides for secrets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/arborio/agentcore/internal/logging"
	"github.com/arborio/agentcore/pkg/types"
)

// configFiles are the recognized config file names, in load order; later
// files overlay earlier ones.
var configFiles = []string{
	"config.yaml", "config.yml",
	"config.jsonc", "config.json",
	"providers.jsonc", "models.jsonc",
}

// Load reads dir's configuration. A missing directory yields an empty
// config rather than an error: the server still serves non-LLM routes when
// unconfigured (spec §7 "config" errors at startup are non-fatal).
func Load(dir string) (*types.Config, error) {
	// .env first so file contents can reference the variables it sets.
	if dir != "" {
		if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
			logging.Logger.Debug().Str("dir", dir).Msg("loaded .env")
		}
	}

	cfg := &types.Config{}
	for _, name := range configFiles {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			continue
		}
		// jsonc.ToJSON strips comments and trailing commas.
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides folds the process environment into cfg: LLM_MODEL,
// LLM_BASE_URL, LLM_API_KEY, and per-provider <ID>_API_KEY fallbacks.
func applyEnvOverrides(cfg *types.Config) {
	if model := os.Getenv("LLM_MODEL"); model != "" {
		cfg.Model = model
	}

	if cfg.Provider == nil {
		cfg.Provider = make(map[string]types.ProviderConfig)
	}
	for id, pc := range cfg.Provider {
		pc.APIKey = substituteEnv(pc.APIKey)
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv(strings.ToUpper(id) + "_API_KEY")
		}
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv("LLM_API_KEY")
		}
		if pc.BaseURL == "" {
			pc.BaseURL = os.Getenv("LLM_BASE_URL")
		}
		cfg.Provider[id] = pc
	}
}

// substituteEnv resolves "{env:NAME}" and "$NAME" placeholders in api-key
// fields.
func substituteEnv(value string) string {
	if strings.HasPrefix(value, "{env:") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[5 : len(value)-1])
	}
	if strings.HasPrefix(value, "$") {
		return os.Getenv(value[1:])
	}
	return value
}
