package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/evmts/smithers/pkg/types"
)

// Load loads configuration from multiple sources (priority order):
// 1. .env files (global config dir, then project directory)
// 2. Global config (~/.config/smithers/)
// 3. Project config (.smithers/)
// 4. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
		Agent:    make(map[string]types.AgentConfig),
	}

	loadDotEnv(GetPaths().Config)
	if directory != "" {
		loadDotEnv(directory)
	}

	globalPath := GetPaths().Config
	loadConfigFile(filepath.Join(globalPath, "smithers.json"), config)
	loadConfigFile(filepath.Join(globalPath, "smithers.jsonc"), config)

	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".smithers", "smithers.json"), config)
		loadConfigFile(filepath.Join(directory, ".smithers", "smithers.jsonc"), config)
	}

	applyEnvOverrides(config)

	return config, nil
}

// loadDotEnv loads a ".env" file from dir into the process environment.
// Existing environment variables always win (godotenv.Load never
// overwrites a variable that's already set), so shell-exported credentials
// take priority over a committed .env file.
func loadDotEnv(dir string) {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// loadConfigFile loads a single JSONC config file, merging it into config.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	data = jsonc.ToJSON(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}
	if source.DebugLevel != "" {
		target.DebugLevel = source.DebugLevel
	}

	// Merge providers
	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	// Merge agents
	if source.Agent != nil {
		if target.Agent == nil {
			target.Agent = make(map[string]types.AgentConfig)
		}
		for k, v := range source.Agent {
			target.Agent[k] = v
		}
	}

	// Merge MCP config
	if source.MCP != nil {
		if target.MCP == nil {
			target.MCP = make(map[string]types.MCPConfig)
		}
		for k, v := range source.MCP {
			target.MCP[k] = v
		}
	}

	// Merge watcher config
	if source.Watcher != nil {
		target.Watcher = source.Watcher
	}

	// Merge experimental config
	if source.Experimental != nil {
		target.Experimental = source.Experimental
	}
}

// applyEnvOverrides applies environment variable overrides per the spec's
// required/optional configuration keys: the provider credential
// (ANTHROPIC_API_KEY), and the optional SMITHERS_MODEL / SMITHERS_DEBUG_LEVEL
// overrides.
func applyEnvOverrides(config *types.Config) {
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		if config.Provider == nil {
			config.Provider = make(map[string]types.ProviderConfig)
		}
		p := config.Provider["anthropic"]
		if p.APIKey == "" {
			p.APIKey = apiKey
			config.Provider["anthropic"] = p
		}
	}

	if model := os.Getenv("SMITHERS_MODEL"); model != "" {
		config.Model = model
	}

	if level := os.Getenv("SMITHERS_DEBUG_LEVEL"); level != "" {
		config.DebugLevel = level
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
