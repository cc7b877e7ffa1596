// Package config provides configuration loading, merging, and path management
// for smithers.
//
// # Configuration Loading
//
// The Load function merges configuration from multiple sources in priority
// order, later sources overriding earlier ones:
//
//  1. .env files (global config dir, then project directory) via godotenv
//  2. Global config (~/.config/smithers/smithers.json, smithers.jsonc)
//  3. Project config (<directory>/.smithers/smithers.json, smithers.jsonc)
//  4. Environment variables (ANTHROPIC_API_KEY, SMITHERS_MODEL,
//     SMITHERS_DEBUG_LEVEL)
//
// # Supported Formats
//
// The package supports both JSON and JSONC (JSON with Comments):
//   - smithers.json - Standard JSON configuration
//   - smithers.jsonc - JSON with comments, stripped via tidwall/jsonc
//     before being handed to encoding/json
//
// # Configuration Merging
//
// mergeConfig overwrites scalar fields (model, small_model, debugLevel) and
// merges map fields (provider, agent, mcp) key by key, so a project config
// can add or override a single provider/agent/mcp entry without having to
// restate the whole global config.
//
// # Path Management
//
// Paths follows the XDG Base Directory Specification:
//   - Data: ~/.local/share/smithers (XDG_DATA_HOME)
//   - Config: ~/.config/smithers (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/smithers (XDG_CACHE_HOME)
//   - State: ~/.local/state/smithers (XDG_STATE_HOME)
//
// On Windows these paths fall back to APPDATA.
//
// # Usage Example
//
//	config, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	paths := config.GetPaths()
//	if err := paths.EnsurePaths(); err != nil {
//	    log.Fatal(err)
//	}
package config
