package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/beadworks/beads/internal/debug"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()

	// Only config.yaml is loaded; metadata.json is internal and read
	// separately by workspace discovery.
	v.SetConfigType("yaml")

	// Precedence: project .beads/config.yaml > ~/.config/bd/config.yaml
	// > ~/.beads/config.yaml.
	configFileSet := false

	// Walk up from CWD so commands work from subdirectories.
	cwd, err := os.Getwd()
	if err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".beads", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "bd", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, ".beads", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Environment variables take precedence over the config file:
	// BD_JSON, BD_ACTOR, BD_DB, BD_NO_AUTO_IMPORT, ...
	v.SetEnvPrefix("BD")

	// Hyphens and dots become underscores, so BD_NO_AUTO_FLUSH maps to
	// the "no-auto-flush" key.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("no-db", false)
	v.SetDefault("no-auto-flush", false)
	v.SetDefault("no-auto-import", false)
	v.SetDefault("db", "")
	v.SetDefault("actor", "")
	v.SetDefault("issue-prefix", "")
	v.SetDefault("sync-branch", "")
	v.SetDefault("flush-debounce", "30s")
	v.SetDefault("lock-timeout", "30s")

	// BEADS_DB predates the BD_ prefix and stays honored.
	_ = v.BindEnv("db", "BD_DB", "BEADS_DB")
	_ = v.BindEnv("flush-debounce", "BD_FLUSH_DEBOUNCE", "BEADS_FLUSH_DEBOUNCE")

	// Maximum nesting depth for hierarchical child IDs (bd-abc.1.2.3).
	// Default matches idgen.MaxDepth.
	v.SetDefault("hierarchy.max-depth", 3)

	// ID generation scheme for new issues: "hex" or "base36".
	v.SetDefault("id-alphabet", "hex")

	// Compaction of long-closed issue text. The API key may also come
	// from ANTHROPIC_API_KEY, which wins over this setting.
	v.SetDefault("compaction.enabled", true)
	v.SetDefault("compaction.api-key", "")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("loaded config from %s", v.ConfigFileUsed())
	} else {
		debug.Logf("no config.yaml found; using defaults and environment variables")
	}

	return nil
}

// ConfigSource represents where a configuration value came from.
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
	SourceFlag       ConfigSource = "flag"
)

// GetValueSource returns the source of a configuration value.
// Priority (highest to lowest): env var > config file > default.
// Flag overrides are handled in cmd/bd since viper does not see cobra
// flags.
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}

	upper := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(key, "-", "_"), ".", "_"))
	if os.Getenv("BD_"+upper) != "" {
		return SourceEnvVar
	}
	if os.Getenv("BEADS_"+upper) != "" {
		return SourceEnvVar
	}

	if v.InConfig(key) {
		return SourceConfigFile
	}

	return SourceDefault
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set sets a configuration value for the rest of the process. Flag
// precedence is applied this way from cmd/bd.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// GetActor resolves the audit actor name.
// Priority chain:
//  1. flagValue (from --actor)
//  2. BD_ACTOR env var / config.yaml actor field (via viper)
//  3. git config user.name
//  4. $USER
func GetActor(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if actor := GetString("actor"); actor != "" {
		return actor
	}

	cmd := exec.Command("git", "config", "user.name")
	if output, err := cmd.Output(); err == nil {
		if gitUser := strings.TrimSpace(string(output)); gitUser != "" {
			return gitUser
		}
	}

	if user := os.Getenv("USER"); user != "" {
		return user
	}

	return "unknown"
}
