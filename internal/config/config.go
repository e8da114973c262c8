package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
)

// Config is the evchan CLI configuration.
type Config struct {
	// LogLevel is one of DEBUG, INFO, WARN, ERROR, OFF.
	LogLevel string `json:"logLevel,omitempty"`
	// PrettyLogs selects console log output instead of JSON.
	PrettyLogs *bool `json:"prettyLogs,omitempty"`
	// Mirror forwards bus events to the watermill pub/sub.
	Mirror *bool `json:"mirror,omitempty"`
	// NoColor disables colored CLI output.
	NoColor *bool `json:"noColor,omitempty"`
	// Topology is the default topology file. Relative paths are resolved
	// against the directory of the config file that set it.
	Topology string `json:"topology,omitempty"`
}

// Pretty reports whether pretty logs are enabled.
func (c *Config) Pretty() bool { return boolValue(c.PrettyLogs) }

// MirrorEnabled reports whether bus mirroring is enabled.
func (c *Config) MirrorEnabled() bool { return boolValue(c.Mirror) }

// ColorDisabled reports whether colored output is disabled.
func (c *Config) ColorDisabled() bool { return boolValue(c.NoColor) }

func boolValue(p *bool) bool {
	return p != nil && *p
}

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/evchan/)
// 2. Project config (evchan.json[c], .evchan/evchan.json[c])
// 3. EVCHAN_CONFIG file
// 4. EVCHAN_CONFIG_CONTENT inline JSON
// 5. Environment variables
func Load(directory string) (*Config, error) {
	config := &Config{}

	loaded := make(map[string]bool)
	loadOnce := func(path string) {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return
		}
		if loadConfigFile(absPath, config) == nil {
			loaded[absPath] = true
		}
	}

	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "evchan.json"))
	loadOnce(filepath.Join(globalPath, "evchan.jsonc"))

	if directory != "" {
		loadOnce(filepath.Join(directory, "evchan.json"))
		loadOnce(filepath.Join(directory, "evchan.jsonc"))
		loadOnce(filepath.Join(directory, ".evchan", "evchan.json"))
		loadOnce(filepath.Join(directory, ".evchan", "evchan.jsonc"))
	}

	if configPath := os.Getenv("EVCHAN_CONFIG"); configPath != "" {
		loadOnce(configPath)
	}

	if configContent := os.Getenv("EVCHAN_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(configContent)), &inlineConfig); err == nil {
			mergeConfig(config, &inlineConfig)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = interpolate(jsonc.ToJSON(data))

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	if fileConfig.Topology != "" && !filepath.IsAbs(fileConfig.Topology) {
		fileConfig.Topology = filepath.Join(filepath.Dir(path), fileConfig.Topology)
	}

	mergeConfig(config, &fileConfig)
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate replaces {env:VAR} placeholders.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *Config) {
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.PrettyLogs != nil {
		target.PrettyLogs = source.PrettyLogs
	}
	if source.Mirror != nil {
		target.Mirror = source.Mirror
	}
	if source.NoColor != nil {
		target.NoColor = source.NoColor
	}
	if source.Topology != "" {
		target.Topology = source.Topology
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *Config) {
	if level := os.Getenv("EVCHAN_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if topology := os.Getenv("EVCHAN_TOPOLOGY"); topology != "" {
		config.Topology = topology
	}

	boolEnv := map[string]**bool{
		"EVCHAN_PRETTY_LOGS": &config.PrettyLogs,
		"EVCHAN_MIRROR":      &config.Mirror,
		"EVCHAN_NO_COLOR":    &config.NoColor,
	}
	for name, field := range boolEnv {
		if v, ok := parseBoolEnv(name); ok {
			*field = &v
		}
	}

	// https://no-color.org
	if _, set := os.LookupEnv("NO_COLOR"); set && config.NoColor == nil {
		v := true
		config.NoColor = &v
	}
}

func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// Save saves the configuration to a file.
func Save(config *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
