// Package config loads phasegate settings from a YAML file and PHASEGATE_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/pablasso/phasegate/internal/artifact"
	"github.com/pablasso/phasegate/internal/assistant"
	"github.com/pablasso/phasegate/internal/engine"
	"github.com/pablasso/phasegate/internal/logging"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PHASEGATE_"

	// DefaultFile is read from the working directory when no file is given.
	DefaultFile = ".phasegate.yaml"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Default values.
const (
	DefaultChecklistDir      = ".checklists"
	DefaultStateDir          = "."
	DefaultArtifactMaxAgeDay = 7
)

// Config holds every setting of a phasegate invocation.
type Config struct {
	ChecklistDir       string           `koanf:"checklist_dir"`
	StateDir           string           `koanf:"state_dir"`
	ArtifactDir        string           `koanf:"artifact_dir"`
	ProcessTimeout     time.Duration    `koanf:"process_timeout"`
	BlockedPolicy      string           `koanf:"blocked_policy"`
	ArtifactMaxAgeDays int              `koanf:"artifact_max_age_days"`
	Log                logging.Config   `koanf:"log"`
	Assistant          assistant.Config `koanf:"assistant"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load builds the configuration.
//
// Precedence, highest first:
//  1. PHASEGATE_* environment variables
//  2. the YAML file at path (or DefaultFile when path is empty and it exists)
//  3. defaults
//
// An explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	content, err := readConfigFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// sections are the nested config keys. Everything else is top level and keeps
// its underscores.
var sections = []string{"log", "assistant"}

// envKey maps PHASEGATE_LOG_LEVEL to log.level, PHASEGATE_ASSISTANT_BASE_URL
// to assistant.base_url and PHASEGATE_STATE_DIR to state_dir.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

func applyDefaults(cfg *Config) {
	if cfg.ChecklistDir == "" {
		cfg.ChecklistDir = DefaultChecklistDir
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = artifact.DefaultRoot
	}
	if cfg.BlockedPolicy == "" {
		cfg.BlockedPolicy = string(engine.BlockedHalt)
	}
	if cfg.ArtifactMaxAgeDays == 0 {
		cfg.ArtifactMaxAgeDays = DefaultArtifactMaxAgeDay
	}

	defaults := logging.NewDefaultConfig()
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Format
	}

	if cfg.Assistant.Backend == "" {
		cfg.Assistant.Backend = assistant.BackendNop
	}
	if cfg.Assistant.Timeout == 0 {
		cfg.Assistant.Timeout = assistant.DefaultTimeout
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if c.ProcessTimeout < 0 {
		return fmt.Errorf("process_timeout must not be negative, got %s", c.ProcessTimeout)
	}
	if c.ArtifactMaxAgeDays < 0 {
		return fmt.Errorf("artifact_max_age_days must not be negative, got %d", c.ArtifactMaxAgeDays)
	}
	if c.Assistant.Timeout < 0 {
		return fmt.Errorf("assistant.timeout must not be negative, got %s", c.Assistant.Timeout)
	}
	if _, err := engine.ParseBlockedPolicy(c.BlockedPolicy); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}

	switch strings.ToLower(c.Assistant.Backend) {
	case assistant.BackendNop, "none", assistant.BackendClaude:
	case assistant.BackendOpenAI:
		if c.Assistant.BaseURL == "" || c.Assistant.Model == "" {
			return errors.New("assistant.base_url and assistant.model are required for the openai backend")
		}
	default:
		return fmt.Errorf("unknown assistant backend %q", c.Assistant.Backend)
	}
	return nil
}
