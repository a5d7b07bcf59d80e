// Package config loads the clauseguard configuration and rule files.
// Configuration lives in YAML; API keys come from the environment only.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"clauseguard/internal/analysis"
	"clauseguard/internal/chunker"
	"clauseguard/internal/llm"
	"clauseguard/internal/merge"
	"clauseguard/internal/types"
)

// RoleConfig declares one model role: which backend it runs on and which
// review lens it applies.
type RoleConfig struct {
	Name           string `yaml:"name"`
	Lens           string `yaml:"lens"` // risk, commercial, compliance, or literal instruction text
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model,omitempty"`
	MaxTokens      int    `yaml:"max_tokens,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// MergeConfig tunes the similarity merger.
type MergeConfig struct {
	Threshold          float64 `yaml:"threshold,omitempty"`
	ConfidenceWeight   float64 `yaml:"confidence_weight,omitempty"`
	CorroborationBonus float64 `yaml:"corroboration_bonus,omitempty"`
}

// ChunkingConfig tunes the document chunker.
type ChunkingConfig struct {
	MaxSize int `yaml:"max_size,omitempty"`
	Overlap int `yaml:"overlap,omitempty"`
}

// Config is the full runtime configuration.
type Config struct {
	Roles    []RoleConfig   `yaml:"roles"`
	Referee  *RoleConfig    `yaml:"referee,omitempty"`
	Merge    MergeConfig    `yaml:"merge,omitempty"`
	Chunking ChunkingConfig `yaml:"chunking,omitempty"`

	Stance         string `yaml:"stance,omitempty"`
	CheckpointPath string `yaml:"checkpoint_path,omitempty"`
	RulesPath      string `yaml:"rules_path,omitempty"`
	WatchDir       string `yaml:"watch_dir,omitempty"`
}

// Default returns the configuration used when no config file exists: three
// review roles on the auto-detected provider, referee on the same backend.
func Default() *Config {
	return &Config{
		Roles: []RoleConfig{
			{Name: "risk", Lens: "risk", Provider: "auto"},
			{Name: "commercial", Lens: "commercial", Provider: "auto"},
			{Name: "compliance", Lens: "compliance", Provider: "auto"},
		},
		Referee:        &RoleConfig{Name: "referee", Provider: "auto"},
		CheckpointPath: ".clauseguard/sessions.db",
	}
}

// Load reads the config file at path. A missing file yields Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.Roles) == 0 {
		return nil, fmt.Errorf("config %s declares no roles", path)
	}
	return cfg, nil
}

// MergeOptions converts the merge section into merger settings, filling
// defaults for anything unset.
func (c *Config) MergeOptions() merge.Config {
	mc := merge.DefaultConfig()
	if c.Merge.Threshold > 0 {
		mc.Threshold = c.Merge.Threshold
	}
	if c.Merge.ConfidenceWeight > 0 {
		mc.ConfidenceWeight = c.Merge.ConfidenceWeight
	}
	if c.Merge.CorroborationBonus > 0 {
		mc.CorroborationBonus = c.Merge.CorroborationBonus
	}
	return mc
}

// ChunkingOptions returns (maxSize, overlap) with defaults applied.
func (c *Config) ChunkingOptions() (int, int) {
	maxSize, overlap := chunker.DefaultMaxSize, chunker.DefaultOverlap
	if c.Chunking.MaxSize > 0 {
		maxSize = c.Chunking.MaxSize
	}
	if c.Chunking.Overlap > 0 {
		overlap = c.Chunking.Overlap
	}
	return maxSize, overlap
}

// lensText resolves a lens shorthand to instruction text. Unknown values
// are treated as literal instruction text so custom lenses need no code.
func lensText(lens string) string {
	switch lens {
	case "risk":
		return analysis.LensRisk
	case "commercial":
		return analysis.LensCommercial
	case "compliance":
		return analysis.LensCompliance
	}
	return lens
}

// buildClient resolves a role's provider and API key into a client.
func buildClient(rc RoleConfig) (llm.LLMClient, error) {
	timeout := time.Duration(rc.TimeoutSeconds) * time.Second

	if rc.Provider == "" || rc.Provider == "auto" {
		provider, key, err := llm.DetectProvider()
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", rc.Name, err)
		}
		return llm.NewClient(provider, key, rc.Model, rc.MaxTokens, timeout)
	}

	provider := llm.Provider(rc.Provider)
	key := llm.APIKeyFromEnv(provider)
	if key == "" {
		return nil, fmt.Errorf("role %s: no API key in environment for provider %s", rc.Name, provider)
	}
	return llm.NewClient(provider, key, rc.Model, rc.MaxTokens, timeout)
}

// BuildRoles constructs the model roles declared in the config.
func (c *Config) BuildRoles() ([]analysis.ModelRole, error) {
	roles := make([]analysis.ModelRole, 0, len(c.Roles))
	for _, rc := range c.Roles {
		client, err := buildClient(rc)
		if err != nil {
			return nil, err
		}
		roles = append(roles, analysis.ModelRole{
			Name:    rc.Name,
			Lens:    lensText(rc.Lens),
			Client:  client,
			Timeout: time.Duration(rc.TimeoutSeconds) * time.Second,
		})
	}
	return roles, nil
}

// BuildReferee constructs the referee role, or a zero role (local fallback
// synthesis) when no referee is configured or its backend is unavailable.
func (c *Config) BuildReferee() analysis.ModelRole {
	if c.Referee == nil {
		return analysis.ModelRole{}
	}
	client, err := buildClient(*c.Referee)
	if err != nil {
		return analysis.ModelRole{}
	}
	name := c.Referee.Name
	if name == "" {
		name = "referee"
	}
	return analysis.ModelRole{
		Name:    name,
		Client:  client,
		Timeout: time.Duration(c.Referee.TimeoutSeconds) * time.Second,
	}
}

// rulesFile is the YAML shape of a rules file: either a bare list or a
// document with a top-level "rules" key.
type rulesFile struct {
	Rules []types.Rule `yaml:"rules"`
}

// LoadRules reads an ordered rule list from a YAML file.
func LoadRules(path string) ([]types.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}

	var doc rulesFile
	if err := yaml.Unmarshal(data, &doc); err == nil && len(doc.Rules) > 0 {
		return validateRules(doc.Rules, path)
	}

	var list []types.Rule
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return validateRules(list, path)
}

func validateRules(rules []types.Rule, path string) ([]types.Rule, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("rules file %s is empty", path)
	}
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rules file %s: rule %d has no id", path, i+1)
		}
	}
	return rules, nil
}
