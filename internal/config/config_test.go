package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clauseguard/internal/analysis"
	"clauseguard/internal/chunker"
	"clauseguard/internal/merge"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		require.Len(t, cfg.Roles, 3)
		assert.Equal(t, "risk", cfg.Roles[0].Name)
		assert.NotNil(t, cfg.Referee)
		assert.Equal(t, ".clauseguard/sessions.db", cfg.CheckpointPath)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeFile(t, "config.yaml", `
roles:
  - name: risk
    lens: risk
    provider: deepseek
    timeout_seconds: 60
  - name: custom
    lens: "FOCUS: construction contracts only."
    provider: openai
    model: gpt-4o-mini
merge:
  threshold: 0.8
chunking:
  max_size: 4000
stance: ourside
checkpoint_path: /tmp/cg.db
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		require.Len(t, cfg.Roles, 2)
		assert.Equal(t, "deepseek", cfg.Roles[0].Provider)
		assert.Equal(t, "gpt-4o-mini", cfg.Roles[1].Model)
		assert.Equal(t, "ourside", cfg.Stance)
		assert.Equal(t, "/tmp/cg.db", cfg.CheckpointPath)
	})

	t.Run("malformed yaml rejected", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "roles: [unterminated")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestMergeOptions(t *testing.T) {
	t.Run("unset fields use merger defaults", func(t *testing.T) {
		cfg := Default()
		mc := cfg.MergeOptions()
		assert.Equal(t, merge.DefaultThreshold, mc.Threshold)
		assert.Equal(t, 20.0, mc.ConfidenceWeight)
	})

	t.Run("set fields carry through", func(t *testing.T) {
		cfg := Default()
		cfg.Merge.Threshold = 0.8
		cfg.Merge.CorroborationBonus = 15
		mc := cfg.MergeOptions()
		assert.Equal(t, 0.8, mc.Threshold)
		assert.Equal(t, 15.0, mc.CorroborationBonus)
	})
}

func TestChunkingOptions(t *testing.T) {
	cfg := Default()
	maxSize, overlap := cfg.ChunkingOptions()
	assert.Equal(t, chunker.DefaultMaxSize, maxSize)
	assert.Equal(t, chunker.DefaultOverlap, overlap)

	cfg.Chunking.MaxSize = 4000
	maxSize, _ = cfg.ChunkingOptions()
	assert.Equal(t, 4000, maxSize)
}

func TestLensText(t *testing.T) {
	assert.Equal(t, analysis.LensRisk, lensText("risk"))
	assert.Equal(t, analysis.LensCommercial, lensText("commercial"))
	assert.Equal(t, analysis.LensCompliance, lensText("compliance"))
	assert.Equal(t, "FOCUS: custom text", lensText("FOCUS: custom text"))
}

func TestBuildRoles(t *testing.T) {
	t.Run("explicit provider uses its env key", func(t *testing.T) {
		t.Setenv("DEEPSEEK_API_KEY", "dk")
		cfg := &Config{Roles: []RoleConfig{
			{Name: "risk", Lens: "risk", Provider: "deepseek", TimeoutSeconds: 30},
		}}
		roles, err := cfg.BuildRoles()
		require.NoError(t, err)
		require.Len(t, roles, 1)
		assert.Equal(t, "risk", roles[0].Name)
		assert.Equal(t, analysis.LensRisk, roles[0].Lens)
		assert.NotNil(t, roles[0].Client)
	})

	t.Run("missing env key fails with the role name", func(t *testing.T) {
		t.Setenv("MOONSHOT_API_KEY", "")
		cfg := &Config{Roles: []RoleConfig{
			{Name: "compliance", Provider: "moonshot"},
		}}
		_, err := cfg.BuildRoles()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "compliance")
	})
}

func TestBuildReferee(t *testing.T) {
	t.Run("nil referee config yields zero role", func(t *testing.T) {
		cfg := &Config{}
		role := cfg.BuildReferee()
		assert.Nil(t, role.Client)
	})

	t.Run("unavailable backend degrades to zero role", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		cfg := &Config{Referee: &RoleConfig{Provider: "openai"}}
		role := cfg.BuildReferee()
		assert.Nil(t, role.Client)
	})

	t.Run("configured backend builds a client", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "ok")
		cfg := &Config{Referee: &RoleConfig{Provider: "openai"}}
		role := cfg.BuildReferee()
		assert.NotNil(t, role.Client)
		assert.Equal(t, "referee", role.Name)
	})
}

func TestLoadRules(t *testing.T) {
	t.Run("bare list", func(t *testing.T) {
		path := writeFile(t, "rules.yaml", `
- id: r1
  name: 违约金审查
  description: 违约金不得超过司法保护上限
  priority: 10
- id: r2
  name: 利率审查
  description: 利率不得超过法定上限
  priority: 5
`)
		rules, err := LoadRules(path)
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, "r1", rules[0].ID)
		assert.Equal(t, 10, rules[0].Priority)
	})

	t.Run("wrapped list", func(t *testing.T) {
		path := writeFile(t, "rules.yaml", `
rules:
  - id: r1
    name: n
    description: d
    priority: 1
`)
		rules, err := LoadRules(path)
		require.NoError(t, err)
		require.Len(t, rules, 1)
	})

	t.Run("rule without id rejected", func(t *testing.T) {
		path := writeFile(t, "rules.yaml", "- name: no-id\n  priority: 1\n")
		_, err := LoadRules(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("empty file rejected", func(t *testing.T) {
		path := writeFile(t, "rules.yaml", "")
		_, err := LoadRules(path)
		assert.Error(t, err)
	})
}
