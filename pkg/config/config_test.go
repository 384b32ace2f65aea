package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "api.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 8080
agent:
  max_steps: 6
  tool_timeout: "10s"
  shortcuts:
    - name: assistant
      max_steps: 8
stores:
  conversation:
    type: memory
  trace:
    type: memory
log:
  level: debug
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 6, cfg.Agent.MaxSteps)
	assert.Equal(t, "10s", cfg.Agent.ToolTimeout)
	require.Len(t, cfg.Agent.Shortcuts, 1)
	assert.Equal(t, "assistant", cfg.Agent.Shortcuts[0].Name)
	assert.Equal(t, "memory", cfg.Stores.Conversation.Type)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestReplaceEnvVars(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-test")
	path := writeConfig(t, `
model:
  llm:
    providers:
      openai:
        api_key: ${TEST_LLM_KEY}
  defaults:
    llm: openai/gpt-4o-mini
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Model.LLM.Providers["openai"].APIKey)

	provider, model := cfg.DefaultLLM()
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "gpt-4o-mini", model)
}

func TestDefaultLLMFallback(t *testing.T) {
	var cfg *Config
	provider, model := cfg.DefaultLLM()
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "", model)
}
