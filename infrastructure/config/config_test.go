package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.StorageBackend)
	assert.Equal(t, DispatchInProcess, cfg.DispatchMode)
	assert.Equal(t, 50, cfg.StepBudget)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/test.db")
	t.Setenv("JOB_TIMEOUT", "90")
	t.Setenv("GENERATOR_TIMEOUT", "2s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorageSQLite, cfg.StorageBackend)
	assert.Equal(t, 90*time.Second, cfg.JobTimeout)
	assert.Equal(t, 2*time.Second, cfg.GeneratorTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestValidateRejectsBadCombinations(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"STORAGE_BACKEND": "redis"}},
		{"unknown dispatch", map[string]string{"DISPATCH_MODE": "carrier-pigeon"}},
		{"eventbridge on memory", map[string]string{"DISPATCH_MODE": "eventbridge"}},
		{"memory in production", map[string]string{"ENVIRONMENT": "production"}},
		{"zero budget", map[string]string{"STEP_BUDGET": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadPromptConfigMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := `
agent_name: Storyteller
path_options:
  - Funny
  - Serious
styles:
  researcher:
    color: "9"
    emoji: "📚"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadPromptConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Storyteller", cfg.AgentName)
	assert.Equal(t, []string{"Funny", "Serious"}, cfg.PathOptions)
	assert.Equal(t, DefaultPromptConfig().BeginTemplate, cfg.BeginTemplate)
	assert.Equal(t, "📚", cfg.Style("researcher").Emoji)
	assert.Equal(t, "🎯", cfg.Style("supervisor").Emoji)
}

func TestLoadPromptConfigRejectsDuplicateOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("path_options: [A, A]\n"), 0o600))

	_, err := LoadPromptConfig(path)
	assert.Error(t, err)
}

func TestLoadPromptConfigEmptyPath(t *testing.T) {
	cfg, err := LoadPromptConfig("")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.PathOptions)
}
