package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserConfig_ActiveProfile(t *testing.T) {
	cfg := &UserConfig{
		CurrentProfile: "default",
		Profiles: map[string]Profile{
			"default": {Host: "http://localhost:8080", Output: "table"},
			"staging": {Host: "https://staging.example.com", Output: "json"},
		},
	}

	p := cfg.ActiveProfile("")
	assert.Equal(t, "http://localhost:8080", p.Host)

	p = cfg.ActiveProfile("staging")
	assert.Equal(t, "https://staging.example.com", p.Host)
	assert.Equal(t, "json", p.Output)

	// Unknown profile falls back to an empty one rather than failing,
	// so flags and env still apply.
	p = cfg.ActiveProfile("nonexistent")
	assert.Equal(t, Profile{}, p)
}

func TestLoadSaveUserConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	cfg := &UserConfig{
		CurrentProfile: "test",
		Profiles: map[string]Profile{
			"test": {Host: "http://test:8080", Output: "json"},
		},
	}
	require.NoError(t, SaveUserConfig(cfg))

	_, err := os.Stat(filepath.Join(dir, ".pgadvisor", "config.yaml"))
	require.NoError(t, err)

	loaded, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, "test", loaded.CurrentProfile)
	require.Contains(t, loaded.Profiles, "test")
	assert.Equal(t, "http://test:8080", loaded.Profiles["test"].Host)
	assert.Equal(t, "json", loaded.Profiles["test"].Output)
}

func TestLoadUserConfig_NotFound(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := LoadUserConfig()
	require.Error(t, err)
}
