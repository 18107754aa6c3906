package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "main", cfg.Trunk())
	require.Equal(t, DefaultDebounce, cfg.Debounce())
	require.Equal(t, DefaultPollInterval, cfg.PollInterval())
	require.True(t, cfg.GitHubCIEnabled())
}

func TestLoadParsesConfiguredValues(t *testing.T) {
	dir := t.TempDir()
	body := `{"trunk":"develop","githubCI":false,"debounceMillis":500,"pollIntervalSeconds":10,"buildServerRemotes":["ci"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".branchgraph_config"), []byte(body), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "develop", cfg.Trunk())
	require.False(t, cfg.GitHubCIEnabled())
	require.Equal(t, 500*time.Millisecond, cfg.Debounce())
	require.Equal(t, 10*time.Second, cfg.PollInterval())
	require.Equal(t, []string{"ci"}, cfg.BuildServerRemotesOrAll(map[string]string{"ci": "x", "other": "y"}))
}

func TestBuildServerRemotesOrAllDefaultsToEveryConfiguredRemote(t *testing.T) {
	cfg := &RepoConfig{}
	got := cfg.BuildServerRemotesOrAll(map[string]string{"ci": "x", "staging": "y"})
	require.ElementsMatch(t, []string{"ci", "staging"}, got)
}
