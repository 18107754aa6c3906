// Package config reads the repository's local configuration file: which
// CI/build-status providers to query and how aggressively the watcher
// should re-render after filesystem activity. Everything has a default, so
// a repository with no config file behaves exactly like one with an empty
// object.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RepoConfig is the JSON shape of .git/.branchgraph_config.
type RepoConfig struct {
	TrunkName           *string  `json:"trunk,omitempty"`
	GitHubCI            *bool    `json:"githubCI,omitempty"`
	BuildServerRemotes  []string `json:"buildServerRemotes,omitempty"`
	DebounceMillis      *int     `json:"debounceMillis,omitempty"`
	PollIntervalSeconds *int     `json:"pollIntervalSeconds,omitempty"`
}

const (
	// DefaultDebounce is how long the watcher waits after the last
	// filesystem event before re-rendering, coalescing a burst of
	// refs/index writes (e.g. from a rebase) into one redraw.
	DefaultDebounce = 150 * time.Millisecond

	// DefaultPollInterval is how often a PollingTrigger-backed CI status
	// cell re-checks its provider.
	DefaultPollInterval = 30 * time.Second

	configFileName = ".branchgraph_config"
)

// Load reads .git/.branchgraph_config under gitDir. A missing file is not
// an error: it yields a zero-value RepoConfig, so every accessor below
// falls back to its default.
func Load(gitDir string) (*RepoConfig, error) {
	data, err := os.ReadFile(filepath.Join(gitDir, configFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &RepoConfig{}, nil
		}
		return nil, fmt.Errorf("reading repo config: %w", err)
	}

	var cfg RepoConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing repo config: %w", err)
	}
	return &cfg, nil
}

// Trunk returns the configured trunk branch name, defaulting to "main".
func (c *RepoConfig) Trunk() string {
	if c.TrunkName != nil && *c.TrunkName != "" {
		return *c.TrunkName
	}
	return "main"
}

// Debounce returns the configured filesystem-watch debounce interval.
func (c *RepoConfig) Debounce() time.Duration {
	if c.DebounceMillis != nil && *c.DebounceMillis > 0 {
		return time.Duration(*c.DebounceMillis) * time.Millisecond
	}
	return DefaultDebounce
}

// PollInterval returns the configured CI-provider poll interval.
func (c *RepoConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds != nil && *c.PollIntervalSeconds > 0 {
		return time.Duration(*c.PollIntervalSeconds) * time.Second
	}
	return DefaultPollInterval
}

// GitHubCIEnabled reports whether the GitHub Checks provider should be
// wired in. Defaults to true; set "githubCI": false to disable it (e.g.
// for a repository with no GitHub remote).
func (c *RepoConfig) GitHubCIEnabled() bool {
	return c.GitHubCI == nil || *c.GitHubCI
}

// BuildServerRemotesOrAll returns the remote names to query a self-hosted
// build server for. An empty list means "every remote with a
// buildserver-url configured", which ResolveBuildServerURLs already
// filters to.
func (c *RepoConfig) BuildServerRemotesOrAll(configured map[string]string) []string {
	if len(c.BuildServerRemotes) > 0 {
		return c.BuildServerRemotes
	}
	names := make([]string, 0, len(configured))
	for name := range configured {
		names = append(names, name)
	}
	return names
}
