// Package config loads the per-repository YAML configuration and the
// service settings taken from the environment.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/flakewatch/internal/tracker"
)

const (
	// ConfigPath is where a repository keeps its configuration.
	ConfigPath = ".github/flakewatch.yaml"

	// MisnamedConfigPath is a common mistake that is otherwise ignored.
	MisnamedConfigPath = ".github/flakewatch.yml"

	// OrgConfigRepo holds organization-wide defaults.
	OrgConfigRepo = ".github"

	DefaultPriority = "p1"
)

var validPriorities = []string{"p0", "p1", "p2", "p3", "p4"}

// RepoConfig is the per-repository configuration.
type RepoConfig struct {
	// IssuePriority is used for the "priority: <p>" label on new issues.
	IssuePriority string `yaml:"issuePriority"`
}

// DefaultRepoConfig returns the configuration used when a repository has
// none.
func DefaultRepoConfig() RepoConfig {
	return RepoConfig{IssuePriority: DefaultPriority}
}

// Validate checks if the configuration has valid values
func (c RepoConfig) Validate() error {
	if !slices.Contains(validPriorities, c.IssuePriority) {
		return fmt.Errorf("issuePriority must be one of %v (got %q)", validPriorities, c.IssuePriority)
	}
	return nil
}

// ParseRepoConfig decodes YAML on top of the defaults. Unknown keys are
// rejected.
func ParseRepoConfig(data []byte) (RepoConfig, error) {
	cfg := DefaultRepoConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads and parses a configuration file from disk.
func LoadFile(path string) (RepoConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RepoConfig{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	cfg, err := ParseRepoConfig(data)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// FileSource fetches a file from a repository's default branch. Missing
// files are reported with tracker.ErrNotFound.
type FileSource interface {
	GetFile(ctx context.Context, owner, repo, path string) ([]byte, error)
}

// Load returns the configuration of owner/repo. The repository's own file
// wins; otherwise the owner's .github repository is consulted; otherwise
// the defaults apply. The returned origin names where the config came from.
func Load(ctx context.Context, src FileSource, owner, repo string) (cfg RepoConfig, origin string, err error) {
	for _, candidate := range []string{repo, OrgConfigRepo} {
		data, err := src.GetFile(ctx, owner, candidate, ConfigPath)
		if errors.Is(err, tracker.ErrNotFound) {
			continue
		}
		if err != nil {
			return DefaultRepoConfig(), "", fmt.Errorf("failed to fetch config from %s/%s: %w", owner, candidate, err)
		}
		cfg, err := ParseRepoConfig(data)
		if err != nil {
			return DefaultRepoConfig(), "", fmt.Errorf("%s/%s %s: %w", owner, candidate, ConfigPath, err)
		}
		return cfg, owner + "/" + candidate, nil
	}
	return DefaultRepoConfig(), "default", nil
}

// CheckMisnamed returns an error if owner/repo has a config file under the
// .yml name, which Load never reads.
func CheckMisnamed(ctx context.Context, src FileSource, owner, repo string) error {
	_, err := src.GetFile(ctx, owner, repo, MisnamedConfigPath)
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("failed to check for %s: %w", MisnamedConfigPath, err)
	}
	return fmt.Errorf("found %s; rename it to %s", MisnamedConfigPath, ConfigPath)
}
