package replication

import (
	"fmt"

	"github.com/nerrad567/tempkey-core/internal/infrastructure/config"
	"github.com/nerrad567/tempkey-core/internal/infrastructure/github"
)

// Deps carries the clients a strategy may need. Only the one matching the
// configured strategy must be set.
type Deps struct {
	// StorePath is the record file the git strategy commits.
	StorePath string

	// GitHub overrides the contents client built from config (tests).
	GitHub ContentsClient

	// MQTT is the connected client for the mqtt strategy.
	MQTT RetainedPublisher
}

// NewSink builds the Sink for cfg.Strategy. StrategyNone returns a nil Sink
// and no error.
func NewSink(cfg config.ReplicationConfig, deps Deps) (Sink, error) {
	switch cfg.Strategy {
	case "", config.StrategyNone:
		return nil, nil

	case config.StrategyGit:
		return NewGitSink(GitConfig{
			RepoDir:     cfg.Git.RepoDir,
			FilePath:    deps.StorePath,
			RemoteName:  cfg.Git.RemoteName,
			RemoteURL:   cfg.Git.RemoteURL,
			Token:       cfg.Git.Token,
			Branch:      cfg.Git.Branch,
			AuthorName:  cfg.Git.AuthorName,
			AuthorEmail: cfg.Git.AuthorEmail,
			Message:     cfg.Git.Message,
		})

	case config.StrategyGitHub:
		client := deps.GitHub
		if client == nil {
			gh, err := github.NewClient(github.Config{
				BaseURL: cfg.GitHub.BaseURL,
				Token:   cfg.GitHub.Token,
			})
			if err != nil {
				return nil, err
			}
			client = gh
		}
		return NewGitHubSink(client, GitHubConfig{
			Owner:       cfg.GitHub.Owner,
			Repo:        cfg.GitHub.Repo,
			Path:        cfg.GitHub.Path,
			Branch:      cfg.GitHub.Branch,
			Message:     cfg.GitHub.Message,
			MaxAttempts: cfg.GitHub.MaxAttempts,
		})

	case config.StrategyMQTT:
		if deps.MQTT == nil {
			return nil, fmt.Errorf("mqtt strategy: no MQTT client")
		}
		return NewMQTTSink(deps.MQTT, cfg.MQTT.Name)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
}
