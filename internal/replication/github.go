package replication

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/tempkey-core/internal/infrastructure/github"
)

// defaultMaxAttempts bounds read-then-write cycles on SHA conflicts.
const defaultMaxAttempts = 3

// ContentsClient is the part of the GitHub client the sink uses.
type ContentsClient interface {
	GetContents(ctx context.Context, owner, repo, filePath, ref string) (*github.Contents, error)
	PutContents(ctx context.Context, owner, repo, filePath string, request github.PutContentsRequest) (*github.PutContentsResponse, error)
}

// GitHubConfig configures a GitHubSink.
type GitHubConfig struct {
	Owner       string
	Repo        string
	Path        string
	Branch      string
	Message     string
	MaxAttempts int
}

// GitHubSink replaces the record file through the contents API, guarded by
// the blob SHA read just before the write.
type GitHubSink struct {
	client ContentsClient
	cfg    GitHubConfig
}

// NewGitHubSink returns a sink writing through client.
func NewGitHubSink(client ContentsClient, cfg GitHubConfig) (*GitHubSink, error) {
	if client == nil {
		return nil, errors.New("github sink: client is required")
	}
	if cfg.Owner == "" || cfg.Repo == "" || cfg.Path == "" {
		return nil, errors.New("github sink: owner, repo and path are required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &GitHubSink{client: client, cfg: cfg}, nil
}

// Name implements Sink.
func (s *GitHubSink) Name() string {
	return "github"
}

// Publish reads the remote SHA, returns ErrNothingToPublish when the remote
// bytes already match, and otherwise writes content conditioned on that SHA.
// A 409 means another writer moved the file; the cycle repeats up to
// MaxAttempts times.
func (s *GitHubSink) Publish(ctx context.Context, content []byte) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		sha, unchanged, err := s.currentSHA(ctx, content)
		if err != nil {
			return err
		}
		if unchanged {
			return ErrNothingToPublish
		}

		_, err = s.client.PutContents(ctx, s.cfg.Owner, s.cfg.Repo, s.cfg.Path, github.PutContentsRequest{
			Message: s.cfg.Message,
			Content: content,
			SHA:     sha,
			Branch:  s.cfg.Branch,
		})
		if err == nil {
			return nil
		}
		if !github.IsConflict(err) {
			return err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("github sink: gave up after %d attempts: %w", s.cfg.MaxAttempts, lastErr)
}

// currentSHA returns the remote blob SHA ("" when the file does not exist)
// and whether the remote content already equals content.
func (s *GitHubSink) currentSHA(ctx context.Context, content []byte) (string, bool, error) {
	existing, err := s.client.GetContents(ctx, s.cfg.Owner, s.cfg.Repo, s.cfg.Path, s.cfg.Branch)
	if github.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	remote, err := existing.Decoded()
	if err != nil {
		// Undecodable remote content is overwritten.
		return existing.SHA, false, nil //nolint:nilerr // remote content is replaced below
	}
	return existing.SHA, bytes.Equal(remote, content), nil
}
