package replication

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/nerrad567/tempkey-core/internal/infrastructure/git"
)

// GitConfig configures a GitSink.
type GitConfig struct {
	// RepoDir is the working tree. Defaults to the directory of FilePath.
	RepoDir string

	// FilePath is the record file; it must live inside RepoDir.
	FilePath string

	RemoteName string
	RemoteURL  string

	// Token is embedded in https remote URLs as the user component.
	Token string

	Branch      string
	AuthorName  string
	AuthorEmail string
	Message     string
}

// GitSink commits the record file in a local working tree and pushes the
// branch to a remote.
type GitSink struct {
	repo    *git.Repository
	file    string
	cfg     GitConfig
	pushURL string
}

// NewGitSink validates cfg and prepares the repository wrapper. The
// working tree is not touched until Publish.
func NewGitSink(cfg GitConfig) (*GitSink, error) {
	if cfg.FilePath == "" {
		return nil, errors.New("git sink: file path is required")
	}
	if cfg.RemoteURL == "" {
		return nil, errors.New("git sink: remote url is required")
	}
	if cfg.Branch == "" {
		return nil, errors.New("git sink: branch is required")
	}
	if cfg.RemoteName == "" {
		cfg.RemoteName = "origin"
	}

	filePath, err := filepath.Abs(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("git sink: resolving file path: %w", err)
	}
	repoDir := cfg.RepoDir
	if repoDir == "" {
		repoDir = filepath.Dir(filePath)
	}
	repoDir, err = filepath.Abs(repoDir)
	if err != nil {
		return nil, fmt.Errorf("git sink: resolving repo dir: %w", err)
	}

	rel, err := filepath.Rel(repoDir, filePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("git sink: %s is outside the working tree %s", filePath, repoDir)
	}

	pushURL, err := authenticatedURL(cfg.RemoteURL, cfg.Token)
	if err != nil {
		return nil, err
	}

	repo := git.NewRepository(repoDir)
	repo.SetSecrets(cfg.Token)

	return &GitSink{
		repo:    repo,
		file:    filepath.ToSlash(rel),
		cfg:     cfg,
		pushURL: pushURL,
	}, nil
}

// authenticatedURL embeds token as the user of an http(s) remote URL.
// Other URL forms (ssh, local paths) are returned unchanged.
func authenticatedURL(remote, token string) (string, error) {
	if token == "" {
		return remote, nil
	}
	u, err := url.Parse(remote)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return remote, nil //nolint:nilerr // non-URL remotes carry their own credentials
	}
	u.User = url.User(token)
	return u.String(), nil
}

// Name implements Sink.
func (s *GitSink) Name() string {
	return "git"
}

// Publish stages the record file, commits it when it changed and pushes
// the branch. content is already on disk; it is not rewritten here. An
// unchanged file still pushes, so a commit left behind by an earlier failed
// push reaches the remote.
func (s *GitSink) Publish(ctx context.Context, _ []byte) error {
	if err := s.ensureBranch(ctx); err != nil {
		return err
	}

	if _, err := s.repo.Run(ctx, "add", "--", s.file); err != nil {
		return err
	}

	changed, err := s.hasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if changed {
		if _, err := s.repo.Run(ctx,
			"-c", "user.name="+s.cfg.AuthorName,
			"-c", "user.email="+s.cfg.AuthorEmail,
			"commit", "-m", s.cfg.Message,
		); err != nil {
			return err
		}
	}

	if err := s.ensureRemote(ctx); err != nil {
		return err
	}

	refspec := s.cfg.Branch + ":" + s.cfg.Branch
	if _, err := s.repo.Run(ctx, "push", s.cfg.RemoteName, refspec); err != nil {
		return err
	}
	return nil
}

// ensureBranch checks out the configured branch when HEAD is detached.
func (s *GitSink) ensureBranch(ctx context.Context) error {
	if _, err := s.repo.Run(ctx, "symbolic-ref", "-q", "HEAD"); err == nil {
		return nil
	}
	if _, err := s.repo.Run(ctx, "checkout", s.cfg.Branch); err != nil {
		return fmt.Errorf("checking out %s from detached HEAD: %w", s.cfg.Branch, err)
	}
	return nil
}

// hasStagedChanges reports whether the index differs from HEAD for the
// record file. An unborn branch counts as changed.
func (s *GitSink) hasStagedChanges(ctx context.Context) (bool, error) {
	_, err := s.repo.Run(ctx, "diff", "--cached", "--quiet", "--", s.file)
	switch git.ExitCode(err) {
	case -1:
		if err != nil {
			return false, err
		}
		return false, nil
	case 1:
		return true, nil
	default:
		return false, err
	}
}

// ensureRemote registers the remote or updates its URL.
func (s *GitSink) ensureRemote(ctx context.Context) error {
	current, err := s.repo.Run(ctx, "remote", "get-url", s.cfg.RemoteName)
	if err != nil {
		_, err = s.repo.Run(ctx, "remote", "add", s.cfg.RemoteName, s.pushURL)
		return err
	}
	if strings.TrimSpace(current) == s.pushURL {
		return nil
	}
	_, err = s.repo.Run(ctx, "remote", "set-url", s.cfg.RemoteName, s.pushURL)
	return err
}
