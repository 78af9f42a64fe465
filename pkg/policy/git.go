package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"gopkg.in/yaml.v3"
)

// GitConfig configures a GitSource.
type GitConfig struct {
	// Repository is the clone URL of the policy repo.
	Repository string

	// Branch to track. Default: main
	Branch string

	// Path is the pack file or directory inside the repo. Default: policies
	Path string

	// LocalPath is where the repo is cloned. Default: os.TempDir()/overture-policies
	LocalPath string

	// PollInterval between pulls while watching. Default: 60s
	PollInterval time.Duration

	// PullTimeout bounds each clone/pull. Default: 30s
	PullTimeout time.Duration

	// Token enables HTTP token auth when non-empty.
	Token string
}

func (c *GitConfig) applyDefaults() {
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.Path == "" {
		c.Path = "policies"
	}
	if c.LocalPath == "" {
		c.LocalPath = filepath.Join(os.TempDir(), "overture-policies")
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.PullTimeout <= 0 {
		c.PullTimeout = 30 * time.Second
	}
}

// GitSource loads packs from a git repository and stamps each pack with the
// HEAD commit it was read at. Failed pulls keep serving the last good tree.
type GitSource struct {
	config GitConfig
	logger *slog.Logger

	mu   sync.Mutex
	repo *gogit.Repository
}

// NewGitSource creates a git-backed pack source.
func NewGitSource(config GitConfig, logger *slog.Logger) (*GitSource, error) {
	if config.Repository == "" {
		return nil, NewValidationError("git.repository", "must not be empty")
	}
	config.applyDefaults()

	if logger == nil {
		logger = slog.Default()
	}
	return &GitSource{
		config: config,
		logger: logger.With("component", "policy-git-source"),
	}, nil
}

// Describe implements Source.
func (s *GitSource) Describe() string {
	return fmt.Sprintf("git:%s@%s/%s", s.config.Repository, s.config.Branch, s.config.Path)
}

// Load implements Source: clone (or open) the repo, then parse the pack
// from the working tree and stamp its commit.
func (s *GitSource) Load(ctx context.Context) (*Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureRepoLocked(ctx); err != nil {
		return nil, NewLoadError(s.Describe(), err)
	}

	pack, err := s.loadTreeLocked()
	if err != nil {
		return nil, NewLoadError(s.Describe(), err)
	}
	return pack, nil
}

// Watch implements Watchable: poll the remote on the configured interval
// and invoke onChange when HEAD moves. Blocks until the context is done.
func (s *GitSource) Watch(ctx context.Context, onChange func()) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Info("polling policy repository",
		"repository", s.config.Repository,
		"branch", s.config.Branch,
		"interval", s.config.PollInterval,
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			changed, err := s.pull(ctx)
			if err != nil {
				// Last good pack keeps serving; just report.
				s.logger.Error("policy pull failed", "error", err)
				continue
			}
			if changed {
				onChange()
			}
		}
	}
}

// pull fetches the tracked branch and reports whether HEAD moved.
func (s *GitSource) pull(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureRepoLocked(ctx); err != nil {
		return false, err
	}

	head, err := s.repo.Head()
	if err != nil {
		return false, fmt.Errorf("reading HEAD: %w", err)
	}
	before := head.Hash()

	worktree, err := s.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("opening worktree: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, s.config.PullTimeout)
	defer cancel()

	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.config.Branch),
		SingleBranch:  true,
		Auth:          s.auth(),
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return false, fmt.Errorf("pulling %s: %w", s.config.Branch, err)
	}

	head, err = s.repo.Head()
	if err != nil {
		return false, fmt.Errorf("reading HEAD after pull: %w", err)
	}
	return head.Hash() != before, nil
}

// ensureRepoLocked opens the local clone, cloning first if necessary.
// Caller must hold s.mu.
func (s *GitSource) ensureRepoLocked(ctx context.Context) error {
	if s.repo != nil {
		return nil
	}

	if _, err := os.Stat(filepath.Join(s.config.LocalPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(s.config.LocalPath)
		if err != nil {
			return fmt.Errorf("opening existing clone: %w", err)
		}
		s.repo = repo
		return nil
	}

	if err := os.MkdirAll(s.config.LocalPath, 0o755); err != nil {
		return fmt.Errorf("creating clone directory: %w", err)
	}

	cloneCtx, cancel := context.WithTimeout(ctx, s.config.PullTimeout)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, s.config.LocalPath, false, &gogit.CloneOptions{
		URL:           s.config.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(s.config.Branch),
		SingleBranch:  true,
		Depth:         1,
		Auth:          s.auth(),
	})
	if err != nil {
		return fmt.Errorf("cloning %s: %w", s.config.Repository, err)
	}

	s.repo = repo
	s.logger.Info("policy repository cloned",
		"repository", s.config.Repository,
		"branch", s.config.Branch,
		"path", s.config.LocalPath,
	)
	return nil
}

// loadTreeLocked parses the pack from the working tree and stamps the HEAD
// commit. Caller must hold s.mu.
func (s *GitSource) loadTreeLocked() (*Pack, error) {
	packPath := filepath.Join(s.config.LocalPath, s.config.Path)

	files, err := listPackFiles(packPath)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .yaml or .yml files under %s", s.config.Path)
	}

	pack := DefaultPack()
	digest := sha256.New()
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, pack); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}
		digest.Write(data)
	}
	if err := pack.Validate(); err != nil {
		return nil, err
	}

	head, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("reading HEAD: %w", err)
	}
	commit, err := s.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", head.Hash(), err)
	}

	pack.Version = Version{
		Source:     "git",
		Digest:     hex.EncodeToString(digest.Sum(nil)),
		CommitSHA:  commit.Hash.String(),
		Branch:     s.config.Branch,
		Author:     commit.Author.Name,
		CommitTime: commit.Author.When,
		LoadedAt:   time.Now(),
	}

	s.logger.Debug("policy pack loaded from git",
		"commit", pack.Version.Ref(),
		"author", commit.Author.Name,
	)
	return pack, nil
}

// auth returns HTTP token credentials when configured, nil otherwise.
func (s *GitSource) auth() transport.AuthMethod {
	if s.config.Token == "" {
		return nil
	}
	return &githttp.BasicAuth{
		Username: "overture", // ignored by token-auth servers, must be non-empty
		Password: s.config.Token,
	}
}
