package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Config contains configuration for the Syncer.
type Config struct {
	// URL is the remote policy repository.
	URL string `yaml:"url"`

	// Branch is the branch to track.
	// Default: main
	Branch string `yaml:"branch"`

	// Directory is the local checkout path.
	Directory string `yaml:"directory"`

	// PollInterval is the fetch cadence.
	// Default: 60 seconds
	PollInterval time.Duration `yaml:"poll_interval"`

	// Username and Token authenticate HTTPS remotes. Empty means
	// anonymous.
	Username string `yaml:"username"`
	Token    string `yaml:"token"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("git sync requires a repository url")
	}
	if c.Directory == "" {
		return fmt.Errorf("git sync requires a checkout directory")
	}
	return nil
}

// ReloadFunc is invoked after HEAD moves to a new commit.
type ReloadFunc func() error

// Syncer keeps a local checkout tracking a remote branch.
type Syncer struct {
	config   Config
	onReload ReloadFunc
	logger   *slog.Logger

	head plumbing.Hash
}

// NewSyncer creates a Syncer. onReload may be nil.
func NewSyncer(config Config, onReload ReloadFunc) (*Syncer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Branch == "" {
		config.Branch = "main"
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 60 * time.Second
	}

	return &Syncer{
		config:   config,
		onReload: onReload,
		logger:   slog.Default().With("component", "policy.git"),
	}, nil
}

func (s *Syncer) auth() transport.AuthMethod {
	if s.config.Token == "" {
		return nil
	}
	username := s.config.Username
	if username == "" {
		// Token-only auth still needs a non-empty username over HTTPS.
		username = "warden"
	}
	return &githttp.BasicAuth{Username: username, Password: s.config.Token}
}

// Sync clones or pulls once. It returns true when HEAD moved.
func (s *Syncer) Sync(ctx context.Context) (bool, error) {
	repo, err := s.openOrClone(ctx)
	if err != nil {
		return false, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("open worktree: %w", err)
	}

	err = worktree.PullContext(ctx, &gogit.PullOptions{
		ReferenceName: plumbing.NewBranchReferenceName(s.config.Branch),
		Auth:          s.auth(),
		SingleBranch:  true,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return false, fmt.Errorf("pull %s: %w", s.config.URL, err)
	}

	ref, err := repo.Head()
	if err != nil {
		return false, fmt.Errorf("resolve HEAD: %w", err)
	}

	moved := ref.Hash() != s.head
	if moved {
		previous := s.head
		s.head = ref.Hash()
		s.logger.Info("policy checkout advanced",
			"from", previous.String(),
			"to", s.head.String(),
		)
	}
	return moved, nil
}

func (s *Syncer) openOrClone(ctx context.Context) (*gogit.Repository, error) {
	if _, err := os.Stat(s.config.Directory); err == nil {
		repo, err := gogit.PlainOpen(s.config.Directory)
		if err == nil {
			return repo, nil
		}
		return nil, fmt.Errorf("open checkout %s: %w", s.config.Directory, err)
	}

	repo, err := gogit.PlainCloneContext(ctx, s.config.Directory, false, &gogit.CloneOptions{
		URL:           s.config.URL,
		ReferenceName: plumbing.NewBranchReferenceName(s.config.Branch),
		SingleBranch:  true,
		Auth:          s.auth(),
	})
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", s.config.URL, err)
	}

	s.logger.Info("policy repository cloned",
		"url", s.config.URL,
		"branch", s.config.Branch,
		"directory", s.config.Directory,
	)
	return repo, nil
}

// Run polls until the context is cancelled, invoking the reload callback
// whenever HEAD moves. The first sync happens immediately.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Syncer) tick(ctx context.Context) {
	moved, err := s.Sync(ctx)
	if err != nil {
		s.logger.Error("policy sync failed", "error", err)
		return
	}
	if moved && s.onReload != nil {
		if err := s.onReload(); err != nil {
			s.logger.Error("reload after sync failed", "error", err)
		}
	}
}
