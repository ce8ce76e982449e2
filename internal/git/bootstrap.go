package git

import (
	"context"
	"os"
	"path/filepath"

	"github.com/bashhack/statebak/internal/constants"
	statebakErrors "github.com/bashhack/statebak/internal/errors"
	"github.com/bashhack/statebak/internal/logger"
)

// BootstrapConfig holds what the bootstrapper needs to prepare a repository.
type BootstrapConfig struct {
	RepoPath    string
	RemoteURL   string
	AuthToken   string
	Branch      string
	AuthorName  string
	AuthorEmail string
}

// Bootstrapper performs one-time repository setup.
type Bootstrapper struct {
	config BootstrapConfig
	runner *Runner
	logger logger.Logger
}

// NewBootstrapper creates a Bootstrapper.
func NewBootstrapper(config BootstrapConfig, runner *Runner, log logger.Logger) *Bootstrapper {
	if config.Branch == "" {
		config.Branch = constants.DefaultBranch
	}
	if config.AuthorName == "" {
		config.AuthorName = constants.DefaultAuthorName
	}
	if config.AuthorEmail == "" {
		config.AuthorEmail = constants.DefaultAuthorEmail
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Bootstrapper{config: config, runner: runner, logger: log}
}

// Bootstrap initializes the repository if needed, sets the bot identity,
// points "origin" at the (authenticated) remote and links the branch to its
// upstream. Only initialization and remote configuration failures are fatal.
func (b *Bootstrapper) Bootstrap(ctx context.Context) error {
	if err := b.ensureRepository(ctx); err != nil {
		return err
	}

	if _, err := b.runner.Run(ctx, "config", "user.name", b.config.AuthorName); err != nil {
		b.logger.Warning("Failed to set git user.name: %v", err)
	}
	if _, err := b.runner.Run(ctx, "config", "user.email", b.config.AuthorEmail); err != nil {
		b.logger.Warning("Failed to set git user.email: %v", err)
	}

	if err := b.configureRemote(ctx); err != nil {
		return err
	}

	upstream := constants.RemoteName + "/" + b.config.Branch
	if _, err := b.runner.Check(ctx, "branch", "--set-upstream-to="+upstream, b.config.Branch); err != nil {
		// Expected before the first push; the engine's push retry sets it.
		b.logger.Info("Could not set upstream to %s yet: %v", upstream, err)
	}

	b.logger.Info("Git repository initialized successfully")
	return nil
}

func (b *Bootstrapper) ensureRepository(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(b.config.RepoPath, ".git")); err == nil {
		return nil
	}

	if err := os.MkdirAll(b.config.RepoPath, 0o755); err != nil {
		return statebakErrors.Wrapf(err, "failed to create repository directory %s", b.config.RepoPath)
	}

	b.logger.InfoToUser("Initializing git repository in %s", b.config.RepoPath)
	if _, err := b.runner.Run(ctx, "init"); err != nil {
		return statebakErrors.Wrap(err, "failed to initialize git repository")
	}

	// HEAD is unborn, so this renames the default branch without a commit.
	ref := "refs/heads/" + b.config.Branch
	if _, err := b.runner.Run(ctx, "symbolic-ref", "HEAD", ref); err != nil {
		return statebakErrors.Wrapf(err, "failed to set default branch to %s", b.config.Branch)
	}
	return nil
}

func (b *Bootstrapper) configureRemote(ctx context.Context) error {
	remote, authenticated := AuthenticatedURL(b.config.RemoteURL, b.config.AuthToken)
	switch {
	case b.config.AuthToken == "":
		b.logger.Info("No auth token configured; remote %s is used as-is", RedactURL(b.config.RemoteURL))
	case !authenticated:
		b.logger.WarningToUser("Remote %s is not an https GitHub URL; pushing without token authentication",
			RedactURL(b.config.RemoteURL))
	}

	verb := "add"
	if _, err := b.runner.Check(ctx, "remote", "get-url", constants.RemoteName); err == nil {
		verb = "set-url"
	}

	if _, err := b.runner.Run(ctx, "remote", verb, constants.RemoteName, remote); err != nil {
		return statebakErrors.Wrapf(err, "failed to configure remote %q", constants.RemoteName)
	}

	b.logger.Info("Remote %q configured: %s (token: %t)", constants.RemoteName, RedactURL(remote), authenticated)
	return nil
}
