package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/bashhack/statebak/internal/config"
	"github.com/bashhack/statebak/internal/constants"
	statebakErrors "github.com/bashhack/statebak/internal/errors"
	"github.com/bashhack/statebak/internal/metrics"
	"github.com/bashhack/statebak/internal/watch"
)

// Execute parses args and runs the selected command.
func (a *App) Execute(ctx context.Context, args []string) error {
	root := &cli.Command{
		Name:      constants.AppName,
		Usage:     constants.Tagline,
		Version:   a.Config.VersionInfo.Version,
		Writer:    a.Stdout,
		ErrWriter: a.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML or JSON config file",
				Sources: cli.EnvVars(config.EnvPrefix + "CONFIG"),
			},
			&cli.StringFlag{Name: "repo", Usage: "working directory to back up (default: current directory)"},
			&cli.StringFlag{Name: "remote", Usage: "remote URL to push backups to"},
			&cli.StringFlag{Name: "branch", Usage: "branch to commit and push (default: main)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "print warnings to the terminal"},
			&cli.BoolFlag{Name: "debug", Usage: "write a structured debug log"},
			&cli.StringFlag{Name: "log-file", Usage: "debug log path"},
			&cli.StringFlag{Name: "log-level", Usage: "debug log level (debug, info, warn, error)"},
		},
		Commands: []*cli.Command{
			a.runCommand(),
			a.backupCommand(),
			a.statusCommand(),
			a.versionCommand(),
		},
	}

	return root.Run(ctx, args)
}

func (a *App) runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "watch files and back them up until interrupted",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "file", Aliases: []string{"f"}, Usage: "file to watch, relative to the repository (repeatable)"},
			&cli.DurationFlag{Name: "batch-interval", Usage: "minimum time between backups"},
			&cli.IntFlag{Name: "batch-size", Usage: "pending files that trigger an early backup"},
			&cli.DurationFlag{Name: "watch-interval", Usage: "how often watched files are checked"},
			&cli.BoolFlag{Name: "requeue-on-failure", Usage: "retry files whose backup failed"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
		},
		Action: a.runAction,
	}
}

func (a *App) runAction(ctx context.Context, cmd *cli.Command) error {
	if err := a.configure(cmd); err != nil {
		return err
	}
	if err := a.StartManager(ctx); err != nil {
		return err
	}

	cfg := a.Config
	a.Logger.Success("statebak is backing up %s to %s", cfg.RepoPath, redactedRemote(cfg.RemoteURL))
	if len(cfg.Files) == 0 {
		a.Logger.WarningToUser("No files configured to watch; only explicit backups will run")
	}

	g, gctx := errgroup.WithContext(ctx)

	poller := watch.New(cfg.RepoPath, cfg.Files, cfg.WatchInterval, a.Manager, a.Logger)
	g.Go(func() error {
		return poller.Run(gctx)
	})

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, a.Registry)
		g.Go(func() error {
			a.Logger.Info("Serving metrics on %s", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return statebakErrors.Wrap(err, "metrics server failed")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()

	a.Logger.StatusMessage("\nStopping statebak, flushing pending changes...")
	if closeErr := a.Close(); closeErr != nil {
		err = statebakErrors.Join(err, closeErr)
	}
	a.Manager = nil
	return err
}

func (a *App) backupCommand() *cli.Command {
	return &cli.Command{
		Name:      "backup",
		Usage:     "commit and push the given files now",
		ArgsUsage: "FILE...",
		Action:    a.backupAction,
	}
}

func (a *App) backupAction(ctx context.Context, cmd *cli.Command) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		return statebakErrors.NewConfigError("files", nil,
			statebakErrors.Wrap(statebakErrors.ErrInvalidFlag, "backup needs at least one file"))
	}

	if err := a.configure(cmd); err != nil {
		return err
	}
	if err := a.StartManager(ctx); err != nil {
		return err
	}

	err := a.Manager.BackupNow(ctx, files)
	if closeErr := a.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	a.Manager = nil

	if err != nil {
		return statebakErrors.Wrap(err, "backup failed")
	}
	a.Logger.StatusMessage("Backup complete")
	return nil
}

func (a *App) versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "show version",
		Action: func(_ context.Context, _ *cli.Command) error {
			a.ShowVersion()
			return nil
		},
	}
}

// configure layers the config file, environment and flags over the
// defaults, then finalizes the result.
func (a *App) configure(cmd *cli.Command) error {
	if path := flagString(cmd, "config"); path != "" {
		if err := a.Config.LoadFile(path); err != nil {
			return err
		}
	}
	a.Config.LoadFromEnvironment()
	a.applyFlags(cmd)

	return a.Initialize()
}

func (a *App) applyFlags(cmd *cli.Command) {
	c := a.Config

	setFromFlag(cmd, "repo", &c.RepoPath)
	setFromFlag(cmd, "remote", &c.RemoteURL)
	setFromFlag(cmd, "branch", &c.Branch)
	setFromFlag(cmd, "log-file", &c.LogFile)
	setFromFlag(cmd, "log-level", &c.LogLevel)
	setFromFlag(cmd, "metrics-addr", &c.MetricsAddr)

	if fc := flagCommand(cmd, "verbose"); fc != nil {
		c.Verbose = fc.Bool("verbose")
	}
	if fc := flagCommand(cmd, "debug"); fc != nil {
		c.Debug = fc.Bool("debug")
	}
	if fc := flagCommand(cmd, "requeue-on-failure"); fc != nil {
		c.RequeueOnFailure = fc.Bool("requeue-on-failure")
	}
	if fc := flagCommand(cmd, "file"); fc != nil {
		c.Files = fc.StringSlice("file")
	}
	if fc := flagCommand(cmd, "batch-interval"); fc != nil {
		c.BatchInterval = fc.Duration("batch-interval")
	}
	if fc := flagCommand(cmd, "watch-interval"); fc != nil {
		c.WatchInterval = fc.Duration("watch-interval")
	}
	if fc := flagCommand(cmd, "batch-size"); fc != nil {
		c.BatchSize = int(fc.Int("batch-size"))
	}
}

// flagCommand returns the command in cmd's lineage on which name was set
// explicitly, or nil.
func flagCommand(cmd *cli.Command, name string) *cli.Command {
	for _, c := range cmd.Lineage() {
		if c.IsSet(name) {
			return c
		}
	}
	return nil
}

func flagString(cmd *cli.Command, name string) string {
	if fc := flagCommand(cmd, name); fc != nil {
		return fc.String(name)
	}
	return ""
}

func setFromFlag(cmd *cli.Command, name string, dst *string) {
	if fc := flagCommand(cmd, name); fc != nil {
		*dst = fc.String(name)
	}
}
