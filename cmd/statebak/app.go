package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bashhack/statebak/internal/backup"
	"github.com/bashhack/statebak/internal/config"
	"github.com/bashhack/statebak/internal/constants"
	statebakErrors "github.com/bashhack/statebak/internal/errors"
	"github.com/bashhack/statebak/internal/logger"
	"github.com/bashhack/statebak/internal/metrics"
)

// BackupService is the part of backup.Manager the commands use.
type BackupService interface {
	QueueBackup(name string)
	BackupNow(ctx context.Context, names []string) error
	Pending() int
	Shutdown(ctx context.Context) error
}

// ManagerFactory builds the BackupService for a finalized config.
type ManagerFactory func(ctx context.Context, cfg *config.Config, opts backup.Options) (BackupService, error)

// AppOptions contains app configuration and dependencies.
// This struct allows injection of both required and optional dependencies,
// enabling flexible configuration and easier testing.
type AppOptions struct {
	// Config holds the application configuration settings (required).
	// The application will panic if this field is nil.
	Config *config.Config

	// Optional components

	// Logger provides logging functionality (optional, a default will be created if nil).
	Logger logger.Logger

	// NewManager builds the backup manager (optional, defaults to backup.New).
	NewManager ManagerFactory

	// Registry collects metrics (optional, a fresh registry with Go and
	// process collectors is created if nil).
	Registry *prometheus.Registry

	// I/O dependencies

	// Stdout is the writer for standard output (optional, defaults to os.Stdout).
	Stdout io.Writer

	// Stderr is the writer for error output (optional, defaults to os.Stderr).
	Stderr io.Writer

	// System dependencies

	// Exit is the function to terminate the application (optional, defaults to os.Exit).
	Exit func(code int)

	// ExecLookPath is used to find executables in PATH (optional, defaults to exec.LookPath).
	ExecLookPath func(file string) (string, error)
}

// App is the statebak application. It owns the configuration, the logger
// and the one backup manager of the process.
type App struct {
	// Config holds the application configuration and settings.
	Config *config.Config

	// Logger provides logging functionality for both internal and user-facing messages.
	Logger logger.Logger

	// Manager is set once a command that backs up files has started it.
	Manager BackupService

	// Metrics is updated by the manager and served by the run command.
	Metrics *metrics.Metrics

	// Registry holds the collectors behind Metrics.
	Registry *prometheus.Registry

	// I/O streams
	Stdout io.Writer
	Stderr io.Writer

	newManager   ManagerFactory
	exit         func(code int)
	execLookPath func(file string) (string, error)
}

// NewDefaultApp creates an App with standard dependencies.
func NewDefaultApp(versionInfo config.VersionInfo) *App {
	cfg := config.New()
	cfg.VersionInfo = versionInfo

	return NewApp(AppOptions{
		Config:       cfg,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Exit:         os.Exit,
		ExecLookPath: exec.LookPath,
	})
}

// NewApp creates an App with custom dependencies specified in opts.
// It panics if Config is nil.
func NewApp(opts AppOptions) *App {
	if opts.Config == nil {
		panic("Config is required in AppOptions")
	}

	app := &App{
		Config:       opts.Config,
		Logger:       opts.Logger,
		Registry:     opts.Registry,
		Stdout:       opts.Stdout,
		Stderr:       opts.Stderr,
		newManager:   opts.NewManager,
		exit:         opts.Exit,
		execLookPath: opts.ExecLookPath,
	}

	// Set defaults for nil dependencies
	if app.Stdout == nil {
		app.Stdout = os.Stdout
	}
	if app.Stderr == nil {
		app.Stderr = os.Stderr
	}
	if app.exit == nil {
		app.exit = os.Exit
	}
	if app.execLookPath == nil {
		app.execLookPath = exec.LookPath
	}
	if app.newManager == nil {
		app.newManager = func(ctx context.Context, cfg *config.Config, opts backup.Options) (BackupService, error) {
			return backup.New(ctx, cfg, opts)
		}
	}
	if app.Registry == nil {
		app.Registry = prometheus.NewRegistry()
		app.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return app
}

// Initialize finalizes the configuration and creates the logger.
func (a *App) Initialize() error {
	if err := a.Config.Finalize(); err != nil {
		if statebakErrors.Is(err, statebakErrors.ErrInvalidConfiguration) {
			return err
		}
		return statebakErrors.Wrap(statebakErrors.ErrInvalidConfiguration, err.Error())
	}

	if a.Logger == nil {
		a.Logger = logger.New(a.Config.Debug, a.Config.LogFile, a.Config.Verbose)
		if leveled, ok := a.Logger.(interface{ SetLevel(string) }); ok {
			leveled.SetLevel(a.Config.LogLevel)
		}
	}
	a.Logger.AddSecret(a.Config.AuthToken)

	if a.Metrics == nil {
		a.Metrics = metrics.New(a.Registry)
	}
	return nil
}

// StartManager bootstraps the repository and starts the backup worker.
func (a *App) StartManager(ctx context.Context) error {
	if a.Manager != nil {
		return nil
	}

	if err := a.Config.RequireRemote(); err != nil {
		return err
	}
	if err := a.checkRequiredCommands(); err != nil {
		return err
	}

	mgr, err := a.newManager(ctx, a.Config, backup.Options{
		Logger:  a.Logger,
		Metrics: a.Metrics,
	})
	if err != nil {
		return err
	}
	a.Manager = mgr
	return nil
}

// ShowVersion displays version information
func (a *App) ShowVersion() {
	_, _ = fmt.Fprintf(a.Stdout, "%s %s (%s) built on %s\n",
		constants.AppName,
		a.Config.VersionInfo.Version,
		a.Config.VersionInfo.Commit,
		a.Config.VersionInfo.Date)
	_, _ = fmt.Fprintln(a.Stdout, constants.Tagline)
}

// checkRequiredCommands verifies git is available in PATH
func (a *App) checkRequiredCommands() error {
	if _, err := a.execLookPath("git"); err != nil {
		return fmt.Errorf("git is not found in PATH")
	}
	return nil
}

// Close shuts down the manager, if one was started, and closes the logger.
func (a *App) Close() error {
	var errs []error

	if a.Manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		defer cancel()

		if err := a.Manager.Shutdown(ctx); err != nil {
			if a.Logger != nil {
				a.Logger.Error("Backup manager did not shut down cleanly: %v", err)
			}
			errs = append(errs, err)
		}
	}

	if a.Logger != nil {
		if err := a.Logger.Close(); err != nil {
			_, _ = fmt.Fprintf(a.Stderr, "❌ Failed to close logger: %v\n", err)
			errs = append(errs, err)
		}
	}

	return statebakErrors.Join(errs...)
}
