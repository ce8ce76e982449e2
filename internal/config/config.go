package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bashhack/statebak/internal/constants"
	statebakErrors "github.com/bashhack/statebak/internal/errors"
	"github.com/bashhack/statebak/internal/git"
	"github.com/bashhack/statebak/internal/lock"
	"github.com/bashhack/statebak/internal/queue"
)

const (
	// EnvPrefix starts every environment variable statebak reads.
	EnvPrefix = "STATEBAK_"

	// DefaultWorkerInterval is how often the background worker checks the queue.
	DefaultWorkerInterval = time.Second

	// DefaultShutdownTimeout bounds how long Shutdown waits for the worker.
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultWatchInterval is how often tracked files are hashed for changes.
	DefaultWatchInterval = 2 * time.Second

	// DefaultLogLevel is the minimum level written to the debug log.
	DefaultLogLevel = "info"
)

// Config holds all statebak settings.
// Values are layered: defaults, then the config file, then environment
// variables, then command-line flags. Finalize must be called last.
type Config struct {
	// Repository configuration

	// RepoPath is the working directory whose files are backed up.
	// If empty, the current working directory is used.
	RepoPath string

	// RemoteURL is where backups are pushed. An https GitHub URL gets the
	// auth token spliced in; any other URL is used as-is.
	RemoteURL string

	// AuthToken authenticates pushes. It is never logged.
	AuthToken string

	// Branch is the single branch every backup is committed to.
	Branch string

	// AuthorName and AuthorEmail are written to the repository's git config.
	AuthorName  string
	AuthorEmail string

	// Files lists the repository-relative paths the watcher tracks.
	Files []string

	// Batching

	// BatchInterval is the minimum time between two flushes of the queue.
	BatchInterval time.Duration

	// BatchSize flushes the queue early once this many files are pending.
	BatchSize int

	// WorkerInterval is how often the worker checks whether to flush.
	WorkerInterval time.Duration

	// RequeueOnFailure puts the files of a failed cycle back in the queue.
	// When false they are dropped and picked up again only when next changed.
	RequeueOnFailure bool

	// Locking and timeouts

	// LockTimeout bounds how long a cycle waits for the repository lock.
	LockTimeout time.Duration

	// StaleAfter is the marker age after which a lock is presumed orphaned.
	StaleAfter time.Duration

	// LockPollInterval is the sleep between lock acquisition attempts.
	LockPollInterval time.Duration

	// CommandTimeout bounds every git command except push.
	CommandTimeout time.Duration

	// PushTimeout bounds git push.
	PushTimeout time.Duration

	// ShutdownTimeout bounds how long shutdown waits for the worker to stop.
	ShutdownTimeout time.Duration

	// WatchInterval is how often tracked files are checked for changes.
	WatchInterval time.Duration

	// Output and diagnostics

	// Verbose prints warnings to the terminal as well as the log.
	Verbose bool

	// Debug enables the structured log file.
	Debug bool

	// LogFile specifies where to write debug logs.
	// If empty, logs are written to a default location based on repository path.
	LogFile string

	// LogLevel is the minimum level written to LogFile.
	LogLevel string

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string

	// ConfigFile is the YAML or JSON file the settings were loaded from, if any.
	ConfigFile string

	// Build metadata

	// VersionInfo contains version, commit, and build date information.
	// This is typically injected at build time.
	VersionInfo VersionInfo
}

// VersionInfo contains build-time version metadata.
type VersionInfo struct {
	// Version is the semantic version number (e.g., "v1.2.3").
	Version string

	// Commit is the Git commit hash from which the binary was built.
	Commit string

	// Date is the build timestamp in human-readable format.
	Date string
}

// New creates a new Config with default values
func New() *Config {
	return &Config{
		Branch:           constants.DefaultBranch,
		AuthorName:       constants.DefaultAuthorName,
		AuthorEmail:      constants.DefaultAuthorEmail,
		BatchInterval:    queue.DefaultBatchInterval,
		BatchSize:        queue.DefaultBatchSize,
		WorkerInterval:   DefaultWorkerInterval,
		LockTimeout:      lock.DefaultTimeout,
		StaleAfter:       lock.DefaultStaleAfter,
		LockPollInterval: lock.DefaultPollInterval,
		CommandTimeout:   git.DefaultCommandTimeout,
		PushTimeout:      git.DefaultPushTimeout,
		ShutdownTimeout:  DefaultShutdownTimeout,
		WatchInterval:    DefaultWatchInterval,
		LogLevel:         DefaultLogLevel,

		// Default version info, will be overridden if provided
		VersionInfo: VersionInfo{
			Version: "dev",
			Commit:  "unknown",
			Date:    "unknown",
		},
	}
}

// fileConfig is the on-disk shape. Pointers distinguish "absent" from zero.
// The nested github section is the legacy credentials file layout.
type fileConfig struct {
	Repo             string         `yaml:"repo"`
	RemoteURL        string         `yaml:"remote_url"`
	AuthToken        string         `yaml:"auth_token"`
	Branch           string         `yaml:"branch"`
	AuthorName       string         `yaml:"author_name"`
	AuthorEmail      string         `yaml:"author_email"`
	Files            []string       `yaml:"files"`
	BatchInterval    *time.Duration `yaml:"batch_interval"`
	BatchSize        *int           `yaml:"batch_size"`
	WorkerInterval   *time.Duration `yaml:"worker_interval"`
	RequeueOnFailure *bool          `yaml:"requeue_on_failure"`
	LockTimeout      *time.Duration `yaml:"lock_timeout"`
	StaleAfter       *time.Duration `yaml:"stale_after"`
	LockPollInterval *time.Duration `yaml:"lock_poll_interval"`
	CommandTimeout   *time.Duration `yaml:"command_timeout"`
	PushTimeout      *time.Duration `yaml:"push_timeout"`
	ShutdownTimeout  *time.Duration `yaml:"shutdown_timeout"`
	WatchInterval    *time.Duration `yaml:"watch_interval"`
	LogFile          string         `yaml:"log_file"`
	LogLevel         string         `yaml:"log_level"`
	MetricsAddr      string         `yaml:"metrics_addr"`

	GitHub struct {
		RepositoryURL string `yaml:"repository_url"`
		AuthToken     string `yaml:"auth_token"`
	} `yaml:"github"`
}

// LoadFile reads settings from a YAML or JSON file. Keys absent from the file
// leave the current values untouched.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return statebakErrors.NewConfigError("configFile", path, statebakErrors.Wrap(err, "cannot read config file"))
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return statebakErrors.NewConfigError("configFile", path,
			statebakErrors.Wrap(statebakErrors.ErrInvalidConfiguration, err.Error()))
	}

	setString(&c.RemoteURL, fc.GitHub.RepositoryURL)
	setString(&c.AuthToken, fc.GitHub.AuthToken)

	setString(&c.RepoPath, fc.Repo)
	setString(&c.RemoteURL, fc.RemoteURL)
	setString(&c.AuthToken, fc.AuthToken)
	setString(&c.Branch, fc.Branch)
	setString(&c.AuthorName, fc.AuthorName)
	setString(&c.AuthorEmail, fc.AuthorEmail)
	setString(&c.LogFile, fc.LogFile)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.MetricsAddr, fc.MetricsAddr)
	if len(fc.Files) > 0 {
		c.Files = fc.Files
	}

	setDuration(&c.BatchInterval, fc.BatchInterval)
	setDuration(&c.WorkerInterval, fc.WorkerInterval)
	setDuration(&c.LockTimeout, fc.LockTimeout)
	setDuration(&c.StaleAfter, fc.StaleAfter)
	setDuration(&c.LockPollInterval, fc.LockPollInterval)
	setDuration(&c.CommandTimeout, fc.CommandTimeout)
	setDuration(&c.PushTimeout, fc.PushTimeout)
	setDuration(&c.ShutdownTimeout, fc.ShutdownTimeout)
	setDuration(&c.WatchInterval, fc.WatchInterval)
	if fc.BatchSize != nil {
		c.BatchSize = *fc.BatchSize
	}
	if fc.RequeueOnFailure != nil {
		c.RequeueOnFailure = *fc.RequeueOnFailure
	}

	// Relative paths in the file are relative to the file, not the caller.
	if c.RepoPath != "" && fc.Repo != "" && !filepath.IsAbs(c.RepoPath) {
		c.RepoPath = filepath.Join(filepath.Dir(path), c.RepoPath)
	}

	c.ConfigFile = path
	return nil
}

// LoadFromEnvironment updates config from STATEBAK_* environment variables.
// GITHUB_TOKEN is used when no token has been configured any other way.
func (c *Config) LoadFromEnvironment() {
	c.RepoPath = getEnvString("REPO_PATH", c.RepoPath)
	c.RemoteURL = getEnvString("REMOTE_URL", c.RemoteURL)
	c.AuthToken = getEnvString("AUTH_TOKEN", c.AuthToken)
	c.Branch = getEnvString("BRANCH", c.Branch)
	c.AuthorName = getEnvString("AUTHOR_NAME", c.AuthorName)
	c.AuthorEmail = getEnvString("AUTHOR_EMAIL", c.AuthorEmail)
	c.Files = getEnvList("FILES", c.Files)
	c.BatchInterval = getEnvDuration("BATCH_INTERVAL", c.BatchInterval)
	c.BatchSize = getEnvInt("BATCH_SIZE", c.BatchSize)
	c.WorkerInterval = getEnvDuration("WORKER_INTERVAL", c.WorkerInterval)
	c.RequeueOnFailure = getEnvBool("REQUEUE_ON_FAILURE", c.RequeueOnFailure)
	c.LockTimeout = getEnvDuration("LOCK_TIMEOUT", c.LockTimeout)
	c.StaleAfter = getEnvDuration("STALE_AFTER", c.StaleAfter)
	c.LockPollInterval = getEnvDuration("LOCK_POLL_INTERVAL", c.LockPollInterval)
	c.CommandTimeout = getEnvDuration("COMMAND_TIMEOUT", c.CommandTimeout)
	c.PushTimeout = getEnvDuration("PUSH_TIMEOUT", c.PushTimeout)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.WatchInterval = getEnvDuration("WATCH_INTERVAL", c.WatchInterval)
	c.Verbose = getEnvBool("VERBOSE", c.Verbose)
	c.Debug = getEnvBool("DEBUG", c.Debug)
	c.LogFile = getEnvString("LOG_FILE", c.LogFile)
	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)
	c.MetricsAddr = getEnvString("METRICS_ADDR", c.MetricsAddr)

	if c.AuthToken == "" {
		c.AuthToken = os.Getenv("GITHUB_TOKEN")
	}
}

// Finalize validates and finalizes the configuration
func (c *Config) Finalize() error {
	if c.RepoPath == "" {
		var err error
		c.RepoPath, err = os.Getwd()
		if err != nil {
			return statebakErrors.NewConfigError("repoPath", "", statebakErrors.Wrap(err, "failed to get current directory"))
		}
	}

	absRepoPath, err := filepath.Abs(c.RepoPath)
	if err != nil {
		return statebakErrors.NewConfigError("repoPath", c.RepoPath, statebakErrors.Wrap(err, "failed to resolve absolute path"))
	}
	c.RepoPath = absRepoPath

	if c.Branch == "" {
		c.Branch = constants.DefaultBranch
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"batchInterval", c.BatchInterval},
		{"workerInterval", c.WorkerInterval},
		{"lockTimeout", c.LockTimeout},
		{"staleAfter", c.StaleAfter},
		{"lockPollInterval", c.LockPollInterval},
		{"commandTimeout", c.CommandTimeout},
		{"pushTimeout", c.PushTimeout},
		{"shutdownTimeout", c.ShutdownTimeout},
		{"watchInterval", c.WatchInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return statebakErrors.NewConfigError(d.name, d.value,
				statebakErrors.Wrapf(statebakErrors.ErrInvalidConfiguration, "%s must be greater than 0", d.name))
		}
	}

	if c.BatchSize <= 0 {
		return statebakErrors.NewConfigError("batchSize", c.BatchSize,
			statebakErrors.Wrap(statebakErrors.ErrInvalidConfiguration, "batch size must be greater than 0"))
	}

	files := make([]string, 0, len(c.Files))
	for _, name := range c.Files {
		clean, err := CleanRelative(name)
		if err != nil {
			return statebakErrors.NewConfigError("files", name, err)
		}
		files = append(files, clean)
	}
	c.Files = files

	if c.LogFile == "" {
		// Follow XDG Base Directory Specification
		logDir := os.Getenv("XDG_DATA_HOME")
		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err == nil {
				logDir = filepath.Join(homeDir, ".local", "share")
			} else {
				logDir = os.TempDir()
			}
		}

		repoHash := fmt.Sprintf("%x", sha256OfString(c.RepoPath)[:8])
		c.LogFile = filepath.Join(logDir, constants.AppName, "logs",
			fmt.Sprintf("%s-%s.log", constants.AppName, repoHash))
	}

	return nil
}

// RequireRemote reports a ConfigError when no remote has been configured.
// Only commands that push need one.
func (c *Config) RequireRemote() error {
	if strings.TrimSpace(c.RemoteURL) == "" {
		return statebakErrors.NewConfigError("remoteURL", "",
			statebakErrors.Wrapf(statebakErrors.ErrInvalidConfiguration,
				"no remote configured: set remote_url in the config file or %sREMOTE_URL", EnvPrefix))
	}
	return nil
}

// CleanRelative normalizes a repository-relative path and rejects paths
// that are absolute or escape the repository.
func CleanRelative(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", statebakErrors.Wrap(statebakErrors.ErrInvalidConfiguration, "empty file name")
	}

	clean := filepath.ToSlash(filepath.Clean(name))
	if filepath.IsAbs(name) || clean == ".." || strings.HasPrefix(clean, "../") || clean == "." {
		return "", statebakErrors.Wrapf(statebakErrors.ErrInvalidConfiguration,
			"%q must be a path inside the repository", name)
	}
	return clean, nil
}

// Redacted returns a copy of c that is safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.AuthToken != "" {
		out.AuthToken = "***"
	}
	out.RemoteURL = git.RedactURL(out.RemoteURL)
	out.Files = append([]string(nil), c.Files...)
	return out
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, value *time.Duration) {
	if value != nil {
		*dst = *value
	}
}

// getEnvString returns an environment variable string or a default value
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(EnvPrefix + key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns an environment variable as int or a default value
func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(EnvPrefix + key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1m30s") or plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(EnvPrefix + key)
	if !exists {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if seconds, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable.
func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(EnvPrefix + key)
	if !exists {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvBool returns an environment variable as bool or a default value
func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(EnvPrefix + key); exists {
		valueLower := strings.ToLower(valueStr)
		if valueLower == "true" || valueLower == "1" || valueLower == "yes" {
			return true
		}
		if valueLower == "false" || valueLower == "0" || valueLower == "no" {
			return false
		}
		// For any other value, fall back to default
	}
	return defaultValue
}

// sha256OfString returns the SHA256 hash of a string
func sha256OfString(input string) []byte {
	hash := sha256.Sum256([]byte(input))
	return hash[:]
}
