package constants

const (
	// AppName is used for log directories and user agent style strings.
	AppName = "statebak"

	// Tagline is printed by the version command.
	Tagline = "durable git backups for small JSON state files"

	// RemoteName is the only remote statebak manages.
	RemoteName = "origin"

	// DefaultBranch is the branch every backup is committed to and pushed.
	DefaultBranch = "main"

	// CommitPrefix starts every backup commit message.
	CommitPrefix = "Auto-backup"

	// CommitTimeFormat is the timestamp layout embedded in commit messages.
	CommitTimeFormat = "2006-01-02 15:04:05"

	// DefaultAuthorName is the committer identity configured in the repository.
	DefaultAuthorName = "statebak bot"

	// DefaultAuthorEmail is the committer email configured in the repository.
	DefaultAuthorEmail = "bot@statebak.local"

	// EnvNoPrompt disables git's interactive credential prompts.
	EnvNoPrompt = "GIT_TERMINAL_PROMPT=0"
)
