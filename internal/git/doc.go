// Package git runs the git side of statebak: a command runner with per-call
// deadlines and credential redaction, the backup engine that stages, commits
// and pushes a batch of files under the repository lock, and the
// bootstrapper that prepares a repository and its authenticated remote.
//
// # Core Components
//
//   - Runner: executes "git -C <repo> ..." through a CommandExecutor
//   - Engine: runs one backup cycle and reports a Result
//   - Bootstrapper: one-time init, identity and remote setup
//   - ReadRepoState: read-only view of the backup branch via go-git
//
// # Cycle outcomes
//
// RunCycle never leaves the lock held. Its Result.Status is one of
// StatusNoFiles, StatusNothingToCommit, StatusPushed, StatusPushFailed or
// StatusFailed; only the last two come with a non-nil error.
//
// # Credentials
//
// AuthenticatedURL splices a token into https GitHub remotes. Anything the
// runner logs or returns is passed through Redact first, so neither the
// token nor URL userinfo reaches a log line.
//
// # Usage
//
//	runner := git.NewRunner(repo, git.NewExecExecutor(constants.EnvNoPrompt), log, 0, token)
//	engine := git.NewEngine(git.EngineConfig{RepoPath: repo}, runner, lock.New(repo, lock.Options{}), log)
//	result, err := engine.RunCycle(ctx, []string{"users.json"})
package git
